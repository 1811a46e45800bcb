// Package registry holds the set of live persistent queries.
//
// Matching is read-dominated: every incoming document iterates every
// query, while new registrations are rare. The registry therefore keeps
// its whole state in an immutable snapshot behind an atomic pointer.
// Readers load the pointer and iterate without ever taking a lock;
// writers copy the current snapshot, apply their insert, and swap the
// pointer. A reader that loaded a snapshot before an insert legitimately
// does not see that insert — visibility is eventual, not linearizable.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/hyperjump/mihari/internal/ident"
	"github.com/hyperjump/mihari/internal/models"
)

// Snapshot is a point-in-time, immutable view of all registered queries.
// It stays valid and consistent while writers keep inserting.
type Snapshot struct {
	byID    map[ident.QueryID]*models.PersistentQuery
	ordered []*models.PersistentQuery
}

// Queries returns the snapshot's queries in registration order. The
// returned slice is shared and must not be mutated.
func (s *Snapshot) Queries() []*models.PersistentQuery { return s.ordered }

// Get looks up a query by id within the snapshot.
func (s *Snapshot) Get(id ident.QueryID) (*models.PersistentQuery, bool) {
	q, ok := s.byID[id]
	return q, ok
}

// Len returns the number of queries in the snapshot.
func (s *Snapshot) Len() int { return len(s.ordered) }

// Registry is the concurrent query store. There is one logical writer
// (the query gateway); any number of readers may call Snapshot, Get, and
// Len concurrently with inserts.
type Registry struct {
	// mu serializes writers only. Readers never touch it.
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	r.snap.Store(&Snapshot{byID: map[ident.QueryID]*models.PersistentQuery{}})
	return r
}

// Insert registers q. Inserting an id that already exists overwrites the
// previous query (last writer wins). The insert becomes visible to
// snapshots taken after the swap; in-flight readers keep their older
// view.
func (r *Registry) Insert(q *models.PersistentQuery) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.Load()
	next := &Snapshot{
		byID:    make(map[ident.QueryID]*models.PersistentQuery, len(old.byID)+1),
		ordered: make([]*models.PersistentQuery, 0, len(old.ordered)+1),
	}
	for _, existing := range old.ordered {
		if existing.ID == q.ID {
			continue
		}
		next.byID[existing.ID] = existing
		next.ordered = append(next.ordered, existing)
	}
	next.byID[q.ID] = q
	next.ordered = append(next.ordered, q)
	r.snap.Store(next)
}

// Snapshot returns the latest committed view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Get looks up a query by id in the latest committed view.
func (r *Registry) Get(id ident.QueryID) (*models.PersistentQuery, bool) {
	return r.snap.Load().Get(id)
}

// Len returns the number of registered queries in the latest view.
func (r *Registry) Len() int {
	return r.snap.Load().Len()
}
