// Package pipeline pairs the stream of incoming documents against the
// live query set and forwards qualifying matches to the store.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/mihari/internal/ident"
	"github.com/hyperjump/mihari/internal/match"
	"github.com/hyperjump/mihari/internal/metrics"
	"github.com/hyperjump/mihari/internal/models"
	"github.com/hyperjump/mihari/internal/registry"
	"github.com/hyperjump/mihari/internal/store"
)

// Pipeline is the matching worker. It pulls documents from a bounded
// channel, evaluates each against a registry snapshot, and stores one
// record per (query, document) pair that clears its threshold. Documents
// are not retained after processing.
type Pipeline struct {
	registry *registry.Registry
	store    store.MatchStore
	matcher  *match.Matcher
	docs     <-chan *models.TextSource
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics wires the prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New builds a pipeline reading from docs. The channel's bound is the
// system's backpressure: producers block when the matching worker falls
// behind.
func New(reg *registry.Registry, st store.MatchStore, docs <-chan *models.TextSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: reg,
		store:    st,
		matcher:  match.New(),
		docs:     docs,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes documents until ctx is cancelled or the channel closes.
// An empty channel is the idle state, not an error; channel close means
// producers are done and the worker drains and exits.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case doc, ok := <-p.docs:
			if !ok {
				p.logger.Info("document channel closed, pipeline exiting")
				return nil
			}
			p.Process(ctx, doc)
		}
	}
}

// Process evaluates doc against every query in the current registry
// snapshot and stores qualifying matches. A failure on one query never
// stops evaluation of the rest. Returns the number of records stored.
//
// The snapshot is taken once per document: a query registered while doc
// is being matched is picked up with the next document.
func (p *Pipeline) Process(ctx context.Context, doc *models.TextSource) int {
	snap := p.registry.Snapshot()
	if p.metrics != nil {
		p.metrics.DocumentsProcessed.Inc()
		p.metrics.IngestQueueDepth.Set(float64(len(p.docs)))
	}
	stored := 0
	for _, q := range snap.Queries() {
		rec, ok := p.evaluate(q, doc)
		if !ok {
			continue
		}
		if err := p.store.Store(ctx, q, rec); err != nil {
			p.logger.Error("store match record failed",
				zap.Uint64("query_id", uint64(q.ID)),
				zap.Uint64("document_id", uint64(doc.ID)),
				zap.Error(err),
			)
			if p.metrics != nil {
				p.metrics.MatchErrors.Inc()
			}
			continue
		}
		stored++
		if p.metrics != nil {
			p.metrics.MatchesStored.Inc()
		}
	}
	if stored > 0 {
		p.logger.Debug("document matched",
			zap.Uint64("document_id", uint64(doc.ID)),
			zap.String("name", doc.Name),
			zap.Int("records", stored),
		)
	}
	return stored
}

// evaluate scores doc against a single query. ok is false when the
// pattern does not match or the score misses the query's threshold.
func (p *Pipeline) evaluate(q *models.PersistentQuery, doc *models.TextSource) (*models.IndexData, bool) {
	score, positions, ok := p.matcher.Match(q.QueryText, doc.Data)
	if !ok || score < q.ScoreThreshold {
		return nil, false
	}
	return &models.IndexData{
		SourceQuery:  q.ID,
		Key:          ident.NewRecordID(),
		DocumentID:   doc.ID,
		Name:         doc.Name,
		MatchIndices: match.Contiguous(positions),
		Score:        score,
	}, true
}
