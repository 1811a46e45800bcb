package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/mihari/internal/config"
	"github.com/hyperjump/mihari/internal/ident"
	"github.com/hyperjump/mihari/internal/metrics"
	"github.com/hyperjump/mihari/internal/models"
	"github.com/hyperjump/mihari/internal/pipeline"
	"github.com/hyperjump/mihari/internal/registry"
	"github.com/hyperjump/mihari/internal/store"
)

func newTestServer(t *testing.T, queueSize int) (*Server, *registry.Registry, *store.BoltStore, chan *models.TextSource) {
	t.Helper()
	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	reg := registry.New()
	docs := make(chan *models.TextSource, queueSize)
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	srv := NewServer(reg, st, docs, cfg, zap.NewNop(), metrics.New())
	return srv, reg, st, docs
}

// withURLParam attaches a chi route parameter to the request context.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleSubmitQuery(t *testing.T) {
	srv, reg, st, _ := newTestServer(t, 1)

	body, _ := json.Marshal(map[string]interface{}{
		"name":            "darcy watch",
		"query_text":      "Darcy",
		"score_threshold": 60,
	})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/queries", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleSubmitQuery(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out models.PersistentQuery
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ID == 0 {
		t.Error("expected an assigned id")
	}
	if _, ok := reg.Get(out.ID); !ok {
		t.Error("query should be registered")
	}
	persisted, err := st.Queries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 1 || persisted[0].QueryText != "Darcy" {
		t.Errorf("persisted queries = %+v", persisted)
	}
}

func TestHandleSubmitQuery_rejectsInvalid(t *testing.T) {
	srv, _, _, _ := newTestServer(t, 1)

	tests := []struct {
		name string
		body string
	}{
		{"empty text", `{"name":"x","query_text":"","score_threshold":10}`},
		{"zero threshold", `{"name":"x","query_text":"abc","score_threshold":0}`},
		{"negative threshold", `{"name":"x","query_text":"abc","score_threshold":-5}`},
		{"malformed json", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/queries", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()
			srv.handleSubmitQuery(w, r)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", w.Code)
			}
		})
	}
}

func TestHandleGetQuery(t *testing.T) {
	srv, reg, _, _ := newTestServer(t, 1)
	q := models.NewPersistentQuery("watch", "Darcy", 60)
	reg.Insert(q)

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/queries/"+q.ID.String(), nil), "id", q.ID.String())
	w := httptest.NewRecorder()
	srv.handleGetQuery(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out models.PersistentQuery
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ID != q.ID || out.QueryText != "Darcy" || out.ScoreThreshold != 60 {
		t.Errorf("query = %+v", out)
	}
}

func TestHandleGetQuery_unknownID(t *testing.T) {
	srv, _, _, _ := newTestServer(t, 1)

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/queries/12345", nil), "id", "12345")
	w := httptest.NewRecorder()
	srv.handleGetQuery(w, r)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want 422", w.Code)
	}
}

func TestHandleGetQuery_malformedID(t *testing.T) {
	srv, _, _, _ := newTestServer(t, 1)

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/queries/nope", nil), "id", "nope")
	w := httptest.NewRecorder()
	srv.handleGetQuery(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleGetResults_unknownIDIsEmptyList(t *testing.T) {
	srv, _, _, _ := newTestServer(t, 1)

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/queries/999/results", nil), "id", "999")
	w := httptest.NewRecorder()
	srv.handleGetResults(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out []*models.IndexData
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("expected empty list, got %v", out)
	}
}

func TestHandleSubmitDocument(t *testing.T) {
	srv, _, _, docs := newTestServer(t, 1)

	body := `{"name":"note.txt","data":"Mr. Darcy walked into the room"}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	srv.handleSubmitDocument(w, r)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	select {
	case doc := <-docs:
		if doc.Name != "note.txt" || doc.ID == 0 {
			t.Errorf("queued doc = %+v", doc)
		}
	default:
		t.Fatal("document should be on the ingestion channel")
	}
}

func TestHandleSubmitDocument_rejectsEmptyBody(t *testing.T) {
	srv, _, _, _ := newTestServer(t, 1)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader([]byte(`{"data":""}`)))
	w := httptest.NewRecorder()
	srv.handleSubmitDocument(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleSubmitDocument_fullQueue(t *testing.T) {
	srv, _, _, docs := newTestServer(t, 1)
	docs <- models.NewTextSource("occupies the only slot", "blocker")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader([]byte(`{"data":"x"}`))).WithContext(ctx)
	w := httptest.NewRecorder()
	srv.handleSubmitDocument(w, r)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", w.Code)
	}
}

func TestHandleCapacity(t *testing.T) {
	srv, reg, _, _ := newTestServer(t, 1)
	reg.Insert(models.NewPersistentQuery("a", "alpha", 10))
	reg.Insert(models.NewPersistentQuery("b", "beta", 10))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/capacity", nil)
	w := httptest.NewRecorder()
	srv.handleCapacity(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out models.LoadCapacity
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.PendingQueryCount != 2 {
		t.Errorf("pending_query_count = %d, want 2", out.PendingQueryCount)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _, _, _ := newTestServer(t, 1)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, reg, _, _ := newTestServer(t, 1)
	reg.Insert(models.NewPersistentQuery("a", "alpha", 10))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["queries"].(float64) != 1 {
		t.Errorf("queries = %v", out["queries"])
	}
}

// Submitting a query and a matching document through the API, then
// draining the pipeline once, must surface exactly one match record
// with highlight spans.
func TestQueryLifecycle_endToEnd(t *testing.T) {
	srv, reg, st, docs := newTestServer(t, 4)

	body := `{"name":"darcy watch","query_text":"Darcy","score_threshold":60}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/queries", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	srv.handleSubmitQuery(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit query: got %d, body %s", w.Code, w.Body.String())
	}
	var q models.PersistentQuery
	if err := json.NewDecoder(w.Body).Decode(&q); err != nil {
		t.Fatal(err)
	}

	doc := `{"name":"novel.txt","data":"Mr. Darcy walked into the room"}`
	r = httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader([]byte(doc)))
	w = httptest.NewRecorder()
	srv.handleSubmitDocument(w, r)
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit document: got %d, body %s", w.Code, w.Body.String())
	}

	p := pipeline.New(reg, st, docs)
	queued := <-docs
	if stored := p.Process(context.Background(), queued); stored != 1 {
		t.Fatalf("Process stored %d records, want 1", stored)
	}

	r = withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/queries/"+q.ID.String()+"/results", nil), "id", q.ID.String())
	w = httptest.NewRecorder()
	srv.handleGetResults(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("get results: got %d", w.Code)
	}
	var results []*models.IndexData
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	rec := results[0]
	if rec.SourceQuery != q.ID {
		t.Errorf("source_query = %v, want %v", rec.SourceQuery, q.ID)
	}
	if rec.DocumentID == ident.DocumentID(0) {
		t.Error("document id should be set")
	}
	if rec.Score < q.ScoreThreshold {
		t.Errorf("score %d below threshold %d", rec.Score, q.ScoreThreshold)
	}
	if len(rec.MatchIndices) == 0 {
		t.Error("expected highlight spans")
	}
}
