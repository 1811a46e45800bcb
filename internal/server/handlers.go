package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/mihari/internal/apperr"
	"github.com/hyperjump/mihari/internal/ident"
	"github.com/hyperjump/mihari/internal/models"
	"github.com/hyperjump/mihari/internal/store"
)

func (s *Server) handleSubmitQuery(w http.ResponseWriter, r *http.Request) {
	var query models.PersistentQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.ID == 0 {
		query.ID = ident.NewQueryID()
	}
	s.logger.Debug("submit query request",
		zap.Uint64("id", uint64(query.ID)),
		zap.String("name", query.Name),
		zap.Int64("score_threshold", query.ScoreThreshold),
	)
	if err := s.store.PutQuery(r.Context(), &query); err != nil {
		s.logger.Error("query persist failed", zap.Error(err))
		s.respondError(w, apperr.HTTPStatusCode(err), err.Error())
		return
	}
	s.registry.Insert(&query)
	if s.metrics != nil {
		s.metrics.RegisteredQueries.Set(float64(s.registry.Len()))
	}
	s.respondJSON(w, http.StatusCreated, &query)
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	id, err := ident.ParseQueryID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid query id")
		return
	}
	query, ok := s.registry.Get(id)
	if !ok {
		s.respondError(w, apperr.HTTPStatusCode(apperr.ErrNotFound), "query not found")
		return
	}
	// Copy so the counter is read through its accessor rather than
	// racing the pipeline's increments during marshalling.
	resp := *query
	resp.ResultCount = query.Results()
	s.respondJSON(w, http.StatusOK, &resp)
}

// handleGetResults returns every stored match record for a query. An
// unknown or malformed id yields an empty list, never an error.
func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	results := []*models.IndexData{}
	if id, err := ident.ParseQueryID(chi.URLParam(r, "id")); err == nil {
		results = s.store.Results(id)
	}
	s.respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	var doc models.TextSource
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := doc.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if doc.ID == 0 {
		doc.ID = ident.NewDocumentID()
	}
	s.logger.Debug("submit document request",
		zap.Uint64("id", uint64(doc.ID)),
		zap.String("name", doc.Name),
	)
	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	select {
	case s.docs <- &doc:
	case <-ctx.Done():
		err := apperr.Wrap(apperr.ErrChannel, "ingestion queue full")
		s.logger.Error("document submit failed", zap.Error(err))
		s.respondError(w, apperr.HTTPStatusCode(err), err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.IngestQueueDepth.Set(float64(len(s.docs)))
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": doc.ID.String(), "status": "queued"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	conns := s.conns.Load()
	if conns < 0 {
		conns = 0
	}
	s.respondJSON(w, http.StatusOK, &models.LoadCapacity{
		ConnectionCount:   uint32(conns),
		PendingQueryCount: uint32(s.registry.Len()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"queries": s.registry.Len(),
		"records": s.store.CountRecords(),
	}
	if s.config != nil {
		resp["database_path"] = s.config.Storage.DatabasePath
		diskBytes, err := store.DiskUsageBytes(s.config.Storage.DatabasePath)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
