// Package server provides the local HTTP API over the collection service.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"bahnhofjaeger/internal/station"
)

// Server provides the HTTP API.
type Server struct {
	service *station.Service
	logger  station.Logger
	port    int
}

// New creates a new HTTP server.
func New(service *station.Service, logger station.Logger, port int) *Server {
	if port == 0 {
		port = 8080
	}
	if logger == nil {
		logger = station.NopLogger{}
	}
	return &Server{
		service: service,
		logger:  logger,
		port:    port,
	}
}

// Handler returns the API routes. Split out from ListenAndServe so tests can
// drive the mux directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/search", s.handleSearch)
	mux.HandleFunc("/api/v1/collection", s.handleCollection)
	mux.HandleFunc("/api/v1/collection/", s.handleCollectionEntry)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("http server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing query parameter q"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.service.Search(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  results,
		"count": len(results),
	})
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listCollection(w, r)
	case http.MethodPost:
		s.addToCollection(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) listCollection(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.SortedCollection(r.Context())
	if err != nil {
		s.logger.Error("listing collection failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"count": len(entries),
	})
}

func (s *Server) addToCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID string `json:"stationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be {\"stationId\": \"...\"}"})
		return
	}

	st, err := s.service.StationByID(r.Context(), req.StationID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if st == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown station " + req.StationID})
		return
	}

	outcome, err := s.service.Add(r.Context(), *st)
	if err != nil {
		s.logger.Error("add failed", "id", req.StationID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusCreated
	if outcome == station.AlreadyCollected {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"outcome": outcome.String(),
		"station": st,
	})
}

func (s *Server) handleCollectionEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stationID := strings.TrimPrefix(r.URL.Path, "/api/v1/collection/")
	if stationID == "" || strings.Contains(stationID, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing station id"})
		return
	}

	outcome, err := s.service.Remove(r.Context(), stationID)
	if err != nil {
		s.logger.Error("remove failed", "id", stationID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if outcome == station.NotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]any{"outcome": outcome.String()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := s.service.CollectionStats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": stats})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
