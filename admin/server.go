package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"approvalflow"
	"approvalflow/remind"
)

// Server exposes the engine's operations API over HTTP: request
// listing, detail, history and stage progress, the recent event log,
// Prometheus metrics, and reminder worker stats.
type Server struct {
	addr       string
	engine     *approvalflow.Engine
	reminder   *remind.Worker
	eventStore *EventStore
	mux        *http.ServeMux
	server     *http.Server

	mu      sync.Mutex
	running bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithEngine sets the engine backing the API.
func WithEngine(engine *approvalflow.Engine) ServerOption {
	return func(s *Server) {
		s.engine = engine
	}
}

// WithReminder sets the reminder worker whose stats are exposed.
func WithReminder(w *remind.Worker) ServerOption {
	return func(s *Server) {
		s.reminder = w
	}
}

// WithEventStore sets the event log backing /api/events.
func WithEventStore(store *EventStore) ServerOption {
	return func(s *Server) {
		s.eventStore = store
	}
}

// NewServer creates the operations server with the given options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		addr: ":8081",
		mux:  http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/requests", s.handleListRequests)
	s.mux.HandleFunc("GET /api/requests/{id}", s.handleGetRequest)
	s.mux.HandleFunc("GET /api/requests/{id}/history", s.handleGetHistory)
	s.mux.HandleFunc("GET /api/requests/{id}/progress", s.handleGetProgress)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("GET /api/remind/stats", s.handleRemindStats)
	s.mux.HandleFunc("POST /api/remind/scan", s.handleRemindScan)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// APIResponse is the uniform response envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a stable code and a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeRequestNotFound = "REQUEST_NOT_FOUND"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// RequestSummary is one row of the request list.
type RequestSummary struct {
	ID            string    `json:"id"`
	RequestNumber string    `json:"request_number"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	RequesterName string    `json:"requester_name"`
	TotalBudget   float64   `json:"total_budget"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListResult is the paginated list payload.
type ListResult struct {
	Requests []RequestSummary `json:"requests"`
	Total    int64            `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := approvalflow.NewFilter()
	for _, status := range q["status"] {
		filter.WithStatus(approvalflow.RequestStatus(status))
	}
	if kind := q.Get("kind"); kind != "" {
		filter.WithKind(kind)
	}
	if requester := q.Get("requester"); requester != "" {
		filter.WithRequester(requester)
	}
	limit := intParam(q.Get("limit"), 100)
	offset := intParam(q.Get("offset"), 0)
	filter.WithPagination(limit, offset)

	requests, total, err := s.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	summaries := make([]RequestSummary, len(requests))
	for i, req := range requests {
		summaries[i] = RequestSummary{
			ID:            req.ID,
			RequestNumber: req.RequestNumber,
			Kind:          req.Kind,
			Status:        string(req.Status),
			RequesterName: req.RequesterName,
			TotalBudget:   req.TotalBudget,
			CreatedAt:     req.CreatedAt,
			UpdatedAt:     req.UpdatedAt,
		}
	}

	writeSuccess(w, ListResult{
		Requests: summaries,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, req)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, entries)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	rows, err := s.engine.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, rows)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventStore == nil {
		writeSuccess(w, []StoredEvent{})
		return
	}

	q := r.URL.Query()
	filter := EventFilter{
		Type:      q.Get("type"),
		RequestID: q.Get("request_id"),
		Limit:     intParam(q.Get("limit"), 100),
		Offset:    intParam(q.Get("offset"), 0),
	}

	writeSuccess(w, map[string]interface{}{
		"events": s.eventStore.List(filter),
		"total":  s.eventStore.Count(filter),
	})
}

func (s *Server) handleRemindStats(w http.ResponseWriter, r *http.Request) {
	if s.reminder == nil {
		writeError(w, http.StatusNotFound, ErrCodeInvalidRequest, "reminder worker not configured")
		return
	}
	scanned, sent, skipped := s.reminder.Stats()
	writeSuccess(w, map[string]interface{}{
		"running": s.reminder.IsRunning(),
		"scanned": scanned,
		"sent":    sent,
		"skipped": skipped,
	})
}

func (s *Server) handleRemindScan(w http.ResponseWriter, r *http.Request) {
	if s.reminder == nil {
		writeError(w, http.StatusNotFound, ErrCodeInvalidRequest, "reminder worker not configured")
		return
	}
	s.reminder.ScanOnce(r.Context())
	writeSuccess(w, map[string]string{"status": "scan completed"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response.
func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if approvalflow.IsNotFound(err) {
		writeError(w, http.StatusNotFound, ErrCodeRequestNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
}
