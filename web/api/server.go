package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/hochfrequenz/sqlbench/internal/domain"
	"github.com/hochfrequenz/sqlbench/internal/runstore"
	"github.com/hochfrequenz/sqlbench/internal/scheduler"
)

// Store interface for ledger reads
type Store interface {
	LatestRun() (*runstore.Run, error)
	GetRun(id string) (*runstore.Run, error)
	ListBatches(runID string, opts runstore.ListOptions) ([]*domain.Batch, error)
}

// Server is the read-only monitoring API of a run
type Server struct {
	store  Store
	addr   string
	mux    *http.ServeMux
	sseHub *SSEHub

	mu   sync.RWMutex
	last *scheduler.Status
}

// NewServer creates a new API server. store may be nil when the ledger is
// disabled; the ledger endpoints then answer 404.
func NewServer(store Store, addr string) *Server {
	s := &Server{
		store:  store,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs/", s.runHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Handler exposes the routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.sseHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ReportStatus implements scheduler.StatusReporter
func (s *Server) ReportStatus(st scheduler.Status) {
	s.mu.Lock()
	s.last = &st
	s.mu.Unlock()
	s.Broadcast(SSEEvent{Type: "status", Data: statusToResponse(st)})
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func (s *Server) lastStatus() (scheduler.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return scheduler.Status{}, false
	}
	return *s.last, true
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
