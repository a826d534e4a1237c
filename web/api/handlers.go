package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hochfrequenz/sqlbench/internal/domain"
	"github.com/hochfrequenz/sqlbench/internal/runstore"
	"github.com/hochfrequenz/sqlbench/internal/scheduler"
)

// BatchResponse is the API response for a batch
type BatchResponse struct {
	ID          int     `json:"id"`
	Benchmark   string  `json:"benchmark"`
	Engine      string  `json:"engine"`
	QueryStart  int     `json:"query_start"`
	QueryEnd    int     `json:"query_end"`
	RepeatCount int     `json:"repeat_count"`
	Status      string  `json:"status"`
	LaunchedAt  *string `json:"launched_at,omitempty"`
	FinishedAt  *string `json:"finished_at,omitempty"`
	Duration    string  `json:"duration,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// StatusResponse is the API response for the live scheduler state
type StatusResponse struct {
	At        string          `json:"at"`
	Running   []BatchResponse `json:"running"`
	Queued    int             `json:"queued"`
	Next      []int           `json:"next"`
	Finished  int             `json:"finished"`
	Failed    int             `json:"failed"`
	FreeSlots int             `json:"free_slots"`
}

// RunResponse is the API response for a run
type RunResponse struct {
	ID         string  `json:"id"`
	ConfigPath string  `json:"config_path,omitempty"`
	ResultsDir string  `json:"results_dir,omitempty"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Finished   int     `json:"batches_finished"`
	Failed     int     `json:"batches_failed"`
	Error      string  `json:"error,omitempty"`
}

func batchToResponse(b *domain.Batch) BatchResponse {
	resp := BatchResponse{
		ID:          b.ID,
		Benchmark:   b.Benchmark,
		Engine:      b.Engine,
		QueryStart:  b.Range.Start,
		QueryEnd:    b.Range.End,
		RepeatCount: b.RepeatCount,
		Status:      string(b.Status),
		Error:       b.Error,
	}

	if b.LaunchedAt != nil {
		t := b.LaunchedAt.Format(time.RFC3339)
		resp.LaunchedAt = &t
	}
	if b.FinishedAt != nil {
		t := b.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}
	if b.LaunchedAt != nil && b.FinishedAt != nil {
		resp.Duration = b.FinishedAt.Sub(*b.LaunchedAt).Round(time.Second).String()
	}

	return resp
}

func statusToResponse(st scheduler.Status) StatusResponse {
	resp := StatusResponse{
		At:        st.At.Format(time.RFC3339),
		Running:   make([]BatchResponse, 0, len(st.Running)),
		Queued:    st.Queued,
		Next:      make([]int, 0, len(st.Preview)),
		Finished:  st.Finished,
		Failed:    st.Failed,
		FreeSlots: st.FreeSlots,
	}
	for _, b := range st.Running {
		resp.Running = append(resp.Running, batchToResponse(b))
	}
	for _, b := range st.Preview {
		resp.Next = append(resp.Next, b.ID)
	}
	return resp
}

func runToResponse(r *runstore.Run) RunResponse {
	resp := RunResponse{
		ID:         r.ID,
		ConfigPath: r.ConfigPath,
		ResultsDir: r.ResultsDir,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		Finished:   r.Finished,
		Failed:     r.Failed,
		Error:      r.Error,
	}
	if r.FinishedAt != nil {
		t := r.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		st, ok := s.lastStatus()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "scheduler has not reported yet")
			return
		}
		writeJSON(w, statusToResponse(st))
	}
}

// runHandler serves /api/runs/{id|latest} and /api/runs/{id|latest}/batches
func (s *Server) runHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.store == nil {
			writeError(w, http.StatusNotFound, "ledger disabled")
			return
		}

		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/"), "/")
		if parts[0] == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "batches") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		run, err := s.lookupRun(parts[0])
		switch {
		case errors.Is(err, runstore.ErrNoRuns), errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "run not found")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if len(parts) == 1 {
			writeJSON(w, runToResponse(run))
			return
		}

		opts := runstore.ListOptions{
			Status: domain.BatchStatus(r.URL.Query().Get("status")),
			Engine: r.URL.Query().Get("engine"),
		}
		batches, err := s.store.ListBatches(run.ID, opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp := make([]BatchResponse, 0, len(batches))
		for _, b := range batches {
			resp = append(resp, batchToResponse(b))
		}
		writeJSON(w, resp)
	}
}

func (s *Server) lookupRun(id string) (*runstore.Run, error) {
	if id == "latest" {
		return s.store.LatestRun()
	}
	return s.store.GetRun(id)
}
