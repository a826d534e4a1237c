package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// fakeHandle is a scripted database
type fakeHandle struct {
	mu sync.Mutex

	probeFailures int // probes that fail before the first success
	probes        int

	failures map[string]int // transient failures left per query text
	broken   map[string]bool
	execs    []string
}

func (h *fakeHandle) Probe(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes++
	if h.probes <= h.probeFailures {
		return errors.New("connection refused")
	}
	return nil
}

func (h *fakeHandle) Exec(ctx context.Context, query string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.execs = append(h.execs, query)
	if h.broken[query] {
		return domain.Errorf(domain.KindQueryExecution, "query", "syntax error in %q", query)
	}
	if h.failures[query] > 0 {
		h.failures[query]--
		return domain.Errorf(domain.KindQueryExecution, "query", "server closed the connection")
	}
	return nil
}

func (h *fakeHandle) execCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.execs)
}

// recordingSleep records requested delays without sleeping
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

// writeQueries creates <root>/<benchmark>/<n>.sql for each n
func writeQueries(t *testing.T, root, benchmark string, numbers ...int) {
	t.Helper()
	dir := filepath.Join(root, benchmark)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, n := range numbers {
		path := filepath.Join(dir, strconv.Itoa(n)+".sql")
		if err := os.WriteFile(path, []byte(queryText(n)), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func queryText(n int) string {
	return "SELECT " + strconv.Itoa(n)
}

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core).Sugar(), logs
}
