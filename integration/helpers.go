//go:build integration

package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildBinary compiles a command of this module into a temp directory
func buildBinary(t *testing.T, name string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", out, "../cmd/"+name)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build %s: %v\n%s", name, err, output)
	}
	return out
}

// Workspace is a self-contained benchmark setup backed by sqlite
type Workspace struct {
	Root       string
	ConfigPath string
	ResultsDir string
	LedgerPath string
	QueryRoot  string
}

// NewWorkspace writes query sources for benchmark "micro" and a config
// that runs it through local worker processes
func NewWorkspace(t *testing.T, workerBinary string, totalQueries int, missing ...int) *Workspace {
	t.Helper()
	root := t.TempDir()
	ws := &Workspace{
		Root:       root,
		ConfigPath: filepath.Join(root, "config.yml"),
		ResultsDir: filepath.Join(root, "results"),
		LedgerPath: filepath.Join(root, "ledger.db"),
		QueryRoot:  filepath.Join(root, "queries"),
	}

	skip := make(map[int]bool)
	for _, n := range missing {
		skip[n] = true
	}
	benchDir := filepath.Join(ws.QueryRoot, "micro")
	if err := os.MkdirAll(benchDir, 0755); err != nil {
		t.Fatal(err)
	}
	for n := 1; n <= totalQueries; n++ {
		if skip[n] {
			continue
		}
		query := fmt.Sprintf("SELECT %d", n)
		if err := os.WriteFile(filepath.Join(benchDir, fmt.Sprintf("%d.sql", n)), []byte(query), 0644); err != nil {
			t.Fatal(err)
		}
	}

	config := strings.Join([]string{
		"batch_size: 2",
		"repeat_count: 2",
		"max_parallel: 2",
		"poll_interval: 100ms",
		"results_dir: " + ws.ResultsDir,
		"specs_dir: " + filepath.Join(root, "specs"),
		"ledger_path: " + ws.LedgerPath,
		"log_file: " + filepath.Join(ws.ResultsDir, "scheduler.log"),
		"environment: process",
		"completion: marker",
		"worker:",
		"  binary: " + workerBinary,
		"  query_root: " + ws.QueryRoot,
		"  readiness_timeout: 10s",
		"  retries: 1",
		"  retry_delay: 0s",
		"benchmarks:",
		"  - name: micro",
		fmt.Sprintf("    total_queries: %d", totalQueries),
		"dbms_list:",
		"  - name: sqlite",
		"    database: " + filepath.Join(root, "bench.db"),
		"",
	}, "\n")
	if err := os.WriteFile(ws.ConfigPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return ws
}
