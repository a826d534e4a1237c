package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.RepeatCount != 5 {
		t.Errorf("RepeatCount = %d, want 5", cfg.RepeatCount)
	}
	if cfg.MaxParallel != 7 {
		t.Errorf("MaxParallel = %d, want 7", cfg.MaxParallel)
	}
	if cfg.PollInterval.Duration != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if cfg.Environment != EnvironmentCompose {
		t.Errorf("Environment = %q, want compose", cfg.Environment)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	path := writeConfig(t, "config.yml", `
batch_size: 4
repeat_count: 2
max_parallel: 3
poll_interval: 250ms
results_dir: /tmp/results
worker:
  retries: 5
  retry_delay: 1s
benchmarks:
  - name: tpch
    total_queries: 22
dbms_list:
  - name: postgres
  - name: MSSQL
    image: custom-mssql:2022
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.BatchSize != 4 || cfg.RepeatCount != 2 || cfg.MaxParallel != 3 {
		t.Errorf("got batch_size=%d repeat_count=%d max_parallel=%d, want 4/2/3",
			cfg.BatchSize, cfg.RepeatCount, cfg.MaxParallel)
	}
	if cfg.PollInterval.Duration != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.Worker.Retries != 5 || cfg.Worker.RetryDelay.Duration != time.Second {
		t.Errorf("got retries=%d delay=%v, want 5/1s", cfg.Worker.Retries, cfg.Worker.RetryDelay)
	}
	// Unset worker fields keep their defaults
	if cfg.Worker.Image != "worker-container:latest" {
		t.Errorf("Worker.Image = %q, want default", cfg.Worker.Image)
	}

	engines := cfg.EngineNames()
	if len(engines) != 2 || engines[0] != "postgres" || engines[1] != "mssql" {
		t.Errorf("EngineNames() = %v, want [postgres mssql]", engines)
	}

	d, ok := cfg.DBMS("mssql")
	if !ok {
		t.Fatal("DBMS(mssql) not found")
	}
	e, err := d.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if e.Image != "custom-mssql:2022" {
		t.Errorf("Image = %q, want override", e.Image)
	}
	if e.Port != 1433 {
		t.Errorf("Port = %d, want catalogue default 1433", e.Port)
	}

	bs := cfg.BenchmarkList()
	if len(bs) != 1 || bs[0] != (domain.Benchmark{Name: "tpch", TotalQueries: 22}) {
		t.Errorf("BenchmarkList() = %v", bs)
	}
}

func TestLoad_FromTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
batch_size = 8
environment = "process"
completion = "exit"
poll_interval = "2s"

[worker]
binary = "/usr/local/bin/sqlbench-worker"

[[benchmarks]]
name = "tpch"
total_queries = 22

[[dbms_list]]
name = "sqlite"
database = "/data/tpch.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BatchSize != 8 {
		t.Errorf("BatchSize = %d, want 8", cfg.BatchSize)
	}
	if cfg.Completion != CompletionExit {
		t.Errorf("Completion = %q, want exit", cfg.Completion)
	}
	if cfg.PollInterval.Duration != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.Worker.Binary != "/usr/local/bin/sqlbench-worker" {
		t.Errorf("Worker.Binary = %q", cfg.Worker.Binary)
	}
}

func TestLoad_Invalid(t *testing.T) {
	const valid = `
benchmarks:
  - {name: tpch, total_queries: 22}
dbms_list:
  - {name: postgres}
`
	tests := []struct {
		name    string
		content string
	}{
		{"zero batch size", "batch_size: 0\n" + valid},
		{"negative repeat", "repeat_count: -1\n" + valid},
		{"zero parallel", "max_parallel: 0\n" + valid},
		{"bad duration", "poll_interval: soon\n" + valid},
		{"unknown key", "batchsize: 3\n" + valid},
		{"unknown environment", "environment: k8s\n" + valid},
		{"exit needs process", "completion: exit\n" + valid},
		{"unsupported engine", "benchmarks: [{name: tpch, total_queries: 22}]\ndbms_list: [{name: oracle}]\n"},
		{"duplicate engine", "benchmarks: [{name: tpch, total_queries: 22}]\ndbms_list: [{name: postgres}, {name: postgresql}]\n"},
		{"zero total queries", "benchmarks: [{name: tpch, total_queries: 0}]\ndbms_list: [{name: postgres}]\n"},
		{"duplicate benchmark", "benchmarks: [{name: a, total_queries: 1}, {name: a, total_queries: 2}]\ndbms_list: [{name: postgres}]\n"},
		{"path in benchmark name", "benchmarks: [{name: ../etc, total_queries: 1}]\ndbms_list: [{name: postgres}]\n"},
		{"no benchmarks", "dbms_list: [{name: postgres}]\n"},
		{"no dbms", "benchmarks: [{name: tpch, total_queries: 22}]\n"},
		{"malformed", "batch_size: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yml", tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if domain.KindOf(err) != domain.KindConfiguration {
				t.Errorf("KindOf = %q, want configuration", domain.KindOf(err))
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if domain.KindOf(err) != domain.KindConfiguration {
		t.Errorf("KindOf = %q, want configuration", domain.KindOf(err))
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
