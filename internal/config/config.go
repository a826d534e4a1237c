package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/sqlbench/internal/dbhandle"
	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Execution environments
const (
	EnvironmentCompose = "compose"
	EnvironmentProcess = "process"
)

// Completion detection modes
const (
	CompletionMarker   = "marker"
	CompletionArtifact = "artifact"
	CompletionExit     = "exit"
)

// Config holds all scheduler configuration
type Config struct {
	BatchSize    int      `yaml:"batch_size" toml:"batch_size"`
	RepeatCount  int      `yaml:"repeat_count" toml:"repeat_count"`
	MaxParallel  int      `yaml:"max_parallel" toml:"max_parallel"`
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval"`

	ResultsDir  string   `yaml:"results_dir" toml:"results_dir"`
	SpecsDir    string   `yaml:"specs_dir" toml:"specs_dir"`
	Environment string   `yaml:"environment" toml:"environment"`
	Completion  string   `yaml:"completion" toml:"completion"`
	StuckAfter  Duration `yaml:"stuck_after" toml:"stuck_after"`
	LedgerPath  string   `yaml:"ledger_path" toml:"ledger_path"`
	LogFile     string   `yaml:"log_file" toml:"log_file"`
	LogLevel    string   `yaml:"log_level" toml:"log_level"`

	Worker        WorkerConfig        `yaml:"worker" toml:"worker"`
	Notifications NotificationsConfig `yaml:"notifications" toml:"notifications"`

	Benchmarks []BenchmarkConfig `yaml:"benchmarks" toml:"benchmarks"`
	DBMSList   []DBMSConfig      `yaml:"dbms_list" toml:"dbms_list"`
}

// WorkerConfig holds settings handed to every worker
type WorkerConfig struct {
	Image            string   `yaml:"image" toml:"image"`
	Binary           string   `yaml:"binary" toml:"binary"`
	QueryRoot        string   `yaml:"query_root" toml:"query_root"`
	ReadinessTimeout Duration `yaml:"readiness_timeout" toml:"readiness_timeout"`
	Retries          int      `yaml:"retries" toml:"retries"`
	RetryDelay       Duration `yaml:"retry_delay" toml:"retry_delay"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `yaml:"slack_webhook" toml:"slack_webhook"`
}

// BenchmarkConfig names a query suite
type BenchmarkConfig struct {
	Name         string `yaml:"name" toml:"name"`
	TotalQueries int    `yaml:"total_queries" toml:"total_queries"`
}

// DBMSConfig selects an engine and optionally overrides its catalogue defaults
type DBMSConfig struct {
	Name     string `yaml:"name" toml:"name"`
	Image    string `yaml:"image,omitempty" toml:"image,omitempty"`
	Host     string `yaml:"host,omitempty" toml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty" toml:"port,omitempty"`
	User     string `yaml:"user,omitempty" toml:"user,omitempty"`
	Password string `yaml:"password,omitempty" toml:"password,omitempty"`
	Database string `yaml:"database,omitempty" toml:"database,omitempty"`
}

// Resolve returns the catalogue engine with the configured overrides applied
func (d DBMSConfig) Resolve() (dbhandle.Engine, error) {
	e, err := dbhandle.Lookup(d.Name)
	if err != nil {
		return dbhandle.Engine{}, err
	}
	if d.Image != "" {
		e.Image = d.Image
	}
	if d.Port != 0 {
		e.Port = d.Port
	}
	if d.User != "" {
		e.User = d.User
	}
	if d.Password != "" {
		e.Password = d.Password
	}
	if d.Database != "" {
		e.Database = d.Database
	}
	return e, nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		BatchSize:    10,
		RepeatCount:  5,
		MaxParallel:  7,
		PollInterval: Duration{10 * time.Second},
		ResultsDir:   "results",
		SpecsDir:     "specs",
		Environment:  EnvironmentCompose,
		Completion:   CompletionMarker,
		StuckAfter:   Duration{2 * time.Hour},
		LedgerPath:   filepath.Join("results", "ledger.db"),
		LogFile:      filepath.Join("results", "scheduler.log"),
		LogLevel:     "info",
		Worker: WorkerConfig{
			Image:            "worker-container:latest",
			Binary:           "sqlbench-worker",
			QueryRoot:        "/opt/sql-benchmark",
			ReadinessTimeout: Duration{120 * time.Second},
			Retries:          3,
			RetryDelay:       Duration{5 * time.Second},
		},
	}
}

// Load reads configuration from a YAML or TOML file (chosen by extension)
// on top of the defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "read config", err)
	}

	cfg := Default()
	if err := decode(path, data, cfg); err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "parse "+path, err)
	}

	cfg.ResultsDir = ExpandPath(cfg.ResultsDir)
	cfg.SpecsDir = ExpandPath(cfg.SpecsDir)
	cfg.LedgerPath = ExpandPath(cfg.LedgerPath)
	cfg.LogFile = ExpandPath(cfg.LogFile)
	cfg.Worker.QueryRoot = ExpandPath(cfg.Worker.QueryRoot)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
}

// Validate checks bounds and cross-field constraints
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return domain.NewError(domain.KindConfiguration, "validate config", err)
	}
	return nil
}

func (c *Config) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	case c.RepeatCount <= 0:
		return fmt.Errorf("repeat_count must be positive, got %d", c.RepeatCount)
	case c.MaxParallel <= 0:
		return fmt.Errorf("max_parallel must be positive, got %d", c.MaxParallel)
	case c.PollInterval.Duration <= 0:
		return fmt.Errorf("poll_interval must be positive")
	case c.ResultsDir == "":
		return fmt.Errorf("results_dir is required")
	case c.StuckAfter.Duration < 0:
		return fmt.Errorf("stuck_after must not be negative")
	}

	switch c.Environment {
	case EnvironmentCompose, EnvironmentProcess:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	switch c.Completion {
	case CompletionMarker, CompletionArtifact:
	case CompletionExit:
		if c.Environment != EnvironmentProcess {
			return fmt.Errorf("completion %q requires environment %q", c.Completion, EnvironmentProcess)
		}
	default:
		return fmt.Errorf("unknown completion mode %q", c.Completion)
	}

	if err := c.Worker.validate(c.Environment); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	if len(c.Benchmarks) == 0 {
		return fmt.Errorf("no benchmarks configured")
	}
	seen := make(map[string]bool)
	for i, b := range c.Benchmarks {
		if b.Name == "" {
			return fmt.Errorf("benchmark %d: name is required", i)
		}
		if strings.ContainsAny(b.Name, `/\`) || b.Name == "." || b.Name == ".." {
			return fmt.Errorf("benchmark %d: invalid name %q", i, b.Name)
		}
		if b.TotalQueries <= 0 {
			return fmt.Errorf("benchmark %q: total_queries must be positive, got %d", b.Name, b.TotalQueries)
		}
		if seen[b.Name] {
			return fmt.Errorf("benchmark %q configured twice", b.Name)
		}
		seen[b.Name] = true
	}

	if len(c.DBMSList) == 0 {
		return fmt.Errorf("no dbms configured")
	}
	engines := make(map[string]bool)
	for i, d := range c.DBMSList {
		e, err := d.Resolve()
		if err != nil {
			return fmt.Errorf("dbms %d: %w", i, err)
		}
		if engines[e.Name] {
			return fmt.Errorf("dbms %q configured twice", e.Name)
		}
		engines[e.Name] = true
		if e.Server && c.Environment == EnvironmentCompose && e.Image == "" {
			return fmt.Errorf("dbms %q: image is required", e.Name)
		}
	}
	return nil
}

func (w WorkerConfig) validate(environment string) error {
	switch {
	case environment == EnvironmentCompose && w.Image == "":
		return fmt.Errorf("image is required")
	case environment == EnvironmentProcess && w.Binary == "":
		return fmt.Errorf("binary is required")
	case w.ReadinessTimeout.Duration <= 0:
		return fmt.Errorf("readiness_timeout must be positive")
	case w.Retries <= 0:
		return fmt.Errorf("retries must be positive, got %d", w.Retries)
	case w.RetryDelay.Duration < 0:
		return fmt.Errorf("retry_delay must not be negative")
	}
	return nil
}

// BenchmarkList returns the configured benchmarks in order
func (c *Config) BenchmarkList() []domain.Benchmark {
	out := make([]domain.Benchmark, 0, len(c.Benchmarks))
	for _, b := range c.Benchmarks {
		out = append(out, domain.Benchmark{Name: b.Name, TotalQueries: b.TotalQueries})
	}
	return out
}

// EngineNames returns the canonical engine names in configured order.
// Entries that fail to resolve are skipped; Validate reports them.
func (c *Config) EngineNames() []string {
	out := make([]string, 0, len(c.DBMSList))
	for _, d := range c.DBMSList {
		if e, err := d.Resolve(); err == nil {
			out = append(out, e.Name)
		}
	}
	return out
}

// DBMS returns the configuration entry for a canonical engine name
func (c *Config) DBMS(engine string) (DBMSConfig, bool) {
	for _, d := range c.DBMSList {
		if e, err := d.Resolve(); err == nil && e.Name == engine {
			return d, true
		}
	}
	return DBMSConfig{}, false
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	return "config.yml"
}
