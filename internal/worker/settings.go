// Package worker runs one batch inside its execution unit: it waits for the
// database, times every query of its range and leaves a result artifact
// plus a completion marker behind.
package worker

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hochfrequenz/sqlbench/internal/dbhandle"
	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Environment variable names understood by the worker
const (
	EnvBatchID          = "BATCH_ID"
	EnvDBType           = "DB_TYPE"
	EnvDBHost           = "DB_HOST"
	EnvDBPort           = "DB_PORT"
	EnvDBName           = "DB_NAME"
	EnvDBUser           = "DB_USER"
	EnvDBPass           = "DB_PASS"
	EnvBenchmark        = "BENCHMARK"
	EnvQueryStart       = "QUERY_START"
	EnvQueryEnd         = "QUERY_END"
	EnvRepeatCount      = "REPEAT_COUNT"
	EnvResultCSV        = "RESULT_CSV"
	EnvResultLog        = "RESULT_LOG"
	EnvQueryRoot        = "QUERY_ROOT"
	EnvReadinessTimeout = "READINESS_TIMEOUT"
	EnvRetries          = "RETRIES"
	EnvRetryDelay       = "RETRY_DELAY"
)

// Defaults for the optional settings
const (
	DefaultQueryRoot         = "/opt/sql-benchmark"
	DefaultReadinessTimeout  = 120 * time.Second
	DefaultReadinessInterval = 2 * time.Second
	DefaultRetries           = 3
	DefaultRetryDelay        = 5 * time.Second
)

// Settings is the worker's complete input
type Settings struct {
	BatchID     int
	Engine      string
	Conn        dbhandle.ConnParams
	Benchmark   string
	Range       domain.QueryRange
	RepeatCount int
	ResultCSV   string
	ResultLog   string

	QueryRoot         string
	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration
	Retries           int
	RetryDelay        time.Duration
}

// Assignment returns the query work described by the settings
func (s *Settings) Assignment() Assignment {
	return Assignment{
		Benchmark:   s.Benchmark,
		Engine:      s.Engine,
		Range:       s.Range,
		RepeatCount: s.RepeatCount,
	}
}

// LoadEnvFile merges a dotenv file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return domain.NewError(domain.KindConfiguration, "load env file", err)
	}
	return nil
}

// LoadSettings reads the settings through lookup, normally os.LookupEnv
func LoadSettings(lookup func(string) (string, bool)) (*Settings, error) {
	p := envParser{lookup: lookup}

	s := &Settings{
		BatchID:   p.integer(EnvBatchID, 0, true),
		Engine:    p.required(EnvDBType),
		Benchmark: p.required(EnvBenchmark),
		ResultCSV: p.required(EnvResultCSV),
		ResultLog: p.optional(EnvResultLog, ""),
		QueryRoot: p.optional(EnvQueryRoot, DefaultQueryRoot),
		Conn: dbhandle.ConnParams{
			Host:     p.optional(EnvDBHost, ""),
			Database: p.required(EnvDBName),
			User:     p.optional(EnvDBUser, ""),
			Password: p.optional(EnvDBPass, ""),
		},
		Range: domain.QueryRange{
			Start: p.integer(EnvQueryStart, 0, true),
			End:   p.integer(EnvQueryEnd, 0, true),
		},
		RepeatCount:       p.integer(EnvRepeatCount, 0, true),
		ReadinessTimeout:  p.duration(EnvReadinessTimeout, DefaultReadinessTimeout),
		ReadinessInterval: DefaultReadinessInterval,
		Retries:           p.integer(EnvRetries, DefaultRetries, false),
		RetryDelay:        p.duration(EnvRetryDelay, DefaultRetryDelay),
	}
	if p.err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "load settings", p.err)
	}

	engine, err := dbhandle.Lookup(s.Engine)
	if err != nil {
		return nil, err
	}
	s.Engine = engine.Name
	s.Benchmark = strings.ToLower(s.Benchmark)
	s.Conn.Port = p.integer(EnvDBPort, engine.Port, false)
	if engine.Server && s.Conn.Host == "" {
		p.fail(fmt.Errorf("%s is required for %s", EnvDBHost, engine.Name))
	}
	if s.ResultLog == "" {
		s.ResultLog = strings.TrimSuffix(s.ResultCSV, ".csv") + ".log"
	}

	switch {
	case p.err != nil:
	case s.BatchID < 1:
		p.fail(fmt.Errorf("%s must be at least 1, got %d", EnvBatchID, s.BatchID))
	case s.Range.Start < 1:
		p.fail(fmt.Errorf("%s must be at least 1, got %d", EnvQueryStart, s.Range.Start))
	case s.Range.End < s.Range.Start:
		p.fail(fmt.Errorf("%s (%d) is before %s (%d)", EnvQueryEnd, s.Range.End, EnvQueryStart, s.Range.Start))
	case s.RepeatCount < 1:
		p.fail(fmt.Errorf("%s must be at least 1, got %d", EnvRepeatCount, s.RepeatCount))
	case s.Retries < 1:
		p.fail(fmt.Errorf("%s must be at least 1, got %d", EnvRetries, s.Retries))
	case s.ReadinessTimeout <= 0:
		p.fail(fmt.Errorf("%s must be positive", EnvReadinessTimeout))
	}
	if p.err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "load settings", p.err)
	}
	return s, nil
}

// Env renders settings back into the variables LoadSettings reads
func (s *Settings) Env() map[string]string {
	return map[string]string{
		EnvBatchID:          strconv.Itoa(s.BatchID),
		EnvDBType:           s.Engine,
		EnvDBHost:           s.Conn.Host,
		EnvDBPort:           strconv.Itoa(s.Conn.Port),
		EnvDBName:           s.Conn.Database,
		EnvDBUser:           s.Conn.User,
		EnvDBPass:           s.Conn.Password,
		EnvBenchmark:        s.Benchmark,
		EnvQueryStart:       strconv.Itoa(s.Range.Start),
		EnvQueryEnd:         strconv.Itoa(s.Range.End),
		EnvRepeatCount:      strconv.Itoa(s.RepeatCount),
		EnvResultCSV:        s.ResultCSV,
		EnvResultLog:        s.ResultLog,
		EnvQueryRoot:        s.QueryRoot,
		EnvReadinessTimeout: s.ReadinessTimeout.String(),
		EnvRetries:          strconv.Itoa(s.Retries),
		EnvRetryDelay:       s.RetryDelay.String(),
	}
}

// envParser collects the first error so settings can be read in one pass
type envParser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *envParser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *envParser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *envParser) required(key string) string {
	v, ok := p.get(key)
	if !ok {
		p.fail(fmt.Errorf("%s is required", key))
	}
	return v
}

func (p *envParser) optional(key, def string) string {
	if v, ok := p.get(key); ok {
		return v
	}
	return def
}

func (p *envParser) integer(key string, def int, required bool) int {
	v, ok := p.get(key)
	if !ok {
		if required {
			p.fail(fmt.Errorf("%s is required", key))
		}
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.get(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
