package execenv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// ProcessConfig configures a ProcessEnvironment
type ProcessConfig struct {
	SpecsDir string
	Targets  map[string]Target
	Worker   WorkerOptions
}

// ProcessEnvironment runs each batch's worker as a local child process
// against an already running (or embedded) database
type ProcessEnvironment struct {
	cfg ProcessConfig
	log *zap.SugaredLogger

	mu    sync.Mutex
	procs map[int]*process
}

type process struct {
	cmd  *exec.Cmd
	out  *os.File
	done chan struct{}
	err  error
}

// processDocument is the serialized record of a process unit
type processDocument struct {
	Name    string            `yaml:"name"`
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"environment"`
}

func (d processDocument) marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewProcessEnvironment creates a process-backed environment
func NewProcessEnvironment(cfg ProcessConfig, log *zap.SugaredLogger) *ProcessEnvironment {
	return &ProcessEnvironment{
		cfg:   cfg,
		log:   log,
		procs: make(map[int]*process),
	}
}

// Materialize writes the unit record and returns the worker environment
func (e *ProcessEnvironment) Materialize(b *domain.Batch) (*Spec, error) {
	target, err := lookupTarget(e.cfg.Targets, b)
	if err != nil {
		return nil, err
	}
	host := target.Host
	if host == "" && target.Engine.Server {
		host = "localhost"
	}
	conn := target.Engine.Defaults(host)

	env := workerSettings(b, conn, target.Engine.Name, e.cfg.Worker, b.ResultPath, b.LogPath).Env()
	if err := checkWorkerEnv(env); err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "materialize", err)
	}

	doc, err := processDocument{
		Name:    ProjectName(b.ID),
		Command: append([]string{e.cfg.Worker.Binary}, e.cfg.Worker.Args...),
		Env:     env,
	}.marshal()
	if err != nil {
		return nil, domain.NewError(domain.KindOrchestration, "marshal unit", err)
	}

	path := filepath.Join(e.cfg.SpecsDir, SpecFileName(b.ID))
	if err := writeSpec(path, doc); err != nil {
		return nil, domain.NewError(domain.KindOrchestration, "write unit", err)
	}
	return &Spec{
		BatchID:   b.ID,
		Project:   ProjectName(b.ID),
		Path:      path,
		WorkerEnv: env,
		Document:  doc,
	}, nil
}

// Start launches the worker process and returns immediately
func (e *ProcessEnvironment) Start(ctx context.Context, spec *Spec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, running := e.procs[spec.BatchID]; running {
		return domain.Errorf(domain.KindOrchestration, "start", "%s already started", spec.Project)
	}

	outPath := filepath.Join(filepath.Dir(spec.Path), spec.Project+".out")
	out, err := os.Create(outPath)
	if err != nil {
		return domain.NewError(domain.KindOrchestration, "start", err)
	}

	cmd := exec.Command(e.cfg.Worker.Binary, e.cfg.Worker.Args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = os.Environ()
	keys := make([]string, 0, len(spec.WorkerEnv))
	for k := range spec.WorkerEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, spec.WorkerEnv[k]))
	}

	if err := cmd.Start(); err != nil {
		out.Close()
		return domain.NewError(domain.KindOrchestration, "start", fmt.Errorf("starting command: %w", err))
	}
	e.log.Debugw("worker process started", "project", spec.Project, "pid", cmd.Process.Pid)

	p := &process{cmd: cmd, out: out, done: make(chan struct{})}
	e.procs[spec.BatchID] = p
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return nil
}

// Stop kills the worker if it is still alive and waits for it to exit
func (e *ProcessEnvironment) Stop(ctx context.Context, spec *Spec) error {
	e.mu.Lock()
	p, ok := e.procs[spec.BatchID]
	delete(e.procs, spec.BatchID)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	defer p.out.Close()

	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil {
		return domain.NewError(domain.KindOrchestration, "stop", err)
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return domain.NewError(domain.KindOrchestration, "stop", ctx.Err())
	}
}

// ExitStatus reports whether the batch's worker has exited and with which error
func (e *ProcessEnvironment) ExitStatus(batchID int) (bool, error) {
	e.mu.Lock()
	p, ok := e.procs[batchID]
	e.mu.Unlock()
	if !ok {
		return false, nil
	}
	select {
	case <-p.done:
		return true, p.err
	default:
		return false, nil
	}
}
