package execenv

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hochfrequenz/sqlbench/internal/domain"
	"github.com/hochfrequenz/sqlbench/internal/worker"
)

// ContainerResultsDir is where the host results directory is mounted inside
// worker containers
const ContainerResultsDir = "/mnt/results"

// unitNamespace seeds the deterministic unit ids placed on compose labels
var unitNamespace = uuid.MustParse("4f2d5c1e-8a37-4b6e-9d0a-6c1b7e93a2f4")

// CommandRunner runs an external command and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands through os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ComposeConfig configures a ComposeEnvironment
type ComposeConfig struct {
	SpecsDir   string
	ResultsDir string
	Targets    map[string]Target
	Worker     WorkerOptions

	// Command is the compose invocation, "docker compose" by default
	Command []string
	Runner  CommandRunner
}

// ComposeEnvironment runs each batch as a compose project with a worker
// and, for server engines, a database service on a private network
type ComposeEnvironment struct {
	cfg ComposeConfig
	log *zap.SugaredLogger
}

// NewComposeEnvironment creates a compose-backed environment
func NewComposeEnvironment(cfg ComposeConfig, log *zap.SugaredLogger) *ComposeEnvironment {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"docker", "compose"}
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner
	}
	return &ComposeEnvironment{cfg: cfg, log: log}
}

func workerService(id int) string { return fmt.Sprintf("worker_%d", id) }
func dbService(id int) string     { return fmt.Sprintf("db_%d", id) }
func networkName(id int) string   { return fmt.Sprintf("batch_%d_net", id) }

// UnitID is a stable identifier for a batch's unit
func UnitID(b *domain.Batch) uuid.UUID {
	key := fmt.Sprintf("%d/%s/%s/%d-%d/%d", b.ID, b.Benchmark, b.Engine, b.Range.Start, b.Range.End, b.RepeatCount)
	return uuid.NewSHA1(unitNamespace, []byte(key))
}

// Document builds the compose document for a batch without touching disk
func (e *ComposeEnvironment) Document(b *domain.Batch) (*ComposeFile, map[string]string, error) {
	target, err := lookupTarget(e.cfg.Targets, b)
	if err != nil {
		return nil, nil, err
	}
	engine := target.Engine
	conn := engine.Defaults(dbService(b.ID))

	settings := workerSettings(b, conn, engine.Name, e.cfg.Worker,
		ContainerResultsDir+"/"+domain.ResultFileName(b.ID),
		ContainerResultsDir+"/"+domain.LogFileName(b.ID),
	)
	env := settings.Env()
	if !engine.Server {
		env[worker.EnvDBHost] = ""
	}
	if err := checkWorkerEnv(env); err != nil {
		return nil, nil, domain.NewError(domain.KindConfiguration, "materialize", err)
	}

	hostResults, err := filepath.Abs(e.cfg.ResultsDir)
	if err != nil {
		return nil, nil, err
	}
	labels := map[string]string{
		"io.sqlbench.batch": strconv.Itoa(b.ID),
		"io.sqlbench.unit":  UnitID(b).String(),
	}
	net := networkName(b.ID)

	workerSvc := ComposeService{
		Image:         e.cfg.Worker.Image,
		ContainerName: ProjectName(b.ID) + "-worker",
		Environment:   env,
		Volumes:       []string{hostResults + ":" + ContainerResultsDir},
		Networks:      []string{net},
		Labels:        labels,
	}

	builder := NewComposeBuilder(ProjectName(b.ID)).Network(net, labels)
	if engine.Server {
		workerSvc.DependsOn = []string{dbService(b.ID)}
		builder.Service(dbService(b.ID), ComposeService{
			Image:         engine.Image,
			ContainerName: ProjectName(b.ID) + "-db",
			Environment:   engine.ContainerEnv(conn),
			Networks:      []string{net},
			Labels:        labels,
		})
	}
	builder.Service(workerService(b.ID), workerSvc)

	file, err := builder.Build()
	if err != nil {
		return nil, nil, domain.NewError(domain.KindConfiguration, "materialize", err)
	}
	return file, env, nil
}

// Materialize writes compose_batch_<id>.yml, overwriting any previous copy
func (e *ComposeEnvironment) Materialize(b *domain.Batch) (*Spec, error) {
	file, env, err := e.Document(b)
	if err != nil {
		return nil, err
	}
	doc, err := file.Marshal()
	if err != nil {
		return nil, domain.NewError(domain.KindOrchestration, "marshal compose file", err)
	}
	path := filepath.Join(e.cfg.SpecsDir, SpecFileName(b.ID))
	if err := writeSpec(path, doc); err != nil {
		return nil, domain.NewError(domain.KindOrchestration, "write compose file", err)
	}
	return &Spec{
		BatchID:   b.ID,
		Project:   file.Name,
		Path:      path,
		WorkerEnv: env,
		Document:  doc,
	}, nil
}

// Start brings the project up detached
func (e *ComposeEnvironment) Start(ctx context.Context, spec *Spec) error {
	return e.compose(ctx, spec, "up", "-d")
}

// Stop tears the project down, removing its volumes
func (e *ComposeEnvironment) Stop(ctx context.Context, spec *Spec) error {
	return e.compose(ctx, spec, "down", "-v", "--remove-orphans")
}

func (e *ComposeEnvironment) compose(ctx context.Context, spec *Spec, action ...string) error {
	args := append([]string{}, e.cfg.Command[1:]...)
	args = append(args, "-p", spec.Project, "-f", spec.Path)
	args = append(args, action...)

	e.log.Debugw("running compose", "project", spec.Project, "args", args)
	out, err := e.cfg.Runner(ctx, e.cfg.Command[0], args...)
	if err != nil {
		return domain.NewError(domain.KindOrchestration, "compose "+action[0],
			fmt.Errorf("%s: %w: %s", spec.Project, err, strings.TrimSpace(string(out))))
	}
	return nil
}
