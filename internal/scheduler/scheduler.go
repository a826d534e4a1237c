// Package scheduler runs the admission loop that launches batches into
// execution units while keeping at most MaxParallel of them alive.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/sqlbench/internal/artifact"
	"github.com/hochfrequenz/sqlbench/internal/completion"
	"github.com/hochfrequenz/sqlbench/internal/domain"
	"github.com/hochfrequenz/sqlbench/internal/execenv"
	"github.com/hochfrequenz/sqlbench/internal/notify"
	"github.com/hochfrequenz/sqlbench/internal/observer"
)

// previewSize is the number of queued batches shown in a status report
const previewSize = 5

// defaultTeardownTimeout bounds the cleanup after an interruption
const defaultTeardownTimeout = 2 * time.Minute

// Config holds the loop parameters
type Config struct {
	MaxParallel  int
	PollInterval time.Duration
}

// Recorder persists batch state changes
type Recorder interface {
	RecordBatch(b *domain.Batch) error
}

// StatusReporter receives one snapshot per scheduling cycle
type StatusReporter interface {
	ReportStatus(s Status)
}

// Status is a read-only snapshot of the scheduler state
type Status struct {
	At        time.Time
	Running   []*domain.Batch
	Queued    int
	Preview   []*domain.Batch
	Finished  int
	Failed    int
	FreeSlots int
}

// Summary is the outcome of a run
type Summary struct {
	Finished int
	Failed   int
	Elapsed  time.Duration
}

type unit struct {
	batch *domain.Batch
	spec  *execenv.Spec
}

// Scheduler launches queued batches in FIFO order through an Environment
// and reaps them once the Detector reports them done
type Scheduler struct {
	cfg      Config
	env      execenv.Environment
	detector completion.Detector
	log      *zap.SugaredLogger

	recorder Recorder
	reporter StatusReporter
	observer *observer.Observer
	notifier notify.Notifier
	runID    string

	pending []*domain.Batch
	running []*unit
	slots   *Slots
	warned  map[int]bool
	summary Summary
	started time.Time

	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
	teardownTimeout time.Duration
}

// New creates a scheduler for the given queued batches
func New(cfg Config, batches []*domain.Batch, env execenv.Environment, detector completion.Detector, log *zap.SugaredLogger) (*Scheduler, error) {
	if cfg.MaxParallel < 1 {
		return nil, domain.Errorf(domain.KindConfiguration, "scheduler", "max_parallel must be at least 1, got %d", cfg.MaxParallel)
	}
	if cfg.PollInterval <= 0 {
		return nil, domain.Errorf(domain.KindConfiguration, "scheduler", "poll_interval must be positive, got %s", cfg.PollInterval)
	}

	seen := make(map[int]bool, len(batches))
	pending := make([]*domain.Batch, 0, len(batches))
	for _, b := range batches {
		if seen[b.ID] {
			return nil, domain.Errorf(domain.KindConfiguration, "scheduler", "batch %d queued twice", b.ID)
		}
		if b.Status != domain.BatchQueued {
			return nil, domain.Errorf(domain.KindConfiguration, "scheduler", "batch %d is %s, not queued", b.ID, b.Status)
		}
		seen[b.ID] = true
		pending = append(pending, b)
	}

	return &Scheduler{
		cfg:             cfg,
		env:             env,
		detector:        detector,
		log:             log,
		pending:         pending,
		slots:           NewSlots(cfg.MaxParallel),
		warned:          make(map[int]bool),
		now:             time.Now,
		sleep:           sleepContext,
		teardownTimeout: defaultTeardownTimeout,
	}, nil
}

// SetRecorder sets the ledger that receives every status transition
func (s *Scheduler) SetRecorder(r Recorder) { s.recorder = r }

// SetReporter sets the per-cycle status consumer
func (s *Scheduler) SetReporter(r StatusReporter) { s.reporter = r }

// SetObserver enables stuck-batch warnings and run metrics
func (s *Scheduler) SetObserver(o *observer.Observer) { s.observer = o }

// SetNotifier sets where the end-of-run summary is sent
func (s *Scheduler) SetNotifier(n notify.Notifier) { s.notifier = n }

// SetRunID names the ledger run in notifications
func (s *Scheduler) SetRunID(id string) { s.runID = id }

// Run loops until every batch is terminal or ctx is cancelled. On
// cancellation the running units are torn down and ctx.Err() is returned.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	s.started = s.now()
	s.log.Infow("scheduler started",
		"batches", len(s.pending),
		"max_parallel", s.cfg.MaxParallel,
		"poll_interval", s.cfg.PollInterval,
	)
	for _, b := range s.pending {
		s.record(b)
	}

	for {
		if err := ctx.Err(); err != nil {
			return s.abort(err)
		}

		s.emitStatus()
		s.reap(ctx)
		if err := s.checkBound(); err != nil {
			return s.abort(err)
		}
		s.admit(ctx)
		if err := s.checkBound(); err != nil {
			return s.abort(err)
		}

		if len(s.pending) == 0 && len(s.running) == 0 {
			break
		}
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			return s.abort(err)
		}
	}

	s.summary.Elapsed = s.now().Sub(s.started)
	s.emitStatus()
	s.log.Infow("scheduler finished",
		"finished", s.summary.Finished,
		"failed", s.summary.Failed,
		"elapsed", s.summary.Elapsed,
	)
	s.notify("Benchmark run finished",
		fmt.Sprintf("benchmark run finished: %d finished, %d failed", s.summary.Finished, s.summary.Failed),
		summaryType(s.summary))
	return s.summary, nil
}

// Status returns the current snapshot
func (s *Scheduler) Status() Status {
	st := Status{
		At:        s.now(),
		Running:   make([]*domain.Batch, 0, len(s.running)),
		Queued:    len(s.pending),
		Finished:  s.summary.Finished,
		Failed:    s.summary.Failed,
		FreeSlots: s.slots.Available(),
	}
	for _, u := range s.running {
		st.Running = append(st.Running, u.batch)
	}
	n := min(previewSize, len(s.pending))
	st.Preview = append([]*domain.Batch(nil), s.pending[:n]...)
	return st
}

func (s *Scheduler) emitStatus() {
	st := s.Status()
	next := make([]int, 0, len(st.Preview))
	for _, b := range st.Preview {
		next = append(next, b.ID)
	}
	s.log.Infow("status",
		"running", len(st.Running),
		"queued", st.Queued,
		"finished", st.Finished,
		"failed", st.Failed,
		"free_slots", st.FreeSlots,
		"next", next,
	)
	if s.reporter != nil {
		s.reporter.ReportStatus(st)
	}
}

// reap stops and retires every running batch the detector reports done
func (s *Scheduler) reap(ctx context.Context) {
	still := s.running[:0]
	for _, u := range s.running {
		outcome := s.detector.Check(u.batch)
		if outcome == completion.Pending {
			s.warnIfStuck(u.batch)
			still = append(still, u)
			continue
		}

		if err := s.env.Stop(ctx, u.spec); err != nil {
			s.log.Errorw("failed to stop execution unit",
				"batch", u.batch.ID,
				"project", u.spec.Project,
				"kind", domain.KindOrchestration,
				"error", err,
			)
			u.batch.Error = err.Error()
		}

		if outcome == completion.Finished {
			s.retire(u.batch, domain.BatchFinished)
		} else {
			if u.batch.Error == "" {
				u.batch.Error = "worker reported failure"
			}
			s.retire(u.batch, domain.BatchFailed)
		}
		s.slots.Release()
	}
	clear(s.running[len(still):])
	s.running = still
}

// admit launches queued batches while slots are free
func (s *Scheduler) admit(ctx context.Context) {
	for len(s.pending) > 0 && s.slots.Acquire() {
		b := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]

		spec, launchedAt, err := s.launch(ctx, b)
		if err != nil {
			s.log.Errorw("failed to launch batch", "batch", b.ID, "engine", b.Engine, "error", err)
			b.Error = err.Error()
			s.retire(b, domain.BatchFailed)
			s.slots.Release()
			continue
		}

		s.transitionAt(b, domain.BatchRunning, launchedAt)
		s.running = append(s.running, &unit{batch: b, spec: spec})
		s.log.Infow("batch launched",
			"batch", b.ID,
			"benchmark", b.Benchmark,
			"engine", b.Engine,
			"queries", b.Range.String(),
			"project", spec.Project,
		)
	}
}

// launch starts the unit for b and returns the time taken just before the
// start, which is the earliest a marker of this launch can carry
func (s *Scheduler) launch(ctx context.Context, b *domain.Batch) (*execenv.Spec, time.Time, error) {
	if err := artifact.Clear(b.ResultPath); err != nil {
		return nil, time.Time{}, fmt.Errorf("clearing old results of batch %d: %w", b.ID, err)
	}
	spec, err := s.env.Materialize(b)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("materializing batch %d: %w", b.ID, err)
	}
	launchedAt := s.now()
	if err := s.env.Start(ctx, spec); err != nil {
		// A partial start can leave containers behind
		if stopErr := s.env.Stop(ctx, spec); stopErr != nil {
			s.log.Warnw("cleanup after failed start", "batch", b.ID, "error", stopErr)
		}
		return nil, time.Time{}, fmt.Errorf("starting batch %d: %w", b.ID, err)
	}
	return spec, launchedAt, nil
}

func (s *Scheduler) checkBound() error {
	running := len(s.running)
	if running > s.cfg.MaxParallel || running+s.slots.Available() != s.slots.Capacity() {
		return fmt.Errorf("scheduler: %d running batches with %d free slots violate the bound of %d",
			running, s.slots.Available(), s.cfg.MaxParallel)
	}
	return nil
}

// abort tears down every running unit in parallel and marks it failed.
// Queued batches stay queued.
func (s *Scheduler) abort(cause error) (Summary, error) {
	s.log.Warnw("scheduler interrupted, tearing down running units",
		"running", len(s.running),
		"queued", len(s.pending),
		"cause", cause,
	)

	ctx, cancel := context.WithTimeout(context.Background(), s.teardownTimeout)
	defer cancel()

	var g errgroup.Group
	for _, u := range s.running {
		g.Go(func() error {
			if err := s.env.Stop(ctx, u.spec); err != nil {
				s.log.Errorw("teardown failed", "batch", u.batch.ID, "project", u.spec.Project, "error", err)
				return fmt.Errorf("stopping batch %d: %w", u.batch.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Errorw("teardown incomplete", "error", err)
	}

	for _, u := range s.running {
		u.batch.Error = fmt.Sprintf("interrupted: %v", cause)
		s.retire(u.batch, domain.BatchFailed)
		s.slots.Release()
	}
	s.running = nil
	s.summary.Elapsed = s.now().Sub(s.started)

	s.notify("Benchmark run interrupted",
		fmt.Sprintf("benchmark run interrupted: %d finished, %d failed, %d never launched", s.summary.Finished, s.summary.Failed, len(s.pending)),
		notify.NotifyError)
	return s.summary, cause
}

// retire moves a batch into a terminal status and counts it
func (s *Scheduler) retire(b *domain.Batch, to domain.BatchStatus) {
	s.transition(b, to)
	switch b.Status {
	case domain.BatchFinished:
		s.summary.Finished++
		s.log.Infow("batch finished", "batch", b.ID, "engine", b.Engine)
	case domain.BatchFailed:
		s.summary.Failed++
		s.log.Warnw("batch failed", "batch", b.ID, "engine", b.Engine, "error", b.Error)
	}
	delete(s.warned, b.ID)
	if s.observer != nil {
		s.observer.RecordCompletion(b)
	}
}

func (s *Scheduler) transition(b *domain.Batch, to domain.BatchStatus) {
	s.transitionAt(b, to, s.now())
}

func (s *Scheduler) transitionAt(b *domain.Batch, to domain.BatchStatus, at time.Time) {
	if err := b.Transition(to, at); err != nil {
		s.log.Errorw("invalid batch transition", "batch", b.ID, "error", err)
		return
	}
	s.record(b)
}

func (s *Scheduler) record(b *domain.Batch) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordBatch(b); err != nil {
		s.log.Warnw("failed to record batch", "batch", b.ID, "status", b.Status, "error", err)
	}
}

func (s *Scheduler) warnIfStuck(b *domain.Batch) {
	if s.observer == nil || s.warned[b.ID] {
		return
	}
	if s.observer.IsStuck(b, s.now()) {
		s.warned[b.ID] = true
		s.log.Warnw("batch appears stuck",
			"batch", b.ID,
			"engine", b.Engine,
			"running_for", s.now().Sub(*b.LaunchedAt).Round(time.Second),
		)
	}
}

func (s *Scheduler) notify(title, message string, typ notify.NotificationType) {
	if s.notifier == nil {
		return
	}
	n := notify.Notification{
		Title:    title,
		Message:  message,
		Type:     typ,
		RunID:    s.runID,
		Finished: s.summary.Finished,
		Failed:   s.summary.Failed,
		Elapsed:  s.summary.Elapsed,
	}
	if err := s.notifier.Send(n); err != nil {
		s.log.Warnw("failed to send notification", "title", title, "error", err)
	}
}

func summaryType(sum Summary) notify.NotificationType {
	if sum.Failed > 0 {
		return notify.NotifyWarning
	}
	return notify.NotifySuccess
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
