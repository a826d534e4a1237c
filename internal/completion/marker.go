package completion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hochfrequenz/sqlbench/internal/artifact"
	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// MarkerDetector reads the completion marker a worker writes next to its
// artifact. A finished marker also requires the artifact to be present.
// Markers naming another batch, or written before the batch was launched,
// are left over from an earlier run and count as pending.
//
// With Watch running, marker events from the results directory are cached
// so most checks avoid touching the filesystem; Check falls back to reading
// the marker when no event was seen.
type MarkerDetector struct {
	log *zap.SugaredLogger

	mu   sync.Mutex
	seen map[string]observed

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewMarkerDetector creates a detector without a watcher
func NewMarkerDetector(log *zap.SugaredLogger) *MarkerDetector {
	return &MarkerDetector{
		log:  log,
		seen: make(map[string]observed),
	}
}

// observed is a marker that resolved to a terminal outcome
type observed struct {
	outcome Outcome
	marker  artifact.Marker
}

// Check implements Detector
func (d *MarkerDetector) Check(b *domain.Batch) Outcome {
	path := b.MarkerPath()

	d.mu.Lock()
	cached, ok := d.seen[path]
	d.mu.Unlock()
	if ok && belongsTo(cached.marker, b) {
		return cached.outcome
	}

	obs, ok := d.read(path, b.ResultPath)
	if !ok {
		return Pending
	}
	d.remember(path, obs)
	if !belongsTo(obs.marker, b) {
		d.log.Debugw("ignoring stale completion marker", "batch", b.ID, "path", path,
			"marker_batch", obs.marker.Batch, "marker_finished_at", obs.marker.FinishedAt)
		return Pending
	}
	return obs.outcome
}

// belongsTo reports whether m was written by the current launch of b
func belongsTo(m artifact.Marker, b *domain.Batch) bool {
	if m.Batch != b.ID {
		return false
	}
	return b.LaunchedAt == nil || !m.FinishedAt.Before(*b.LaunchedAt)
}

func (d *MarkerDetector) read(markerPath, resultPath string) (observed, bool) {
	m, err := artifact.ReadMarker(markerPath)
	if err != nil {
		if !os.IsNotExist(err) {
			d.log.Warnw("unreadable completion marker", "path", markerPath, "error", err)
		}
		return observed{}, false
	}
	if m.Status == artifact.MarkerFailed {
		return observed{outcome: Failed, marker: m}, true
	}
	if !artifactReady(resultPath) {
		d.log.Warnw("marker reports success but artifact is missing", "marker", markerPath, "artifact", resultPath)
		return observed{outcome: Failed, marker: m}, true
	}
	return observed{outcome: Finished, marker: m}, true
}

func (d *MarkerDetector) remember(path string, o observed) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[path] = o
}

// Watch starts caching marker events under dir until ctx is done or Stop is
// called
func (d *MarkerDetector) Watch(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	d.watcher = w
	ctx, d.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				d.handleEvent(event)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.log.Warnw("results watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (d *MarkerDetector) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".done") {
		return
	}
	// Markers are renamed into place, which shows up as a create
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	path := filepath.Clean(event.Name)
	result := strings.TrimSuffix(path, ".done") + ".csv"
	if obs, ok := d.read(path, result); ok {
		d.log.Debugw("completion marker observed", "path", path, "outcome", obs.outcome, "batch", obs.marker.Batch)
		d.remember(path, obs)
	}
}

// Stop ends the watch
func (d *MarkerDetector) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.watcher != nil {
		d.watcher.Close()
	}
}
