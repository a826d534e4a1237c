package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Marker statuses
const (
	MarkerFinished = "finished"
	MarkerFailed   = "failed"
)

// Marker is the explicit completion signal a worker writes once its result
// artifact is in place, or when it gives up before producing one
type Marker struct {
	Batch      int       `json:"batch"`
	Status     string    `json:"status"`
	Rows       int       `json:"rows"`
	FailedRows int       `json:"failed_rows"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// WriteMarker writes the marker atomically
func WriteMarker(path string, m Marker) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// ReadMarker loads a marker file
func ReadMarker(path string) (Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("parsing marker %s: %w", path, err)
	}
	switch m.Status {
	case MarkerFinished, MarkerFailed:
	default:
		return Marker{}, fmt.Errorf("marker %s: unknown status %q", path, m.Status)
	}
	return m, nil
}

// Clear removes the result artifact at resultPath and its marker so a
// relaunched batch cannot be completed by files from an earlier run
func Clear(resultPath string) error {
	for _, path := range []string{resultPath, domain.MarkerPath(resultPath)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
