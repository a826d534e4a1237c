package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// QueryLoader locates query sources under Root. An engine-specific dialect
// file takes precedence over the generic one:
//
//	<root>/<benchmark>/<engine>/<n>.sql
//	<root>/<benchmark>/<n>.sql
type QueryLoader struct {
	Root string
}

// Candidates returns the paths tried for one query, in order
func (l QueryLoader) Candidates(benchmark, engine string, n int) []string {
	file := fmt.Sprintf("%d.sql", n)
	return []string{
		filepath.Join(l.Root, benchmark, engine, file),
		filepath.Join(l.Root, benchmark, file),
	}
}

// Load returns the text of query n
func (l QueryLoader) Load(benchmark, engine string, n int) (string, error) {
	candidates := l.Candidates(benchmark, engine, n)
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", domain.NewError(domain.KindQueryLoad, "load query", err)
		}
	}
	return "", domain.Errorf(domain.KindQueryLoad, "load query",
		"query %d not found (tried %s)", n, strings.Join(candidates, ", "))
}
