package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"bad settings", domain.Errorf(domain.KindConfiguration, "load settings", "QUERY_START is required"), exitConfiguration},
		{"database never ready", fmt.Errorf("worker: %w", domain.Errorf(domain.KindReadinessTimeout, "wait ready", "gave up after 2m0s")), exitNotReady},
		{"flush failed", errors.New("writing results: disk full"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
