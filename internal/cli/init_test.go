package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"

	applog "centsible/internal/log"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level     string
		debugOn   bool
		component string
	}{
		{"debug", true, applog.ComponentApp},
		{"info", false, applog.ComponentWorker},
		{"nonsense", false, applog.ComponentApp},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.level)
			logger := SetupLogger(tt.component)
			if logger.Component() != tt.component {
				t.Fatalf("component = %q", logger.Component())
			}
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debugOn {
				t.Fatalf("debug enabled = %v, want %v", got, tt.debugOn)
			}
		})
	}
}

func TestRunCleanup(t *testing.T) {
	called := false
	runCleanup(applog.Discard(), time.Second, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("cleanup context has no deadline")
		}
		called = true
	})
	if !called {
		t.Fatal("cleanup not run")
	}

	runCleanup(applog.Discard(), time.Millisecond, func(ctx context.Context) { <-ctx.Done() })
	runCleanup(applog.Discard(), time.Second, nil)
}
