package envconfig

import (
	"log/slog"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("RELIGHT_DEBUG", "")
	t.Setenv("RELIGHT_NUM_PARALLEL", "")

	LoadConfig()

	if Debug {
		t.Error("Debug should default to false")
	}

	if NumParallel < 1 {
		t.Errorf("NumParallel = %d, want at least 1", NumParallel)
	}

	if LogLevel() != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", LogLevel())
	}
}

func TestLoadConfigDebug(t *testing.T) {
	t.Setenv("RELIGHT_DEBUG", "1")

	LoadConfig()

	if !Debug {
		t.Error("RELIGHT_DEBUG=1 should enable Debug")
	}

	if LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", LogLevel())
	}
}

func TestLoadConfigNumParallel(t *testing.T) {
	t.Setenv("RELIGHT_NUM_PARALLEL", "3")
	LoadConfig()
	if NumParallel != 3 {
		t.Errorf("NumParallel = %d, want 3", NumParallel)
	}

	// invalid values fall back to the default
	t.Setenv("RELIGHT_NUM_PARALLEL", "-2")
	LoadConfig()
	if NumParallel < 1 {
		t.Errorf("NumParallel = %d after invalid input", NumParallel)
	}
}
