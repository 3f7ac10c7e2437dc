package envconfig

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
)

var (
	// Set via RELIGHT_DEBUG in the environment
	Debug bool
	// Set via RELIGHT_NUM_PARALLEL in the environment
	NumParallel int
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"RELIGHT_DEBUG":        {"RELIGHT_DEBUG", Debug, "Show additional debug information (e.g. RELIGHT_DEBUG=1)"},
		"RELIGHT_NUM_PARALLEL": {"RELIGHT_NUM_PARALLEL", NumParallel, "Number of tensors decoded in parallel during conversion"},
	}
}

// LogLevel returns the slog level implied by the current configuration.
func LogLevel() slog.Level {
	if Debug {
		return slog.LevelDebug
	}

	return slog.LevelInfo
}

// LoadConfig reads RELIGHT_* variables from the environment. Invalid values
// fall back to defaults rather than failing.
func LoadConfig() {
	Debug = boolVar("RELIGHT_DEBUG")

	NumParallel = max(1, runtime.NumCPU()/2)
	if n, err := strconv.Atoi(os.Getenv("RELIGHT_NUM_PARALLEL")); err == nil && n > 0 {
		NumParallel = n
	}
}

func boolVar(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}

func init() {
	LoadConfig()
}
