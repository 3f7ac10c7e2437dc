package cmd

import (
	"log/slog"
	"os"

	"github.com/relight/relight/envconfig"
	"github.com/relight/relight/logutil"
)

func slogSetup() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
}
