package wgcore

import (
	"log/slog"

	"github.com/gogpu/wgcore/internal/logging"
)

// SetLogger configures the logger for wgcore and all its sub-packages.
// By default, wgcore produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by wgcore:
//   - [slog.LevelDebug]: per-event diagnostics (future tracked, wait result)
//   - [slog.LevelInfo]: lifecycle events (instance created, device opened)
//   - [slog.LevelWarn]: non-fatal issues (stale wire reply, device lost)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	wgcore.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	wgcore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by wgcore.
// Sub-packages (event/, wire/, backend/) share the same logger through
// internal/logging without introducing import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
