// Package notify shows desktop notifications.
//
// On Linux notifications go to org.freedesktop.Notifications on the
// session bus. Without a bus, and on other platforms, they are logged.
package notify

import (
	"errors"
	"log/slog"

	"macrorec/internal/logging"
)

// AppName is reported to the notification server.
const AppName = "macrorec"

// ErrUnavailable is returned when no notification service can be reached.
var ErrUnavailable = errors.New("desktop notifications unavailable")

// Notifier delivers user-facing notifications.
type Notifier interface {
	Notify(summary, body string) error
	Close() error
}

// New returns the platform notifier, or a LogNotifier when notifications
// are disabled or the platform service is unavailable.
func New(enabled bool, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = logging.Default().WithComponent("notify")
	}
	if !enabled {
		return LogNotifier{Log: logger}
	}
	n, err := newPlatformNotifier()
	if err != nil {
		logger.Debug("desktop notifications unavailable, logging instead", "error", err)
		return LogNotifier{Log: logger}
	}
	return n
}

// LogNotifier logs notifications.
type LogNotifier struct {
	Log *slog.Logger
}

// Notify logs summary and body.
func (n LogNotifier) Notify(summary, body string) error {
	n.Log.Info(summary, "body", body)
	return nil
}

// Close does nothing.
func (LogNotifier) Close() error { return nil }

// Func adapts a function to Notifier.
type Func func(summary, body string) error

// Notify calls f.
func (f Func) Notify(summary, body string) error { return f(summary, body) }

// Close does nothing.
func (Func) Close() error { return nil }
