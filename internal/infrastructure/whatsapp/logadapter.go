package whatsapp

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// waLogger bridges whatsmeow's logger interface onto slog so library
// output lands in the same rotating log file as everything else.
type waLogger struct {
	l *slog.Logger
}

func newWALogger(l *slog.Logger) waLog.Logger {
	return &waLogger{l: l}
}

func (w *waLogger) Errorf(msg string, args ...interface{}) {
	w.l.Error(fmt.Sprintf(msg, args...))
}

func (w *waLogger) Warnf(msg string, args ...interface{}) {
	w.l.Warn(fmt.Sprintf(msg, args...))
}

func (w *waLogger) Infof(msg string, args ...interface{}) {
	w.l.Info(fmt.Sprintf(msg, args...))
}

func (w *waLogger) Debugf(msg string, args ...interface{}) {
	w.l.Debug(fmt.Sprintf(msg, args...))
}

func (w *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{l: w.l.With("module", module)}
}
