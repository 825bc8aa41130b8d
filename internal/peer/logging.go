package peer

import (
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// slogFactory routes pion's internal logs into the process slog handler.
type slogFactory struct{}

func (slogFactory) NewLogger(scope string) logging.LeveledLogger {
	return &slogLogger{logger: slog.Default().With("pion", scope)}
}

type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) Trace(msg string)                  { l.logger.Debug(msg) }
func (l *slogLogger) Tracef(f string, args ...any)      { l.logger.Debug(fmt.Sprintf(f, args...)) }
func (l *slogLogger) Debug(msg string)                  { l.logger.Debug(msg) }
func (l *slogLogger) Debugf(f string, args ...any)      { l.logger.Debug(fmt.Sprintf(f, args...)) }
func (l *slogLogger) Info(msg string)                   { l.logger.Info(msg) }
func (l *slogLogger) Infof(f string, args ...any)       { l.logger.Info(fmt.Sprintf(f, args...)) }
func (l *slogLogger) Warn(msg string)                   { l.logger.Warn(msg) }
func (l *slogLogger) Warnf(f string, args ...any)       { l.logger.Warn(fmt.Sprintf(f, args...)) }
func (l *slogLogger) Error(msg string)                  { l.logger.Error(msg) }
func (l *slogLogger) Errorf(f string, args ...any)      { l.logger.Error(fmt.Sprintf(f, args...)) }
