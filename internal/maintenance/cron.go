package maintenance

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger адаптирует slog к интерфейсу cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// newCron создаёт планировщик, пропускающий запуск, пока предыдущий не завершён.
func newCron(logger *slog.Logger) *cron.Cron {
	cl := cronLogger{logger: logger}
	return cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}
