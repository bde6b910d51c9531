// Package maintenance реализует фоновые sweeps над task store.
//
// Два независимых задания на robfig/cron:
//   - stuck sweep   — возвращает в pending tasks, зависшие в processing;
//   - retention sweep — удаляет старые completed/failed tasks.
//
// Использование:
//
//	w := maintenance.New(maintenance.Config{
//	    Store:          store,
//	    StuckInterval:  5 * time.Minute,
//	    StuckThreshold: 15 * time.Minute,
//	    Logger:         logger,
//	})
//	w.Start(ctx)
//	defer w.Stop()
//
// Ошибка одного sweep логируется и не останавливает следующие запуски.
package maintenance
