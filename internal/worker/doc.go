// Package worker выполняет browser-tasks из локальной очереди.
//
// # Обзор
//
// Пакет состоит из двух уровней:
//
//   - Executor — выполняет одну task и всегда возвращает
//     domain.ExecutionResult (ошибки не выходят за его границу)
//   - Processor — цикл диспетчеризации: claim из repo.TaskStore,
//     Executor, доставка результата в controller, терминальный переход
//
// # Executor
//
// Порядок выполнения task:
//
//  1. Валидация: тип из Registry, URL абсолютный http/https.
//     Ошибка валидации не захватывает страницу браузера.
//  2. Acquire страницы у browser.Provider (kind = тип task).
//  3. Strategy для типа task: website_html или lighthouse_html.
//  4. Release страницы на любом пути выхода, включая панику стратегии.
//
// Ошибка стратегии классифицируется в domain.ErrorKind:
//
//	ErrValidation            → validation
//	browser.ErrChallengeBlocked → challenge_blocked
//	browser.ErrNavigationFailed → navigation
//	ошибка Acquire           → browser
//	прочее                   → execution
//
// # Processor
//
//	p := worker.NewProcessor(worker.ProcessorConfig{
//	    Store:         store,
//	    Executor:      executor,
//	    Submitter:     submitter,
//	    Claimant:      claimant,
//	    MaxConcurrent: 3,
//	    Logger:        logger,
//	})
//
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Stop()
//
// На каждом тике Processor захватывает не больше free = MaxConcurrent - active
// tasks. Каждая task выполняется в своей горутине; ошибка одной task
// не останавливает цикл. Stop прекращает claim и ждёт задачи в работе;
// StopContext ждёт их до отмены ctx, затем отменяет оставшиеся.
//
// # Недоставленный результат
//
// Если Submitter исчерпал попытки, поведение задаёт DeliveryPolicy:
//   - "requeue" — task остаётся processing, stuck-sweep вернёт её в pending
//   - "fail" — task переводится в failed
//
// Task с ошибкой валидации всегда переводится в failed.
package worker
