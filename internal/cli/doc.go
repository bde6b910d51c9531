// Package cli реализует инструмент командной строки Harvester.
//
// # Обзор
//
// CLI — клиентская утилита для API воркера. Работает по HTTP и из
// внутренних пакетов импортирует только signing: каждый запрос подписан
// общим секретом, подпись каждого ответа проверяется.
//
// # Ключевые компоненты
//
// ## Client
//
// Подписанный HTTP-клиент. Разбирает ответы (data, list, error),
// отказ 401 превращает в signing.AuthError с причиной.
//
//	client := cli.NewClient("http://localhost:8082", secret)
//	stats, err := client.Stats()
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения — в stderr:
// harvester task list --json | jq .
//
// ## Commands
//
//   - ping
//   - stats
//   - task: enqueue, show, list
package cli
