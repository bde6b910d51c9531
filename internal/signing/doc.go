// Package signing реализует подписанный канал между воркером и контроллером.
//
// # Протокол
//
// Каждый запрос и каждый ответ несут два заголовка:
//
//	X-Timestamp: <unix seconds, десятичная строка>
//	X-Signature: <lowercase hex HMAC-SHA256(secret, X-Timestamp)>
//
// Проверяющая сторона пересчитывает HMAC по полученному timestamp,
// сравнивает его с подписью за константное время и отдельно проверяет,
// что |now - t| не превышает окно (по умолчанию 300 секунд).
// Обе проверки обязательны; иначе вызов отклоняется с UNAUTHENTICATED.
//
// Просроченный timestamp при верной подписи даёт отдельную причину
// TIMESTAMP_EXPIRED, чтобы клиент мог отличить рассинхрон часов от подделки.
//
// # Компоненты
//
//   - Signer — подпись и проверка пар (timestamp, signature)
//   - Middleware — проверка входящих запросов и подпись ответов
//   - SignRequest / VerifyResponse — клиентская сторона
package signing
