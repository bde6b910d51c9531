// Package controller — исходящая сторона протокола worker ↔ controller.
//
// Все вызовы подписываются signing.Signer (X-Timestamp, X-Signature).
//
//   - Client — подписанный JSON-клиент; 401 превращается в signing.AuthError
//     и никогда не повторяется.
//   - Submitter — доставка результата task на POST /task-result с retry
//     и экспоненциальной задержкой; исчерпание попыток даёт ErrDelivery.
//   - Handshake — однократный POST /request-work при старте; при ошибках
//     повторяет с линейной задержкой и в итоге возвращает пустой список
//     (fail-open: воркер стартует в любом случае).
package controller
