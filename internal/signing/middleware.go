package signing

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorBody — тело ответа 401.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Reason  Reason `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

// Middleware проверяет подпись входящих запросов и подписывает ответы.
//
// Подпись ответа выставляется до передачи управления обработчику,
// поэтому её получают и успешные ответы, и отказы 401.
func Middleware(s *Signer, logger *slog.Logger) func(http.Handler) http.Handler {
	return MiddlewareWithHook(s, logger, nil)
}

// MiddlewareWithHook — Middleware, который дополнительно вызывает onReject для каждого отказа.
func MiddlewareWithHook(s *Signer, logger *slog.Logger, onReject func(Reason)) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.Apply(w.Header())

			if err := s.VerifyHeaders(r.Header); err != nil {
				reason := ReasonOf(err)
				logger.Warn("rejected unsigned request",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"reason", reason,
				)
				if onReject != nil {
					onReject(reason)
				}

				var body errorBody
				body.Error.Code = ErrUnauthenticated.Error()
				body.Error.Reason = reason
				body.Error.Message = err.Error()

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(body)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ParseRejection извлекает причину отказа из тела ответа 401.
// Возвращает AuthError; если тело не разобрано — с причиной INVALID_SIGNATURE.
func ParseRejection(data []byte) error {
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Reason != "" {
		return reject(body.Error.Reason)
	}
	return reject(ReasonInvalidSignature)
}
