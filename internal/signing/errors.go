package signing

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated — запрос или ответ не прошёл проверку подписи.
var ErrUnauthenticated = errors.New("UNAUTHENTICATED")

// Reason — причина отказа в аутентификации.
type Reason string

const (
	ReasonMissingHeaders     Reason = "MISSING_HEADERS"
	ReasonMalformedTimestamp Reason = "MALFORMED_TIMESTAMP"
	ReasonMalformedSignature Reason = "MALFORMED_SIGNATURE"
	ReasonInvalidSignature   Reason = "INVALID_SIGNATURE"
	ReasonTimestampExpired   Reason = "TIMESTAMP_EXPIRED"
)

// AuthError — отказ в аутентификации с причиной.
//
// errors.Is(err, ErrUnauthenticated) истинно для любого AuthError.
type AuthError struct {
	Reason Reason
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnauthenticated, e.Reason)
}

func (e *AuthError) Unwrap() error {
	return ErrUnauthenticated
}

// ReasonOf извлекает причину отказа из ошибки.
// Возвращает пустую строку, если err не AuthError.
func ReasonOf(err error) Reason {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return ""
}

func reject(reason Reason) error {
	return &AuthError{Reason: reason}
}
