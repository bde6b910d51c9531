package controller

import (
	"errors"
	"fmt"
)

// ErrDelivery — результат не доставлен после всех попыток.
var ErrDelivery = errors.New("result delivery failed")

// StatusError — controller ответил не-2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("controller returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("controller returned HTTP %d: %s", e.Code, e.Body)
}
