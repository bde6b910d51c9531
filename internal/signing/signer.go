package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// Заголовки подписанного канала.
const (
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// DefaultWindow — допустимое расхождение timestamp по умолчанию.
const DefaultWindow = 300 * time.Second

// Sign вычисляет lowercase hex HMAC-SHA256(secret, timestamp).
func Sign(secret []byte, timestamp string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// Signer подписывает и проверяет пары (timestamp, signature) общим секретом.
type Signer struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

// Option — опция Signer.
type Option func(*Signer)

// WithWindow задаёт окно допустимого расхождения timestamp.
func WithWindow(window time.Duration) Option {
	return func(s *Signer) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner создаёт Signer.
func NewSigner(secret []byte, opts ...Option) *Signer {
	s := &Signer{
		secret: append([]byte(nil), secret...),
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window возвращает окно допустимого расхождения.
func (s *Signer) Window() time.Duration {
	return s.window
}

// Headers создаёт свежую пару (timestamp, signature).
func (s *Signer) Headers() (timestamp, signature string) {
	timestamp = strconv.FormatInt(s.now().Unix(), 10)
	return timestamp, Sign(s.secret, timestamp)
}

// Apply записывает свежую подпись в заголовки.
func (s *Signer) Apply(h http.Header) {
	ts, sig := s.Headers()
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderSignature, sig)
}

// SignRequest подписывает исходящий запрос.
func (s *Signer) SignRequest(req *http.Request) {
	s.Apply(req.Header)
}

// Verify проверяет подпись и свежесть timestamp.
//
// Порядок: наличие заголовков → формат → HMAC (constant-time) → окно.
// Неверная подпись всегда INVALID_SIGNATURE, даже если timestamp просрочен.
func (s *Signer) Verify(timestamp, signature string) error {
	if timestamp == "" || signature == "" {
		return reject(ReasonMissingHeaders)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return reject(ReasonMalformedTimestamp)
	}

	if decoded, err := hex.DecodeString(signature); err != nil || len(decoded) != sha256.Size {
		return reject(ReasonMalformedSignature)
	}

	// Сравниваем строки: на проводе только lowercase hex.
	if !hmac.Equal([]byte(signature), []byte(Sign(s.secret, timestamp))) {
		return reject(ReasonInvalidSignature)
	}

	skew := s.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > s.window {
		return reject(ReasonTimestampExpired)
	}

	return nil
}

// VerifyHeaders проверяет подпись из заголовков.
func (s *Signer) VerifyHeaders(h http.Header) error {
	return s.Verify(h.Get(HeaderTimestamp), h.Get(HeaderSignature))
}

// VerifyResponse проверяет подпись ответа контроллера.
func (s *Signer) VerifyResponse(resp *http.Response) error {
	return s.VerifyHeaders(resp.Header)
}
