package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Harvester/internal/signing"
)

// maxErrorBody — сколько байт тела ошибки сохранять в StatusError.
const maxErrorBody = 512

// ClientConfig — параметры Client.
type ClientConfig struct {
	BaseURL string
	Signer  *signing.Signer
	Timeout time.Duration

	// VerifyResponses включает проверку подписи ответов.
	VerifyResponses bool

	// HTTPClient подменяет http.Client (тесты).
	HTTPClient *http.Client
}

// Client — подписанный HTTP-клиент controller.
type Client struct {
	baseURL         string
	signer          *signing.Signer
	verifyResponses bool
	httpClient      *http.Client
}

// NewClient создаёт Client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		signer:          cfg.Signer,
		verifyResponses: cfg.VerifyResponses,
		httpClient:      httpClient,
	}
}

// PostJSON отправляет подписанный POST и декодирует JSON-ответ в out (если не nil).
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Do выполняет подписанный запрос.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.signer.SignRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return signing.ParseRejection(data)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: truncate(string(data), maxErrorBody)}
	}

	if c.verifyResponses {
		if err := c.signer.VerifyResponse(resp); err != nil {
			return fmt.Errorf("response signature: %w", err)
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
