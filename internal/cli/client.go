package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Harvester/internal/signing"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// PingResponse — ответ ping.
type PingResponse struct {
	Status      string `json:"status"`
	WorkerID    string `json:"worker_id"`
	ActiveTasks int    `json:"active_tasks"`
}

// StatsResponse — количество tasks по статусам.
type StatsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	URL          string         `json:"url"`
	Payload      map[string]any `json:"payload,omitempty"`
	Status       string         `json:"status"`
	WorkerID     string         `json:"worker_id,omitempty"`
	ProcessingBy string         `json:"processing_by,omitempty"`
	CreatedAt    string         `json:"created_at"`
	StartedAt    string         `json:"started_at,omitempty"`
	CompletedAt  string         `json:"completed_at,omitempty"`
	DurationMs   *int64         `json:"duration_ms,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// EnqueueItem — результат постановки одной task.
type EnqueueItem struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// --- Request types ---

// TaskInput — task для постановки в очередь.
type TaskInput struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	URL     string         `json:"url"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ListTasksOpts — параметры фильтрации tasks.
type ListTasksOpts struct {
	Status string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — подписанный HTTP-клиент для API воркера.
type Client struct {
	baseURL    string
	signer     *signing.Signer
	httpClient *http.Client
}

// NewClient создаёт клиент. Каждый запрос подписывается, подпись ответа проверяется.
func NewClient(baseURL string, secret []byte) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signing.NewSigner(secret),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping проверяет доступность воркера и общий секрет.
func (c *Client) Ping() (*PingResponse, error) {
	var ping PingResponse
	resp, err := c.do(http.MethodPost, "/api/v1/ping", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&ping); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &ping, nil
}

// Stats возвращает статистику очереди.
func (c *Client) Stats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// --- Tasks ---

// EnqueueTasks ставит tasks в очередь; возвращает результат по каждой.
func (c *Client) EnqueueTasks(tasks ...TaskInput) ([]EnqueueItem, error) {
	body := map[string]any{"tasks": tasks}

	resp, err := c.do(http.MethodPost, "/api/v1/tasks", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 409 несёт те же per-item результаты, что и 201.
	if resp.StatusCode != http.StatusConflict {
		if err := c.checkError(resp); err != nil {
			return nil, err
		}
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	var items []EnqueueItem
	if err := json.Unmarshal(lr.Data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

// GetTask возвращает task по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+url.PathEscape(id), &task)
	return &task, err
}

// ListTasks возвращает tasks, новые первыми.
func (c *Client) ListTasks(opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

// do выполняет подписанный запрос и проверяет подпись ответа.
func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.signer.SignRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		if err := c.signer.VerifyResponse(resp); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("worker response not authentic: %w", err)
		}
	}
	return resp, nil
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		return signing.ParseRejection(data)
	}

	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
