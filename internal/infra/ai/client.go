package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tg-post-planner/internal/infra/metrics"
)

const defaultBaseURL = "https://llm.api.cloud.yandex.net/foundationModels/v1"

// Client выполняет запросы к сервису текстовой генерации.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	folderID string
}

// NewClient создаёт клиента генерации.
func NewClient(apiKey, folderID, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout + 5*time.Second},
		baseURL:  baseURL,
		apiKey:   apiKey,
		folderID: folderID,
	}
}

// Message представляет реплику в диалоге.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	// RoleSystem системная инструкция.
	RoleSystem = "system"
	// RoleUser сообщение пользователя.
	RoleUser = "user"
)

// CompletionRequest описывает тело запроса.
type CompletionRequest struct {
	ModelURI string `json:"modelUri"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"maxTokens,string"`
	} `json:"completionOptions"`
	Messages []Message `json:"messages"`
}

// CompletionResponse описывает ответ модели.
type CompletionResponse struct {
	Result struct {
		Alternatives []struct {
			Message Message `json:"message"`
		} `json:"alternatives"`
	} `json:"result"`
}

// ModelURI возвращает URI модели в каталоге клиента.
func (c *Client) ModelURI(model string) string {
	if model == "" {
		model = "yandexgpt-lite/latest"
	}
	return fmt.Sprintf("gpt://%s/%s", c.folderID, model)
}

// Complete выполняет запрос генерации и возвращает текст первой альтернативы.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("сериализация запроса: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Api-Key "+c.apiKey)
	httpReq.Header.Set("x-folder-id", c.folderID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.ObserveNetworkRequest("ai", "completion", req.ModelURI, start, err)
	if err != nil {
		return "", fmt.Errorf("запрос генерации: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("чтение ответа: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("сервис генерации вернул %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed CompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("распаковка ответа: %w", err)
	}
	metrics.LLMGenerationDuration.WithLabelValues(req.ModelURI).Observe(time.Since(start).Seconds())
	if len(parsed.Result.Alternatives) == 0 {
		return "", fmt.Errorf("пустой ответ генерации")
	}
	return strings.TrimSpace(parsed.Result.Alternatives[0].Message.Text), nil
}
