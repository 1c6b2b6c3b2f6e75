package yandexgpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"letter-assist/internal/infra/metrics"
)

const defaultBaseURL = "https://llm.api.cloud.yandex.net"

// Client выполняет completion-запросы к YandexGPT.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	folderID string
}

// NewClient создаёт клиента YandexGPT.
func NewClient(apiKey, folderID, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey, folderID: folderID}
}

// Message представляет сообщение в диалоге.
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
	ModelURI          string            `json:"modelUri"`
	CompletionOptions CompletionOptions `json:"completionOptions"`
	Messages          []Message         `json:"messages"`
}

// CompletionOptions задаёт параметры генерации.
type CompletionOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type completionResponse struct {
	Result struct {
		Alternatives []struct {
			Message Message `json:"message"`
		} `json:"alternatives"`
	} `json:"result"`
}

// ModelURI строит идентификатор модели вида gpt://{folder}/{model}/latest.
func (c *Client) ModelURI(model string) string {
	return fmt.Sprintf("gpt://%s/%s/latest", c.folderID, model)
}

// Complete вызывает foundationModels completion и возвращает текст первого варианта.
func (c *Client) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("yandexgpt: api key is empty")
	}

	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Text: systemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Text: userPrompt})

	req := CompletionRequest{
		ModelURI: c.ModelURI(model),
		CompletionOptions: CompletionOptions{
			Stream:      false,
			Temperature: 0.3,
			MaxTokens:   4000,
		},
		Messages: messages,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("yandexgpt: marshal request: %w", err)
	}

	endpoint := c.baseURL + "/foundationModels/v1/completion"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("yandexgpt: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Api-Key "+c.apiKey)
	httpReq.Header.Set("x-folder-id", c.folderID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("yandexgpt", "completion", model, start, err)
		return "", fmt.Errorf("yandexgpt: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("yandexgpt", "completion", model, start, err)
		return "", fmt.Errorf("yandexgpt: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		err = fmt.Errorf("yandexgpt: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody[:min(len(respBody), 512)])))
		metrics.ObserveNetworkRequest("yandexgpt", "completion", model, start, err)
		return "", err
	}

	var completion completionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		metrics.ObserveNetworkRequest("yandexgpt", "completion", model, start, err)
		return "", fmt.Errorf("yandexgpt: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("yandexgpt", "completion", model, start, nil)
	metrics.ObserveLLMGeneration(model, time.Since(start))

	if len(completion.Result.Alternatives) == 0 {
		return "", fmt.Errorf("yandexgpt: пустой ответ модели")
	}
	return completion.Result.Alternatives[0].Message.Text, nil
}
