package queue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

const rabbitPollInterval = time.Second

// RabbitAnalysisQueue держит задачи на анализ писем в RabbitMQ. Трафик
// небольшой, поэтому вместо AMQP-клиента используется Management API:
// publish в default exchange и поллинг /get.
type RabbitAnalysisQueue struct {
	client   *http.Client
	baseURL  *url.URL
	vhost    string
	queue    string
	username string
	password string
}

var _ domain.AnalysisQueue = (*RabbitAnalysisQueue)(nil)

// NewRabbitAnalysisQueue разбирает AMQP URL ради учётных данных и vhost;
// адрес Management API берётся из managementURL либо выводится из хоста
// брокера на стандартном порту 15672.
func NewRabbitAnalysisQueue(amqpURL, managementURL, queue string) (*RabbitAnalysisQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	parsed, err := url.Parse(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("parse amqp url: %w", err)
	}
	baseURL, err := managementBase(parsed, managementURL)
	if err != nil {
		return nil, err
	}
	vhost := strings.TrimPrefix(parsed.Path, "/")
	if vhost == "" {
		vhost = "/"
	}
	password, _ := parsed.User.Password()
	return &RabbitAnalysisQueue{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  baseURL,
		vhost:    vhost,
		queue:    queue,
		username: parsed.User.Username(),
		password: password,
	}, nil
}

func managementBase(amqp *url.URL, override string) (*url.URL, error) {
	base := strings.TrimSpace(override)
	if base == "" {
		scheme := "http"
		if amqp.Scheme == "amqps" {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s:15672", scheme, amqp.Hostname())
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse management url: %w", err)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed, nil
}

// Enqueue публикует задачу в очередь через default exchange.
func (q *RabbitAnalysisQueue) Enqueue(ctx context.Context, job domain.AnalysisJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	body := map[string]any{
		"properties":       map[string]any{},
		"routing_key":      q.queue,
		"payload":          base64.StdEncoding.EncodeToString(payload),
		"payload_encoding": "base64",
	}
	var result struct {
		Routed bool `json:"routed"`
	}
	path := fmt.Sprintf("/api/exchanges/%s/amq.default/publish", url.PathEscape(q.vhost))
	if err := q.post(ctx, "publish", path, body, &result); err != nil {
		return err
	}
	// routed=false означает, что очередь не объявлена и сообщение пропало.
	if !result.Routed {
		return fmt.Errorf("queue %q not found on vhost %q", q.queue, q.vhost)
	}
	return nil
}

// Pop блокирующе ждёт следующую задачу, опрашивая брокер раз в секунду.
func (q *RabbitAnalysisQueue) Pop(ctx context.Context) (domain.AnalysisJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.AnalysisJob{}, err
		}
		job, ok, err := q.take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.AnalysisJob{}, ctx.Err()
			}
			return domain.AnalysisJob{}, err
		}
		if ok {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return domain.AnalysisJob{}, ctx.Err()
		case <-time.After(rabbitPollInterval):
		}
	}
}

// take забирает не более одного сообщения с подтверждением.
func (q *RabbitAnalysisQueue) take(ctx context.Context) (domain.AnalysisJob, bool, error) {
	body := map[string]any{
		"count":    1,
		"ackmode":  "ack_requeue_false",
		"encoding": "base64",
	}
	var messages []struct {
		Payload string `json:"payload"`
	}
	path := fmt.Sprintf("/api/queues/%s/%s/get", url.PathEscape(q.vhost), url.PathEscape(q.queue))
	if err := q.post(ctx, "get", path, body, &messages); err != nil {
		return domain.AnalysisJob{}, false, err
	}
	if len(messages) == 0 {
		return domain.AnalysisJob{}, false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(messages[0].Payload)
	if err != nil {
		return domain.AnalysisJob{}, false, fmt.Errorf("decode payload: %w", err)
	}
	var job domain.AnalysisJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return domain.AnalysisJob{}, false, fmt.Errorf("decode job: %w", err)
	}
	return job, true, nil
}

// post выполняет вызов Management API и декодирует ответ в out.
func (q *RabbitAnalysisQueue) post(ctx context.Context, operation, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	endpoint := q.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.username != "" {
		req.SetBasicAuth(q.username, q.password)
	}
	start := time.Now()
	resp, err := q.client.Do(req)
	metrics.ObserveNetworkRequest("rabbitmq", operation, q.queue, start, err)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s failed: status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
