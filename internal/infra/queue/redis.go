package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"letter-assist/internal/domain"
)

// RedisAnalysisQueue — очередь задач на анализ поверх Redis list: LPUSH
// на стороне API, BRPOP в воркере.
type RedisAnalysisQueue struct {
	client *redis.Client
	key    string
}

var _ domain.AnalysisQueue = (*RedisAnalysisQueue)(nil)

// NewRedisAnalysisQueue создаёт очередь по указанному ключу.
func NewRedisAnalysisQueue(client *redis.Client, key string) *RedisAnalysisQueue {
	return &RedisAnalysisQueue{client: client, key: key}
}

// Enqueue кладёт задачу в голову списка.
func (q *RedisAnalysisQueue) Enqueue(ctx context.Context, job domain.AnalysisJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе ждёт следующую задачу. BRPOP берётся с коротким
// таймаутом, чтобы между итерациями проверять отмену контекста.
func (q *RedisAnalysisQueue) Pop(ctx context.Context) (domain.AnalysisJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.AnalysisJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil):
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return domain.AnalysisJob{}, ctx.Err()
			}
			continue
		default:
			return domain.AnalysisJob{}, err
		}
		// BRPOP отвечает парой ключ-значение.
		if len(res) != 2 {
			return domain.AnalysisJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.AnalysisJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.AnalysisJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}
