// Пакет dedup — фильтр уже виденных почтовых сообщений на Redis SETNX.
// Страхует приём почты от повторной обработки одного сообщения, когда
// IMAP-поиск по UNSEEN пересекается между итерациями.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL — как долго помним идентификатор сообщения.
	DefaultTTL = 7 * 24 * time.Hour

	keyPrefix = "letters:seen:"
)

// Filter отслеживает уже обработанные идентификаторы сообщений.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter создаёт фильтр поверх Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{rdb: rdb, ttl: DefaultTTL}
}

// IsNew возвращает true, если идентификатор встречается впервые.
// Положительный ответ атомарно помечает его как виденный (SETNX).
func (f *Filter) IsNew(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	key := keyPrefix + messageID
	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}
