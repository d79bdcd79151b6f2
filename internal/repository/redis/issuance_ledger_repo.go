package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const issuanceLedgerKeyPrefix = "otp:ledger:"

// IssuanceLedgerRepo хранит события выдачи в sorted set на каждый identity,
// score - unix миллисекунды. Ключ истекает через одно окно после последнего события.
type IssuanceLedgerRepo struct {
	client redis.UniversalClient
	window time.Duration
}

// NewIssuanceLedgerRepo создает журнал выдачи в Redis для заданного окна
func NewIssuanceLedgerRepo(client redis.UniversalClient, window time.Duration) (*IssuanceLedgerRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for IssuanceLedgerRepo")
	}
	if window <= 0 {
		return nil, fmt.Errorf("issuance ledger window must be positive")
	}
	return &IssuanceLedgerRepo{client: client, window: window}, nil
}

func (r *IssuanceLedgerRepo) key(identity string) string {
	return issuanceLedgerKeyPrefix + identity
}

// CountSince считает события с меткой времени не раньше since
func (r *IssuanceLedgerRepo) CountSince(ctx context.Context, identity string, since time.Time) (int64, error) {
	min := strconv.FormatInt(since.UnixMilli(), 10)
	count, err := r.client.ZCount(ctx, r.key(identity), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count issuance events: %w", err)
	}
	return count, nil
}

// Append добавляет событие и обрезает набор до текущего окна
func (r *IssuanceLedgerRepo) Append(ctx context.Context, identity string, at time.Time) error {
	key := r.key(identity)
	cutoff := "(" + strconv.FormatInt(at.Add(-r.window).UnixMilli(), 10)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, &redis.Z{
			Score:  float64(at.UnixMilli()),
			Member: uuid.NewString(),
		})
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		pipe.Expire(ctx, key, r.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append issuance event: %w", err)
	}
	return nil
}

// PruneBefore ничего не делает: Append обрезает набор, а ключи истекают сами
func (r *IssuanceLedgerRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
