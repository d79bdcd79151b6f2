package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/looma/see-practice-api/internal/domain/entity"
	"github.com/looma/see-practice-api/internal/domain/repository"
	apperrors "github.com/looma/see-practice-api/internal/pkg/errors"
)

const (
	codeRecordKeyPrefix = "otp:code:"
	// maxTxRetries ограничивает повторы оптимистичной транзакции при конкуренции
	maxTxRetries = 8
)

// CodeRecordRepo реализует repository.CodeRecordRepository на Redis.
// Каждая запись хранится в отдельном ключе с TTL, который длиннее срока
// действия записи на период хранения; циклы чтение-изменение-запись идут
// через WATCH/MULTI/EXEC.
type CodeRecordRepo struct {
	client    redis.UniversalClient
	retention time.Duration
}

// CodeRecordOption настраивает CodeRecordRepo
type CodeRecordOption func(*CodeRecordRepo)

// WithExpiredRetention оставляет истекшие записи читаемыми еще d до удаления Redis
func WithExpiredRetention(d time.Duration) CodeRecordOption {
	return func(r *CodeRecordRepo) {
		if d >= 0 {
			r.retention = d
		}
	}
}

// NewCodeRecordRepo создает хранилище кодов в Redis
func NewCodeRecordRepo(client redis.UniversalClient, opts ...CodeRecordOption) (*CodeRecordRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for CodeRecordRepo")
	}
	r := &CodeRecordRepo{client: client, retention: repository.DefaultExpiredRetention}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *CodeRecordRepo) key(identity string) string {
	return codeRecordKeyPrefix + identity
}

// Replace перезаписывает запись одним SET: старая запись исчезает
// в тот же момент, когда появляется новая.
func (r *CodeRecordRepo) Replace(ctx context.Context, record *entity.CodeRecord) error {
	ttl := record.ExpiresAt.Sub(record.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("code record ttl must be positive, got %s", ttl)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode code record: %w", err)
	}
	if err := r.client.Set(ctx, r.key(record.Identity), data, ttl+r.retention).Err(); err != nil {
		return fmt.Errorf("failed to store code record: %w", err)
	}
	return nil
}

// Get возвращает сохраненную запись или apperrors.ErrNotFound
func (r *CodeRecordRepo) Get(ctx context.Context, identity string) (*entity.CodeRecord, error) {
	return decodeCodeRecord(r.client.Get(ctx, r.key(identity)).Bytes())
}

// Update выполняет fn в оптимистичной транзакции по ключу identity
func (r *CodeRecordRepo) Update(ctx context.Context, identity string, fn repository.CodeRecordMutator) error {
	key := r.key(identity)

	for i := 0; i < maxTxRetries; i++ {
		var fnErr error

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			record, err := decodeCodeRecord(tx.Get(ctx, key).Bytes())
			if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				return err
			}

			mutation, mutErr := fn(record)
			fnErr = mutErr
			if record == nil {
				return nil
			}

			switch mutation {
			case repository.SaveCodeRecord:
				data, err := json.Marshal(record)
				if err != nil {
					return fmt.Errorf("failed to encode code record: %w", err)
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, data, redis.KeepTTL)
					return nil
				})
				return err
			case repository.DeleteCodeRecord:
				_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update code record: %w", err)
		}
		return fnErr
	}

	return fmt.Errorf("failed to update code record after %d attempts: %w", maxTxRetries, apperrors.ErrConflict)
}

// DeleteRecord удаляет запись, только если это все еще экземпляр recordID,
// поэтому откат не удалит более новый код, выданный параллельно.
func (r *CodeRecordRepo) DeleteRecord(ctx context.Context, identity, recordID string) (bool, error) {
	key := r.key(identity)

	for i := 0; i < maxTxRetries; i++ {
		deleted := false

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			record, err := decodeCodeRecord(tx.Get(ctx, key).Bytes())
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return nil
				}
				return err
			}
			if record.RecordID != recordID {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err == nil {
				deleted = true
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to delete code record: %w", err)
		}
		return deleted, nil
	}

	return false, fmt.Errorf("failed to delete code record after %d attempts: %w", maxTxRetries, apperrors.ErrConflict)
}

// DeleteExpired ничего не делает: Redis удаляет ключи по окончании периода хранения
func (r *CodeRecordRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func decodeCodeRecord(data []byte, err error) (*entity.CodeRecord, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	var record entity.CodeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode code record: %w", err)
	}
	return &record, nil
}
