package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looma/see-practice-api/internal/domain/entity"
	"github.com/looma/see-practice-api/internal/domain/repository"
	apperrors "github.com/looma/see-practice-api/internal/pkg/errors"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func testRecord(identity, recordID string, now time.Time) *entity.CodeRecord {
	return &entity.CodeRecord{
		Identity:  identity,
		RecordID:  recordID,
		CodeHash:  "hash-" + recordID,
		CodeSalt:  "salt",
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
}

func TestCodeRecordRepo_ReplaceAndGet(t *testing.T) {
	mr, client := newTestRedis(t)
	repo, err := NewCodeRecordRepo(client)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	_, err = repo.Get(ctx, "a@x.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	first := testRecord("a@x.com", "r1", now)
	first.Attempts = 3
	require.NoError(t, repo.Replace(ctx, first))
	require.NoError(t, repo.Replace(ctx, testRecord("a@x.com", "r2", now)))

	got, err := repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "r2", got.RecordID)
	assert.Equal(t, 0, got.Attempts)

	assert.Equal(t, 15*time.Minute+repository.DefaultExpiredRetention, mr.TTL(codeRecordKeyPrefix+"a@x.com"))

	// После истечения запись еще читается, чтобы отличить "истек" от "не найден"
	mr.FastForward(16 * time.Minute)
	_, err = repo.Get(ctx, "a@x.com")
	assert.NoError(t, err)

	mr.FastForward(repository.DefaultExpiredRetention)
	_, err = repo.Get(ctx, "a@x.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCodeRecordRepo_ExpiredRetention(t *testing.T) {
	mr, client := newTestRedis(t)
	repo, err := NewCodeRecordRepo(client, WithExpiredRetention(5*time.Minute))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.Replace(ctx, testRecord("a@x.com", "r1", time.Now())))
	assert.Equal(t, 20*time.Minute, mr.TTL(codeRecordKeyPrefix+"a@x.com"))

	mr.FastForward(20 * time.Minute)
	_, err = repo.Get(ctx, "a@x.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCodeRecordRepo_ReplaceRejectsNonPositiveTTL(t *testing.T) {
	_, client := newTestRedis(t)
	repo, _ := NewCodeRecordRepo(client)
	now := time.Now()

	rec := testRecord("a@x.com", "r1", now)
	rec.ExpiresAt = now
	assert.Error(t, repo.Replace(context.Background(), rec))
}

func TestCodeRecordRepo_UpdateMutations(t *testing.T) {
	mr, client := newTestRedis(t)
	repo, _ := NewCodeRecordRepo(client)
	ctx := context.Background()
	require.NoError(t, repo.Replace(ctx, testRecord("a@x.com", "r1", time.Now())))

	sentinel := errors.New("wrong code")
	err := repo.Update(ctx, "a@x.com", func(rec *entity.CodeRecord) (repository.CodeRecordMutation, error) {
		require.NotNil(t, rec)
		rec.Attempts++
		return repository.SaveCodeRecord, sentinel
	})
	assert.ErrorIs(t, err, sentinel, "mutator error is returned after the save")

	got, err := repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, 15*time.Minute+repository.DefaultExpiredRetention, mr.TTL(codeRecordKeyPrefix+"a@x.com"), "save keeps the ttl")

	err = repo.Update(ctx, "a@x.com", func(rec *entity.CodeRecord) (repository.CodeRecordMutation, error) {
		return repository.DeleteCodeRecord, nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(codeRecordKeyPrefix+"a@x.com"))

	called := false
	err = repo.Update(ctx, "a@x.com", func(rec *entity.CodeRecord) (repository.CodeRecordMutation, error) {
		called = true
		assert.Nil(t, rec)
		return repository.KeepCodeRecord, apperrors.ErrNotFound
	})
	assert.True(t, called)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCodeRecordRepo_ConcurrentDeleteHasSingleWinner(t *testing.T) {
	_, client := newTestRedis(t)
	repo, _ := NewCodeRecordRepo(client)
	ctx := context.Background()
	require.NoError(t, repo.Replace(ctx, testRecord("a@x.com", "r1", time.Now())))

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Update(ctx, "a@x.com", func(rec *entity.CodeRecord) (repository.CodeRecordMutation, error) {
				if rec == nil {
					return repository.KeepCodeRecord, apperrors.ErrNotFound
				}
				return repository.DeleteCodeRecord, nil
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestCodeRecordRepo_DeleteRecordChecksInstance(t *testing.T) {
	_, client := newTestRedis(t)
	repo, _ := NewCodeRecordRepo(client)
	ctx := context.Background()
	require.NoError(t, repo.Replace(ctx, testRecord("a@x.com", "r2", time.Now())))

	deleted, err := repo.DeleteRecord(ctx, "a@x.com", "r1")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.DeleteRecord(ctx, "a@x.com", "r2")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteRecord(ctx, "a@x.com", "r2")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCodeRecordRepo_DeleteExpiredIsNoop(t *testing.T) {
	_, client := newTestRedis(t)
	repo, _ := NewCodeRecordRepo(client)

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCodeRecordRepo_StoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	repo, _ := NewCodeRecordRepo(client)
	mr.Close()

	err := repo.Replace(context.Background(), testRecord("a@x.com", "r1", time.Now()))
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIssuanceLedgerRepo_CountsTrailingWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	repo, err := NewIssuanceLedgerRepo(client, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, "a@x.com", base))
	require.NoError(t, repo.Append(ctx, "a@x.com", base.Add(30*time.Minute)))
	require.NoError(t, repo.Append(ctx, "b@x.com", base.Add(30*time.Minute)))

	count, err := repo.CountSince(ctx, "a@x.com", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = repo.CountSince(ctx, "a@x.com", base.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// Append за пределами окна удаляет самое старое событие
	require.NoError(t, repo.Append(ctx, "a@x.com", base.Add(90*time.Minute)))
	members, err := mr.ZMembers(issuanceLedgerKeyPrefix + "a@x.com")
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Equal(t, time.Hour, mr.TTL(issuanceLedgerKeyPrefix+"a@x.com"))

	count, err = repo.CountSince(ctx, "c@x.com", base)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNewIssuanceLedgerRepo_Validation(t *testing.T) {
	_, err := NewIssuanceLedgerRepo(nil, time.Hour)
	assert.Error(t, err)

	_, client := newTestRedis(t)
	_, err = NewIssuanceLedgerRepo(client, 0)
	assert.Error(t, err)
}
