package maintenance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/looma/see-practice-api/internal/domain/entity"
	"github.com/looma/see-practice-api/internal/repository/postgres"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entity.CodeRecord{}, &entity.IssuanceEvent{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

type recordingMetrics struct {
	stats SweepStats
	err   error
	calls int
}

func (m *recordingMetrics) ObserveSweep(stats SweepStats, err error) {
	m.stats, m.err = stats, err
	m.calls++
}

func TestSweeperRunOnce(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	codes := postgres.NewCodeRecordRepo(db)
	ledger := postgres.NewIssuanceLedgerRepo(db)

	require.NoError(t, codes.Replace(ctx, &entity.CodeRecord{
		Identity: "expired@x.com", RecordID: "r1", CodeHash: "h", CodeSalt: "s",
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-105 * time.Minute),
	}))
	require.NoError(t, codes.Replace(ctx, &entity.CodeRecord{
		Identity: "recent@x.com", RecordID: "r3", CodeHash: "h", CodeSalt: "s",
		CreatedAt: now.Add(-20 * time.Minute), ExpiresAt: now.Add(-5 * time.Minute),
	}))
	require.NoError(t, codes.Replace(ctx, &entity.CodeRecord{
		Identity: "live@x.com", RecordID: "r2", CodeHash: "h", CodeSalt: "s",
		CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(14 * time.Minute),
	}))
	require.NoError(t, ledger.Append(ctx, "a@x.com", now.Add(-2*time.Hour)))
	require.NoError(t, ledger.Append(ctx, "a@x.com", now.Add(-10*time.Minute)))

	metrics := &recordingMetrics{}
	sweeper, err := NewSweeper(codes, ledger, time.Hour,
		WithNow(func() time.Time { return now }), WithMetrics(metrics))
	require.NoError(t, err)

	stats, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{ExpiredCodes: 1, PrunedEvents: 1}, stats)
	assert.Equal(t, 1, metrics.calls)
	assert.Equal(t, stats, metrics.stats)

	_, err = codes.Get(ctx, "live@x.com")
	assert.NoError(t, err)
	_, err = codes.Get(ctx, "recent@x.com")
	assert.NoError(t, err, "records inside the retention period are kept")

	count, err := ledger.CountSince(ctx, "a@x.com", now.Add(-3*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestSweeperCodeRetention(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	codes := postgres.NewCodeRecordRepo(db)
	require.NoError(t, codes.Replace(ctx, &entity.CodeRecord{
		Identity: "a@x.com", RecordID: "r1", CodeHash: "h", CodeSalt: "s",
		CreatedAt: now.Add(-20 * time.Minute), ExpiresAt: now.Add(-5 * time.Minute),
	}))

	sweeper, err := NewSweeper(codes, postgres.NewIssuanceLedgerRepo(db), time.Hour,
		WithNow(func() time.Time { return now }), WithCodeRetention(10*time.Minute))
	require.NoError(t, err)

	stats, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ExpiredCodes)

	now = now.Add(5 * time.Minute)
	stats, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ExpiredCodes)
}

func TestSweeperRunOnceCombinesErrors(t *testing.T) {
	db := openTestDB(t)
	codes := postgres.NewCodeRecordRepo(db)
	ledger := postgres.NewIssuanceLedgerRepo(db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	metrics := &recordingMetrics{}
	sweeper, err := NewSweeper(codes, ledger, time.Hour, WithMetrics(metrics))
	require.NoError(t, err)

	_, err = sweeper.RunOnce(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Error(t, metrics.err)
}

func TestNewSweeperValidation(t *testing.T) {
	db := openTestDB(t)
	codes := postgres.NewCodeRecordRepo(db)
	ledger := postgres.NewIssuanceLedgerRepo(db)

	_, err := NewSweeper(nil, ledger, time.Hour)
	assert.Error(t, err)
	_, err = NewSweeper(codes, nil, time.Hour)
	assert.Error(t, err)
	_, err = NewSweeper(codes, ledger, 0)
	assert.Error(t, err)
}

func TestSweeperStartRejectsBadSchedule(t *testing.T) {
	db := openTestDB(t)
	sweeper, err := NewSweeper(postgres.NewCodeRecordRepo(db), postgres.NewIssuanceLedgerRepo(db), time.Hour,
		WithSchedule("not a schedule"), WithCron(cron.New()))
	require.NoError(t, err)

	assert.Error(t, sweeper.Start())
}

func TestSweeperStartStop(t *testing.T) {
	db := openTestDB(t)
	sweeper, err := NewSweeper(postgres.NewCodeRecordRepo(db), postgres.NewIssuanceLedgerRepo(db), time.Hour,
		WithSchedule("@every 1h"))
	require.NoError(t, err)

	require.NoError(t, sweeper.Start())
	<-sweeper.Stop().Done()
}
