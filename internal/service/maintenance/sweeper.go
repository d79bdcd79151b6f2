package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/looma/see-practice-api/internal/domain/repository"
	"github.com/looma/see-practice-api/pkg/logger"
)

const defaultSweepSpec = "@every 5m"

// SweepStats - итоги одной очистки
type SweepStats struct {
	ExpiredCodes int64
	PrunedEvents int64
}

// SweepMetrics получает результаты очистки
type SweepMetrics interface {
	ObserveSweep(stats SweepStats, err error)
}

// Sweeper удаляет записи кодов, истекшие раньше периода хранения,
// и события выдачи, вышедшие за окно лимита. Недавно истекшие записи
// остаются, чтобы проверка сообщила об истечении.
type Sweeper struct {
	codes         repository.CodeRecordRepository
	ledger        repository.IssuanceLedgerRepository
	rateWindow    time.Duration
	codeRetention time.Duration
	schedule      string
	cron          *cron.Cron
	now           func() time.Time
	metrics       SweepMetrics
	log           *zap.Logger
}

// Option настраивает Sweeper
type Option func(*Sweeper)

// WithCron подставляет заранее настроенный cron
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow подменяет часы
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchedule задает расписание cron
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithCodeRetention задает, сколько истекшие записи кодов хранятся до удаления очисткой
func WithCodeRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d >= 0 {
			s.codeRetention = d
		}
	}
}

func WithMetrics(m SweepMetrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// NewSweeper создает Sweeper. rateWindow должен совпадать с окном сервиса.
func NewSweeper(codes repository.CodeRecordRepository, ledger repository.IssuanceLedgerRepository, rateWindow time.Duration, opts ...Option) (*Sweeper, error) {
	if codes == nil || ledger == nil {
		return nil, fmt.Errorf("sweeper: code and ledger repositories are required")
	}
	if rateWindow <= 0 {
		return nil, fmt.Errorf("sweeper: rate window must be positive")
	}

	s := &Sweeper{
		codes:         codes,
		ledger:        ledger,
		rateWindow:    rateWindow,
		codeRetention: repository.DefaultExpiredRetention,
		schedule:      defaultSweepSpec,
		now:           time.Now,
		log:           logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s, nil
}

// Start регистрирует задачу очистки и запускает планировщик
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("otp sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("sweeper: invalid schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Info("otp sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop останавливает планировщик. Возвращенный контекст завершится после окончания текущих задач.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce выполняет одну очистку. Оба шага выполняются всегда, ошибки объединяются.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now()
	var (
		stats SweepStats
		errs  error
	)

	removed, err := s.codes.DeleteExpired(ctx, now.Add(-s.codeRetention))
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	stats.ExpiredCodes = removed

	pruned, err := s.ledger.PruneBefore(ctx, now.Add(-s.rateWindow))
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	stats.PrunedEvents = pruned

	if s.metrics != nil {
		s.metrics.ObserveSweep(stats, errs)
	}
	if stats.ExpiredCodes > 0 || stats.PrunedEvents > 0 {
		s.log.Debug("otp sweep finished",
			zap.Int64("expired_codes", stats.ExpiredCodes),
			zap.Int64("pruned_events", stats.PrunedEvents))
	}
	return stats, errs
}
