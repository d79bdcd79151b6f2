package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/looma/see-practice-api/internal/domain/entity"
	"github.com/looma/see-practice-api/internal/domain/repository"
	"github.com/looma/see-practice-api/pkg/logger"
)

const maxIdentityLength = 254

var identityPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Результаты выдачи кода для OTPMetrics.
const (
	IssuanceIssued          = "issued"
	IssuanceInvalidIdentity = "invalid_identity"
	IssuanceRateLimited     = "rate_limited"
	IssuanceDeliveryFailed  = "delivery_failed"
	IssuanceStoreError      = "store_error"
)

// Результаты проверки кода для OTPMetrics.
const (
	VerificationSuccess         = "success"
	VerificationInvalidInput    = "invalid_input"
	VerificationNoCode          = "no_code_found"
	VerificationExpired         = "code_expired"
	VerificationInvalidCode     = "invalid_code"
	VerificationTooManyAttempts = "too_many_attempts"
	VerificationStoreError      = "store_error"
)

// OTPConfig задает параметры выдачи и проверки кодов
type OTPConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
	MaxIssuance int
	RateWindow  time.Duration
	// CodePepper подмешивается в каждый хеш кода
	CodePepper string
}

// DefaultOTPConfig возвращает значения по умолчанию для продакшена
func DefaultOTPConfig() OTPConfig {
	return OTPConfig{
		CodeTTL:     15 * time.Minute,
		MaxAttempts: 5,
		MaxIssuance: 5,
		RateWindow:  time.Hour,
	}
}

// OTPMetrics получает результаты операций
type OTPMetrics interface {
	ObserveIssuance(outcome string)
	ObserveVerification(outcome string)
}

type noopOTPMetrics struct{}

func (noopOTPMetrics) ObserveIssuance(string)     {}
func (noopOTPMetrics) ObserveVerification(string) {}

// OTPOption настраивает OTPService
type OTPOption func(*OTPService)

// WithClock подменяет time.Now
func WithClock(now func() time.Time) OTPOption {
	return func(s *OTPService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeGenerator подменяет генератор кодов
func WithCodeGenerator(gen func() (string, error)) OTPOption {
	return func(s *OTPService) {
		if gen != nil {
			s.generateCode = gen
		}
	}
}

func WithMetrics(m OTPMetrics) OTPOption {
	return func(s *OTPService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l *zap.Logger) OTPOption {
	return func(s *OTPService) {
		if l != nil {
			s.log = l
		}
	}
}

// OTPService выдает и проверяет коды входа по email
type OTPService struct {
	codes      repository.CodeRecordRepository
	ledger     repository.IssuanceLedgerRepository
	identities repository.IdentityRepository
	sender     EmailSender
	cfg        OTPConfig

	now          func() time.Time
	generateCode func() (string, error)
	metrics      OTPMetrics
	log          *zap.Logger
}

func NewOTPService(
	codes repository.CodeRecordRepository,
	ledger repository.IssuanceLedgerRepository,
	identities repository.IdentityRepository,
	sender EmailSender,
	cfg OTPConfig,
	opts ...OTPOption,
) (*OTPService, error) {
	if codes == nil {
		return nil, fmt.Errorf("code record repository is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("issuance ledger repository is required")
	}
	if identities == nil {
		return nil, fmt.Errorf("identity repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}

	defaults := DefaultOTPConfig()
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaults.CodeTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.MaxIssuance <= 0 {
		cfg.MaxIssuance = defaults.MaxIssuance
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = defaults.RateWindow
	}

	s := &OTPService{
		codes:        codes,
		ledger:       ledger,
		identities:   identities,
		sender:       sender,
		cfg:          cfg,
		now:          time.Now,
		generateCode: generateLoginCode,
		metrics:      noopOTPMetrics{},
		log:          logger.WithModule("otp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config возвращает действующие настройки
func (s *OTPService) Config() OTPConfig {
	return s.cfg
}

// RequestCode выдает новый код для identity и отправляет его по почте. Предыдущий
// код перестает действовать. Лимит расходуется только при успешной доставке.
func (s *OTPService) RequestCode(ctx context.Context, identity string) error {
	identity, err := NormalizeIdentity(identity)
	if err != nil {
		s.metrics.ObserveIssuance(IssuanceInvalidIdentity)
		return err
	}
	log := s.log.With(logger.Identity(identity))

	now := s.now()
	issued, err := s.ledger.CountSince(ctx, identity, now.Add(-s.cfg.RateWindow))
	if err != nil {
		s.metrics.ObserveIssuance(IssuanceStoreError)
		log.Error("failed to count issuance events", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if issued >= int64(s.cfg.MaxIssuance) {
		s.metrics.ObserveIssuance(IssuanceRateLimited)
		log.Info("code request rate limited", zap.Int64("issued_in_window", issued))
		return ErrRateLimited
	}

	code, err := s.generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}
	salt, err := generateCodeSalt()
	if err != nil {
		return fmt.Errorf("failed to generate code salt: %w", err)
	}

	record := &entity.CodeRecord{
		Identity:  identity,
		RecordID:  uuid.NewString(),
		CodeHash:  hashLoginCode(code, salt, s.cfg.CodePepper),
		CodeSalt:  salt,
		Attempts:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
	}
	if err := s.codes.Replace(ctx, record); err != nil {
		s.metrics.ObserveIssuance(IssuanceStoreError)
		log.Error("failed to store code record", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if err := s.sender.SendLoginCode(ctx, identity, code, record.RecordID); err != nil {
		s.metrics.ObserveIssuance(IssuanceDeliveryFailed)
		log.Warn("login code delivery failed, rolling back", zap.Error(err))

		// Клиент мог уже отключиться, но откат все равно нужен
		cleanupCtx := context.WithoutCancel(ctx)
		if _, delErr := s.codes.DeleteRecord(cleanupCtx, identity, record.RecordID); delErr != nil {
			log.Error("failed to roll back undelivered code record", zap.Error(delErr))
		}
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	if err := s.ledger.Append(ctx, identity, now); err != nil {
		// Код уже доставлен, ошибку только логируем
		log.Error("failed to append issuance event", zap.Error(err))
	}

	s.metrics.ObserveIssuance(IssuanceIssued)
	log.Info("login code issued", zap.String("record_id", record.RecordID))
	return nil
}

// VerifyCode сверяет code с действующей записью identity. При успехе запись
// удаляется, identity отмечается как аутентифицированный и возвращается
// нормализованный identity.
func (s *OTPService) VerifyCode(ctx context.Context, identity, code string) (string, error) {
	identity, err := NormalizeIdentity(identity)
	if err != nil {
		s.metrics.ObserveVerification(VerificationInvalidInput)
		return "", err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		s.metrics.ObserveVerification(VerificationInvalidInput)
		return "", fmt.Errorf("%w: code is required", ErrInvalidCodeFormat)
	}
	log := s.log.With(logger.Identity(identity))

	now := s.now()
	err = s.codes.Update(ctx, identity, func(record *entity.CodeRecord) (repository.CodeRecordMutation, error) {
		return s.checkCode(record, code, now)
	})
	if err != nil {
		if isVerificationOutcome(err) {
			s.metrics.ObserveVerification(verificationOutcome(err))
			log.Info("code verification rejected", zap.String("reason", verificationOutcome(err)))
			return "", err
		}
		s.metrics.ObserveVerification(VerificationStoreError)
		log.Error("failed to verify code", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if err := s.identities.MarkAuthenticated(ctx, identity, now); err != nil {
		s.metrics.ObserveVerification(VerificationStoreError)
		log.Error("code consumed but identity registry update failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	s.metrics.ObserveVerification(VerificationSuccess)
	log.Info("code verified")
	return identity, nil
}

// checkCode выполняется внутри атомарного обновления хранилища и может повторяться,
// поэтому меняет только record.
func (s *OTPService) checkCode(record *entity.CodeRecord, code string, now time.Time) (repository.CodeRecordMutation, error) {
	if record == nil {
		return repository.KeepCodeRecord, ErrNoCodeFound
	}
	if record.IsExpired(now) {
		return repository.DeleteCodeRecord, ErrCodeExpired
	}
	if record.AttemptsExhausted(s.cfg.MaxAttempts) {
		return repository.DeleteCodeRecord, ErrTooManyAttempts
	}

	expected, _ := hex.DecodeString(record.CodeHash)
	actual, _ := hex.DecodeString(hashLoginCode(code, record.CodeSalt, s.cfg.CodePepper))
	if len(expected) == sha256.Size && subtle.ConstantTimeCompare(expected, actual) == 1 {
		return repository.DeleteCodeRecord, nil
	}

	record.Attempts++
	if record.AttemptsExhausted(s.cfg.MaxAttempts) {
		return repository.DeleteCodeRecord, &InvalidCodeError{Remaining: 0, Exhausted: true}
	}
	return repository.SaveCodeRecord, &InvalidCodeError{Remaining: s.cfg.MaxAttempts - record.Attempts}
}

func verificationOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNoCodeFound):
		return VerificationNoCode
	case errors.Is(err, ErrCodeExpired):
		return VerificationExpired
	case errors.Is(err, ErrTooManyAttempts):
		return VerificationTooManyAttempts
	case errors.Is(err, ErrInvalidCode):
		return VerificationInvalidCode
	default:
		return VerificationStoreError
	}
}

// NormalizeIdentity обрезает пробелы, приводит email к нижнему регистру и проверяет формат
func NormalizeIdentity(identity string) (string, error) {
	identity = normalizeIdentity(identity)
	if !isValidIdentity(identity) {
		return "", ErrInvalidIdentity
	}
	return identity, nil
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func isValidIdentity(identity string) bool {
	if identity == "" || len(identity) > maxIdentityLength {
		return false
	}
	if !identityPattern.MatchString(identity) {
		return false
	}
	domain := identity[strings.IndexByte(identity, '@')+1:]
	for _, label := range strings.Split(domain, ".") {
		if label == "" {
			return false
		}
	}
	return true
}

// generateLoginCode возвращает шестизначный код, равномерно распределенный в 100000-999999
func generateLoginCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func generateCodeSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashLoginCode(code, salt, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + salt + ":" + code))
	return hex.EncodeToString(sum[:])
}
