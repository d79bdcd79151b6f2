package service

import (
	"errors"
	"fmt"

	apperrors "github.com/looma/see-practice-api/internal/pkg/errors"
)

// Ошибки входа по коду. Обработчики отображают их в стабильный error_type.
var (
	// Ошибки ввода, отклоняются до обращения к хранилищу
	ErrInvalidIdentity   = fmt.Errorf("%w: invalid_identity", apperrors.ErrValidation)
	ErrInvalidCodeFormat = fmt.Errorf("%w: invalid_code_format", apperrors.ErrValidation)

	// Защита от злоупотреблений
	ErrRateLimited     = errors.New("rate_limited")
	ErrTooManyAttempts = errors.New("too_many_attempts")

	// Жизненный цикл кода
	ErrNoCodeFound = errors.New("no_code_found")
	ErrCodeExpired = errors.New("code_expired")
	ErrInvalidCode = errors.New("invalid_code")

	// Инфраструктура. Здесь не повторяются, решение о повторе за вызывающим.
	ErrStoreUnavailable = errors.New("store_unavailable")
	ErrDeliveryFailed   = errors.New("delivery_failed")
)

// InvalidCodeError - неверный код и число оставшихся попыток.
// Exhausted означает, что неверный ввод израсходовал последнюю попытку и
// код удален; тогда ошибка также соответствует ErrTooManyAttempts.
type InvalidCodeError struct {
	Remaining int
	Exhausted bool
}

func (e *InvalidCodeError) Error() string {
	if e.Exhausted {
		return "invalid_code: no attempts remaining"
	}
	return fmt.Sprintf("invalid_code: %d attempts remaining", e.Remaining)
}

func (e *InvalidCodeError) Is(target error) bool {
	if target == ErrInvalidCode {
		return true
	}
	return e.Exhausted && target == ErrTooManyAttempts
}

// AttemptsRemaining извлекает число оставшихся попыток из ошибки проверки
func AttemptsRemaining(err error) (int, bool) {
	var invalid *InvalidCodeError
	if errors.As(err, &invalid) {
		return invalid.Remaining, true
	}
	if errors.Is(err, ErrTooManyAttempts) {
		return 0, true
	}
	return 0, false
}

func isVerificationOutcome(err error) bool {
	return errors.Is(err, ErrNoCodeFound) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrTooManyAttempts) ||
		errors.Is(err, ErrInvalidCode)
}
