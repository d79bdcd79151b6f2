package errors

import "errors"

// Общие ошибки приложения для репозиториев и сервисов
var (
	// ErrNotFound возвращается, если запись или ключ не существует
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized возвращается при неудачной аутентификации (неверный токен или пароль)
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation возвращается, если входные данные не прошли валидацию
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken возвращается для токена с истекшим сроком действия
	ErrExpiredToken = errors.New("token is expired")

	// ErrConflict возвращается, если запись первой изменила конкурентная операция
	ErrConflict = errors.New("resource state conflict")
)
