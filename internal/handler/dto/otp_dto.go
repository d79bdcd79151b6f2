package dto

import "time"

// SendCodeRequest - запрос на отправку кода входа
type SendCodeRequest struct {
	Email string `json:"email"`
}

// VerifyCodeRequest - запрос проверки кода входа
type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type SendCodeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type VerifyCodeResponse struct {
	Success bool   `json:"success"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type KnownIdentityResponse struct {
	Email string `json:"email"`
	Known bool   `json:"known"`
}

// AdminAuthRequest содержит пароль админа
type AdminAuthRequest struct {
	Password string `json:"password" binding:"required"`
}

type AdminAuthResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type IdentityItem struct {
	Email               string    `json:"email"`
	CreatedAt           time.Time `json:"created_at"`
	LastAuthenticatedAt time.Time `json:"last_authenticated_at"`
}

type IdentityListResponse struct {
	Items  []IdentityItem `json:"items"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
