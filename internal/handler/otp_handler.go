package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/looma/see-practice-api/internal/handler/dto"
	apperrors "github.com/looma/see-practice-api/internal/pkg/errors"
	"github.com/looma/see-practice-api/internal/service"
	"github.com/looma/see-practice-api/pkg/logger"
)

// CodeService выдает и проверяет коды входа
type CodeService interface {
	RequestCode(ctx context.Context, identity string) error
	VerifyCode(ctx context.Context, identity, code string) (string, error)
}

// KnownIdentityChecker отвечает, входил ли identity раньше
type KnownIdentityChecker interface {
	IsKnownIdentity(ctx context.Context, identity string) (bool, error)
}

// OTPHandler обслуживает эндпоинты входа по коду из email
type OTPHandler struct {
	codes      CodeService
	identities KnownIdentityChecker
	log        *zap.Logger
}

func NewOTPHandler(codes CodeService, identities KnownIdentityChecker) *OTPHandler {
	return &OTPHandler{
		codes:      codes,
		identities: identities,
		log:        logger.WithModule("otp_handler"),
	}
}

// SendCode обрабатывает POST /api/auth/send-code
func (h *OTPHandler) SendCode(c *gin.Context) {
	var req dto.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error"})
		return
	}

	if err := h.codes.RequestCode(c.Request.Context(), req.Email); err != nil {
		h.handleOTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SendCodeResponse{
		Success: true,
		Message: "Login code sent. Check your email.",
	})
}

// VerifyCode обрабатывает POST /api/auth/verify-code
func (h *OTPHandler) VerifyCode(c *gin.Context) {
	var req dto.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error"})
		return
	}

	identity, err := h.codes.VerifyCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.handleOTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.VerifyCodeResponse{
		Success: true,
		Email:   identity,
		Message: "Authentication successful",
	})
}

// Known обрабатывает GET /api/auth/known?email=
func (h *OTPHandler) Known(c *gin.Context) {
	email := c.Query("email")

	known, err := h.identities.IsKnownIdentity(c.Request.Context(), email)
	if err != nil {
		h.handleOTPError(c, err)
		return
	}

	normalized, _ := service.NormalizeIdentity(email)
	c.JSON(http.StatusOK, dto.KnownIdentityResponse{Email: normalized, Known: known})
}

// handleOTPError преобразует ошибки кодов входа в HTTP ответы
func (h *OTPHandler) handleOTPError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidIdentity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid email address.", "error_type": "invalid_identity"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and code are required", "error_type": "validation_error"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many code requests. Please try again later.", "error_type": "rate_limited"})
	case errors.Is(err, service.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":              "Too many failed attempts. Please request a new code.",
			"error_type":         "too_many_attempts",
			"attempts_remaining": 0,
		})
	case errors.Is(err, service.ErrInvalidCode):
		remaining, _ := service.AttemptsRemaining(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":              "Invalid code. Please check your code and try again.",
			"error_type":         "invalid_code",
			"attempts_remaining": remaining,
		})
	case errors.Is(err, service.ErrCodeExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "This code has expired. Please request a new one.", "error_type": "code_expired"})
	case errors.Is(err, service.ErrNoCodeFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No code found for this email. Please request a code first.", "error_type": "no_code_found"})
	case errors.Is(err, service.ErrDeliveryFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send email. Please try again later.", "error_type": "delivery_failed"})
	case errors.Is(err, service.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable. Please try again later.", "error_type": "service_unavailable"})
	default:
		h.log.Error("unexpected login code error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
	}
}
