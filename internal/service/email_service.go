package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/looma/see-practice-api/pkg/logger"
)

const loginCodeSubject = "Your SEE Practice Login Code / तपाईंको SEE अभ्यास लगइन कोड"

// EmailSender доставляет коды входа
type EmailSender interface {
	SendLoginCode(ctx context.Context, toEmail, code, idempotencyKey string) error
}

// NoopEmailSender пишет коды в лог вместо отправки. Только для разработки.
type NoopEmailSender struct {
	log *zap.Logger
}

func NewNoopEmailSender() *NoopEmailSender {
	return &NoopEmailSender{log: logger.WithModule("email")}
}

func (s *NoopEmailSender) SendLoginCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	s.log.Info("noop email sender: login code not delivered",
		logger.Identity(toEmail), zap.String("code", code))
	return nil
}

// ResendEmailService отправляет письма через Resend REST API
type ResendEmailService struct {
	from    string
	codeTTL time.Duration
	client  *resend.Client
	log     *zap.Logger
}

func NewResendEmailService(apiKey, from string, codeTTL time.Duration) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	if codeTTL <= 0 {
		codeTTL = DefaultOTPConfig().CodeTTL
	}
	return &ResendEmailService{
		from:    from,
		codeTTL: codeTTL,
		client:  resend.NewClient(apiKey),
		log:     logger.WithModule("email"),
	}, nil
}

func (s *ResendEmailService) SendLoginCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	if toEmail == "" || code == "" {
		return fmt.Errorf("toEmail and code are required")
	}

	minutes := int(s.codeTTL.Minutes())
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: loginCodeSubject,
		Text: fmt.Sprintf("Your SEE Practice login code is %s. It expires in %d minutes.\n"+
			"तपाईंको SEE अभ्यास लगइन कोड %s हो। यो कोड %d मिनेटमा समाप्त हुन्छ।", code, minutes, code, minutes),
		Html: loginCodeHTML(code, minutes),
	}

	options := &resend.SendEmailOptions{}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		options.IdempotencyKey = "login-code:" + key
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		sent, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			s.log.Info("login code email sent", logger.Identity(toEmail), zap.String("email_id", sent.Id))
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}

func loginCodeHTML(code string, minutes int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Your Login Code</title></head>
<body style="margin:0;padding:40px 20px;font-family:'Segoe UI',Tahoma,Verdana,sans-serif;background-color:#f7f7f7;">
  <div style="max-width:480px;margin:0 auto;background-color:#ffffff;border-radius:16px;">
    <div style="background:#d97706;padding:32px 40px;text-align:center;border-radius:16px 16px 0 0;">
      <h1 style="margin:0;color:#ffffff;font-size:24px;">SEE Exam Practice</h1>
      <p style="margin:8px 0 0 0;color:#ffffff;font-size:16px;">SEE परीक्षा अभ्यास</p>
    </div>
    <div style="padding:40px;">
      <p style="margin:0 0 16px 0;color:#374151;font-size:16px;">Hello! Here is your login code:</p>
      <p style="margin:0 0 24px 0;color:#6b7280;font-size:14px;">नमस्ते! यहाँ तपाईंको लग इन कोड छ:</p>
      <div style="background:#fef3c7;border-radius:12px;padding:24px;text-align:center;margin:0 0 24px 0;">
        <span style="font-family:'Courier New',monospace;font-size:36px;font-weight:700;color:#92400e;letter-spacing:8px;">%s</span>
      </div>
      <p style="margin:0 0 8px 0;color:#6b7280;font-size:14px;">This code expires in <strong>%d minutes</strong> and can be used once.</p>
      <p style="margin:0;color:#9ca3af;font-size:13px;">You'll receive a new code each time you log in.</p>
    </div>
    <div style="padding:24px 40px;background-color:#f9fafb;border-radius:0 0 16px 16px;border-top:1px solid #e5e7eb;">
      <p style="margin:0;color:#9ca3af;font-size:12px;text-align:center;">If you didn't request this code, you can safely ignore this email.</p>
    </div>
  </div>
</body>
</html>`, code, minutes)
}
