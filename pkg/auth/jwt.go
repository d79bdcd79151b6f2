package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	apperrors "github.com/looma/see-practice-api/internal/pkg/errors"
)

const (
	// RoleAdmin - единственная роль в токене админа
	RoleAdmin = "admin"

	adminTokenIssuer  = "see-practice-api"
	minAdminSecretLen = 32
)

// AdminClaims - claims токена админ-панели
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminTokenService выдает и проверяет HS256 токены админа
type AdminTokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAdminTokenService создает сервис токенов. Секрет должен быть не короче 32 байт.
func NewAdminTokenService(secret string, ttl time.Duration) (*AdminTokenService, error) {
	if len(secret) < minAdminSecretLen {
		return nil, fmt.Errorf("admin jwt secret must be at least %d bytes", minAdminSecretLen)
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AdminTokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// GenerateToken выдает новый токен админа и возвращает его вместе со сроком действия
func (s *AdminTokenService) GenerateToken() (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := AdminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    adminTokenIssuer,
			Subject:   RoleAdmin,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken проверяет tokenString и возвращает claims.
// Для истекшего токена возвращается apperrors.ErrExpiredToken, для остальных невалидных - apperrors.ErrUnauthorized.
func (s *AdminTokenService) ParseToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperrors.ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}

	if claims.Role != RoleAdmin || claims.Issuer != adminTokenIssuer {
		return nil, fmt.Errorf("%w: token is not an admin token", apperrors.ErrUnauthorized)
	}
	return claims, nil
}
