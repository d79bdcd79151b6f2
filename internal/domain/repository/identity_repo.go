package repository

import (
	"context"
	"time"

	"github.com/looma/see-practice-api/internal/domain/entity"
)

// IdentityRepository - реестр identity, хотя бы раз прошедших аутентификацию
type IdentityRepository interface {
	// MarkAuthenticated делает upsert identity. created_at задается только при первой вставке.
	MarkAuthenticated(ctx context.Context, identity string, at time.Time) error
	GetByIdentity(ctx context.Context, identity string) (*entity.KnownIdentity, error)
	Exists(ctx context.Context, identity string) (bool, error)
	// List возвращает identity по убыванию времени последнего входа и общее количество
	List(ctx context.Context, limit, offset int) ([]entity.KnownIdentity, int64, error)
}
