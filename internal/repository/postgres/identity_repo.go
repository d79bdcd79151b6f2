package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/looma/see-practice-api/internal/domain/entity"
	apperrors "github.com/looma/see-practice-api/internal/pkg/errors"
)

type IdentityRepo struct {
	db *gorm.DB
}

func NewIdentityRepo(db *gorm.DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

// MarkAuthenticated добавляет identity или обновляет last_authenticated_at
func (r *IdentityRepo) MarkAuthenticated(ctx context.Context, identity string, at time.Time) error {
	row := &entity.KnownIdentity{
		Identity:            identity,
		CreatedAt:           at,
		LastAuthenticatedAt: at,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_authenticated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert known identity: %w", err)
	}
	return nil
}

func (r *IdentityRepo) GetByIdentity(ctx context.Context, identity string) (*entity.KnownIdentity, error) {
	var known entity.KnownIdentity
	err := r.db.WithContext(ctx).Where("identity = ?", identity).Take(&known).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get known identity: %w", err)
	}
	return &known, nil
}

func (r *IdentityRepo) Exists(ctx context.Context, identity string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.KnownIdentity{}).
		Where("identity = ?", identity).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check known identity: %w", err)
	}
	return count > 0, nil
}

func (r *IdentityRepo) List(ctx context.Context, limit, offset int) ([]entity.KnownIdentity, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&entity.KnownIdentity{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count known identities: %w", err)
	}

	var rows []entity.KnownIdentity
	query := r.db.WithContext(ctx).Order("last_authenticated_at DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list known identities: %w", err)
	}
	return rows, total, nil
}
