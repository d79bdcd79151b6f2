package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/looma/see-practice-api/internal/domain/entity"
)

type IssuanceLedgerRepo struct {
	db *gorm.DB
}

func NewIssuanceLedgerRepo(db *gorm.DB) *IssuanceLedgerRepo {
	return &IssuanceLedgerRepo{db: db}
}

func (r *IssuanceLedgerRepo) CountSince(ctx context.Context, identity string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.IssuanceEvent{}).
		Where("identity = ? AND issued_at >= ?", identity, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count issuance events: %w", err)
	}
	return count, nil
}

func (r *IssuanceLedgerRepo) Append(ctx context.Context, identity string, at time.Time) error {
	event := &entity.IssuanceEvent{Identity: identity, IssuedAt: at}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append issuance event: %w", err)
	}
	return nil
}

func (r *IssuanceLedgerRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("issued_at < ?", cutoff).
		Delete(&entity.IssuanceEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune issuance events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
