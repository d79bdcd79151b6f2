package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/looma/see-practice-api/internal/domain/entity"
	"github.com/looma/see-practice-api/internal/domain/repository"
	apperrors "github.com/looma/see-practice-api/internal/pkg/errors"
)

// CodeRecordRepo реализует repository.CodeRecordRepository на PostgreSQL.
// identity - первичный ключ, поэтому в таблице не может быть двух записей
// для одного identity. Истекшие строки удаляет сервис при обращении,
// а пачкой - DeleteExpired.
type CodeRecordRepo struct {
	db *gorm.DB
}

func NewCodeRecordRepo(db *gorm.DB) *CodeRecordRepo {
	return &CodeRecordRepo{db: db}
}

func (r *CodeRecordRepo) Replace(ctx context.Context, record *entity.CodeRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "identity"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"record_id", "code_hash", "code_salt", "attempts", "created_at", "expires_at",
			}),
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert code record: %w", err)
	}
	return nil
}

func (r *CodeRecordRepo) Get(ctx context.Context, identity string) (*entity.CodeRecord, error) {
	var record entity.CodeRecord
	err := r.db.WithContext(ctx).Where("identity = ?", identity).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get code record: %w", err)
	}
	return &record, nil
}

// Update блокирует строку identity (SELECT ... FOR UPDATE) на время выполнения fn
func (r *CodeRecordRepo) Update(ctx context.Context, identity string, fn repository.CodeRecordMutator) error {
	var fnErr error

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked entity.CodeRecord
		var record *entity.CodeRecord

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("identity = ?", identity).
			Take(&locked).Error
		switch {
		case err == nil:
			record = &locked
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		mutation, mutErr := fn(record)
		fnErr = mutErr
		if record == nil {
			return nil
		}

		switch mutation {
		case repository.SaveCodeRecord:
			return tx.Model(&entity.CodeRecord{}).
				Where("identity = ?", identity).
				Updates(map[string]interface{}{
					"attempts":   record.Attempts,
					"expires_at": record.ExpiresAt,
				}).Error
		case repository.DeleteCodeRecord:
			return tx.Where("identity = ?", identity).Delete(&entity.CodeRecord{}).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update code record: %w", err)
	}
	return fnErr
}

func (r *CodeRecordRepo) DeleteRecord(ctx context.Context, identity, recordID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("identity = ? AND record_id = ?", identity, recordID).
		Delete(&entity.CodeRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete code record: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *CodeRecordRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", before).
		Delete(&entity.CodeRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired code records: %w", result.Error)
	}
	return result.RowsAffected, nil
}
