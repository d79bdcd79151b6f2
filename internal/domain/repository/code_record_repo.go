package repository

import (
	"context"
	"time"

	"github.com/looma/see-practice-api/internal/domain/entity"
)

// DefaultExpiredRetention - сколько запись остается читаемой после истечения,
// чтобы проверка вернула "истек", а не "не найден".
const DefaultExpiredRetention = time.Hour

// CodeRecordMutation говорит хранилищу, что сделать с записью после мутатора
type CodeRecordMutation int

const (
	// KeepCodeRecord оставляет запись без изменений
	KeepCodeRecord CodeRecordMutation = iota
	// SaveCodeRecord сохраняет измененную запись с прежним сроком действия
	SaveCodeRecord
	// DeleteCodeRecord удаляет запись
	DeleteCodeRecord
)

// CodeRecordMutator проверяет и при необходимости меняет запись identity.
// record равен nil, если записи нет. Возвращенная мутация применяется даже
// при err != nil, после чего err возвращается из Update.
// Мутатор может выполниться несколько раз при конкурентной записи, поэтому
// не должен иметь побочных эффектов вне record.
type CodeRecordMutator func(record *entity.CodeRecord) (CodeRecordMutation, error)

// CodeRecordRepository хранит не более одной действующей записи кода на identity
type CodeRecordRepository interface {
	// Replace атомарно сохраняет record как единственную запись для record.Identity
	Replace(ctx context.Context, record *entity.CodeRecord) error
	// Get возвращает сохраненную запись или apperrors.ErrNotFound
	Get(ctx context.Context, identity string) (*entity.CodeRecord, error)
	// Update выполняет fn и применяет мутацию атомарно относительно других
	// записей того же identity.
	Update(ctx context.Context, identity string, fn CodeRecordMutator) error
	// DeleteRecord удаляет запись, только если это все еще экземпляр recordID
	DeleteRecord(ctx context.Context, identity, recordID string) (bool, error)
	// DeleteExpired удаляет записи со сроком действия не позже before. Хранилища
	// с собственным TTL возвращают 0.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
