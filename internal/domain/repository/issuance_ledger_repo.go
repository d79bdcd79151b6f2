package repository

import (
	"context"
	"time"
)

// IssuanceLedgerRepository хранит события выдачи кодов с метками времени по identity
type IssuanceLedgerRepository interface {
	// CountSince считает события identity не раньше since
	CountSince(ctx context.Context, identity string, since time.Time) (int64, error)
	// Append записывает выдачу в указанный момент
	Append(ctx context.Context, identity string, at time.Time) error
	// PruneBefore удаляет события старше cutoff
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
