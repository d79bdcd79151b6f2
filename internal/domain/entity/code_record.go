package entity

import "time"

// CodeRecord - единственный действующий код входа для identity.
// Сам код не хранится, только его хеш с солью.
type CodeRecord struct {
	Identity  string    `gorm:"primaryKey;size:254" json:"identity"`
	RecordID  string    `gorm:"size:36;not null" json:"record_id"`
	CodeHash  string    `gorm:"size:64;not null" json:"code_hash"`
	CodeSalt  string    `gorm:"size:32;not null" json:"code_salt"`
	Attempts  int       `gorm:"not null" json:"attempts"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

func (CodeRecord) TableName() string {
	return "otp_code_records"
}

// IsExpired сообщает, что запись уже нельзя использовать в момент now
func (r *CodeRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// AttemptsExhausted сообщает, что лимит неудачных попыток исчерпан
func (r *CodeRecord) AttemptsExhausted(maxAttempts int) bool {
	return r.Attempts >= maxAttempts
}
