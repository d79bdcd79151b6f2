package entity

import "time"

// IssuanceEvent - один успешно доставленный код, используется для лимита выдачи
type IssuanceEvent struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Identity string    `gorm:"size:254;not null;index:idx_issuance_identity_time,priority:1" json:"identity"`
	IssuedAt time.Time `gorm:"not null;index:idx_issuance_identity_time,priority:2;index" json:"issued_at"`
}

func (IssuanceEvent) TableName() string {
	return "otp_issuance_events"
}
