package entity

import "time"

// KnownIdentity - email, хотя бы раз прошедший проверку кода
type KnownIdentity struct {
	Identity            string    `gorm:"primaryKey;size:254" json:"email"`
	CreatedAt           time.Time `gorm:"not null" json:"created_at"`
	LastAuthenticatedAt time.Time `gorm:"not null" json:"last_authenticated_at"`
}

func (KnownIdentity) TableName() string {
	return "known_identities"
}
