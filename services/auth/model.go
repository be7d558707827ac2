package auth

import "time"

// OTPRecord stores a single outstanding verification code per email. The code
// itself is never persisted, only its bcrypt hash.
type OTPRecord struct {
	Email     string    `gorm:"column:email;primaryKey"`
	CodeHash  string    `gorm:"column:code_hash;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OTPRecord) TableName() string {
	return "otp_codes"
}
