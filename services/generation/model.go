package generation

import (
	"time"

	"tuliu-backend/services/tier"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Generation is the durable record of one generation request. It is inserted
// as pending before any external call and ends in exactly one terminal state.
type Generation struct {
	ID               string    `gorm:"column:id;primaryKey" json:"id"`
	AccountID        string    `gorm:"column:account_id;index;not null" json:"accountId"`
	Prompt           string    `gorm:"column:prompt;not null" json:"prompt"`
	SourceImageURL   string    `gorm:"column:source_image_url" json:"sourceImageUrl,omitempty"`
	TranslatedPrompt string    `gorm:"column:translated_prompt" json:"translatedPrompt"`
	ImageURL         string    `gorm:"column:image_url" json:"imageUrl"`
	WatermarkedURL   string    `gorm:"column:watermarked_url" json:"watermarkedUrl"`
	Width            int       `gorm:"column:width;not null" json:"width"`
	Height           int       `gorm:"column:height;not null" json:"height"`
	Tier             tier.Tier `gorm:"column:tier;not null" json:"tier"`
	CreditsUsed      int64     `gorm:"column:credits_used;not null" json:"creditsUsed"`
	Status           string    `gorm:"column:status;not null;default:'pending';index" json:"status"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Generation) TableName() string {
	return "generations"
}

// Result is returned to the caller after a successful generation.
type Result struct {
	GenerationID     string `json:"generationId"`
	FinalURL         string `json:"finalUrl"`
	TranslatedPrompt string `json:"translatedPrompt"`
	CreditsCharged   int64  `json:"creditsCharged"`
	CreditsRemaining int64  `json:"creditsRemaining"`
}
