package ledger

import (
	"time"

	"tuliu-backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Transaction types. One row is appended for every credit mutation, in the
// same database transaction as the mutation itself.
const (
	TypeRegister      = "register"
	TypeGenerate      = "generate"
	TypeUpgrade       = "upgrade"
	TypeAdminRecharge = "admin_recharge"
	TypeAdminDeduct   = "admin_deduct"
)

type Account struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	OpenID       string    `gorm:"column:open_id;uniqueIndex" json:"openId"`
	Name         string    `gorm:"column:name" json:"name"`
	Email        string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	LoginMethod  string    `gorm:"column:login_method" json:"loginMethod"`
	Credits      int64     `gorm:"column:credits;not null;default:0" json:"credits"`
	Blocked      bool      `gorm:"column:blocked;not null;default:false" json:"blocked"`
	Role         string    `gorm:"column:role;not null;default:'user'" json:"role"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	LastSignedIn time.Time `gorm:"column:last_signed_in" json:"lastSignedIn"`
}

func (Account) TableName() string {
	return "accounts"
}

// Transaction is an append-only record of a single credit delta together with
// the balance snapshot after it was applied.
type Transaction struct {
	ID           string         `gorm:"column:id;primaryKey" json:"id"`
	AccountID    string         `gorm:"column:account_id;index;not null" json:"accountId"`
	Type         string         `gorm:"column:type;not null" json:"type"`
	CreditsDelta int64          `gorm:"column:credits_delta;not null" json:"creditsDelta"`
	CreditsAfter int64          `gorm:"column:credits_after;not null" json:"creditsAfter"`
	Description  string         `gorm:"column:description" json:"description"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// AccountFrom returns the authenticated account placed in the gin context by
// the session middleware, or nil.
func AccountFrom(c *gin.Context) *Account {
	v, ok := c.Get(middleware.AccountKey)
	if !ok {
		return nil
	}
	acc, _ := v.(*Account)
	return acc
}
