package ledger

import (
	"context"
	"errors"
	"fmt"

	"tuliu-backend/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrInsufficientCredits is returned by DebitTx when the conditional
// decrement finds fewer credits than requested.
var ErrInsufficientCredits = errors.New("insufficient credits")

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
	}
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var acc Account
	if err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("account not found")
		}
		return nil, err
	}
	return &acc, nil
}

func (s *Service) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var acc Account
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// GetBalance re-reads the current credit balance. Callers must treat the
// value as advisory; the authoritative check happens inside DebitTx.
func (s *Service) GetBalance(ctx context.Context, accountID string) (int64, error) {
	acc, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acc.Credits, nil
}

// Grant credits an account and appends the matching transaction in one unit.
// Used for the registration grant and admin recharges.
func (s *Service) Grant(ctx context.Context, accountID string, amount int64, txType, description string) (*Transaction, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if amount <= 0 {
		return nil, errutil.BadRequest("grant amount must be > 0")
	}

	var entry *Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).
			Where("id = ?", accountID).
			Update("credits", gorm.Expr("credits + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.NotFound("account not found")
		}

		var acc Account
		if err := tx.Where("id = ?", accountID).First(&acc).Error; err != nil {
			return err
		}

		entry = &Transaction{
			ID:           s.node.Generate().String(),
			AccountID:    accountID,
			Type:         txType,
			CreditsDelta: amount,
			CreditsAfter: acc.Credits,
			Description:  description,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		zap.L().Error("failed to grant credits",
			zap.String("account_id", accountID),
			zap.Int64("amount", amount),
			zap.Error(err))
		return nil, err
	}

	return entry, nil
}

// DebitTx performs the conditional atomic decrement inside a caller-owned
// transaction and appends the matching ledger row with the post-debit
// snapshot. The WHERE clause on the current balance is what serialises
// concurrent debits for the same account; a caller that passed an earlier
// balance check can still lose here and gets ErrInsufficientCredits.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, accountID string, amount int64, txType, description string, metadata datatypes.JSON) (*Transaction, error) {
	if amount < 0 {
		return nil, errutil.BadRequest("debit amount must be >= 0")
	}

	// A zero debit skips the update: `credits - 0` changes nothing, and the
	// MySQL driver reports changed rows, not matched rows, so RowsAffected
	// would read 0 for an account that exists.
	if amount > 0 {
		res := tx.WithContext(ctx).Model(&Account{}).
			Where("id = ? AND credits >= ?", accountID, amount).
			Update("credits", gorm.Expr("credits - ?", amount))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrInsufficientCredits
		}
	}

	var acc Account
	if err := tx.WithContext(ctx).Where("id = ?", accountID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("account not found")
		}
		return nil, err
	}

	entry := &Transaction{
		ID:           s.node.Generate().String(),
		AccountID:    accountID,
		Type:         txType,
		CreditsDelta: -amount,
		CreditsAfter: acc.Credits,
		Description:  description,
		Metadata:     metadata,
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}

	return entry, nil
}

// Deduct is the admin-facing counterpart of Grant. It refuses to take the
// balance below zero.
func (s *Service) Deduct(ctx context.Context, accountID string, amount int64, txType, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, errutil.BadRequest("deduct amount must be > 0")
	}

	var entry *Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.DebitTx(ctx, tx, accountID, amount, txType, description, nil)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			return nil, errutil.Conflict(fmt.Sprintf("account has fewer than %d credits", amount), errutil.WithErr(err))
		}
		return nil, err
	}

	return entry, nil
}

func (s *Service) ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var entries []Transaction
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		zap.L().Error("failed to list transactions", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}

	return entries, nil
}
