package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	asynqpkg "tuliu-backend/pkg/asynq"
	"tuliu-backend/pkg/config"
	"tuliu-backend/pkg/errutil"
	"tuliu-backend/pkg/session"
	"tuliu-backend/services/ledger"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const otpTTL = 10 * time.Minute

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	ledger   *ledger.Service
	sessions *session.Manager
	tasks    asynqpkg.Enqueuer
	grant    int64
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Ledger   *ledger.Service
	Sessions *session.Manager
	Tasks    asynqpkg.Enqueuer
	Config   *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		ledger:   p.Ledger,
		sessions: p.Sessions,
		tasks:    p.Tasks,
		grant:    p.Config.Generation.RegistrationGrant,
	}
}

// RequestOTP issues a fresh 6-digit code for the address and queues the
// delivery email. A new request replaces any outstanding code for the same
// address.
func (s *Service) RequestOTP(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return errutil.Internal("failed to generate verification code", errutil.WithErr(err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return errutil.Internal("failed to hash verification code", errutil.WithErr(err))
	}

	record := OTPRecord{
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: time.Now().Add(otpTTL),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"code_hash", "expires_at", "created_at"}),
	}).Create(&record).Error; err != nil {
		return err
	}

	payload, err := json.Marshal(asynqpkg.OTPEmailPayload{Email: email, Code: code})
	if err != nil {
		return err
	}
	if _, err := s.tasks.Enqueue(
		asynq.NewTask(asynqpkg.SendOTPEmailTask, payload),
		asynq.Queue("critical"),
	); err != nil {
		zap.L().Error("failed to enqueue otp email", zap.String("email", email), zap.Error(err))
		return errutil.Internal("failed to send verification code", errutil.WithErr(err))
	}

	return nil
}

// VerifyOTP checks the submitted code, consumes it, signs the account in
// (creating it with the registration grant on first sign-in) and returns the
// account together with a session token.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*ledger.Account, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if len(code) != 6 {
		return nil, "", errutil.Unauthorized("invalid verification code")
	}

	var record OTPRecord
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", errutil.Unauthorized("invalid verification code")
		}
		return nil, "", err
	}

	if time.Now().After(record.ExpiresAt) {
		s.db.WithContext(ctx).Where("email = ?", email).Delete(&OTPRecord{})
		return nil, "", errutil.Unauthorized("verification code expired")
	}

	if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)) != nil {
		return nil, "", errutil.Unauthorized("invalid verification code")
	}

	// The code is single-use regardless of what happens below.
	if err := s.db.WithContext(ctx).Where("email = ?", email).Delete(&OTPRecord{}).Error; err != nil {
		return nil, "", err
	}

	acc, err := s.signIn(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if acc.Blocked {
		return nil, "", errutil.Forbidden("account is blocked")
	}

	token, err := s.sessions.Issue(acc.ID)
	if err != nil {
		return nil, "", errutil.Internal("failed to issue session", errutil.WithErr(err))
	}

	return acc, token, nil
}

// signIn loads the account for the address or creates it on first sign-in.
// New accounts get the registration credit grant and a welcome email.
func (s *Service) signIn(ctx context.Context, email string) (*ledger.Account, error) {
	acc, err := s.ledger.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if acc != nil {
		if err := s.db.WithContext(ctx).Model(acc).Update("last_signed_in", now).Error; err != nil {
			zap.L().Warn("failed to record sign-in time", zap.String("account_id", acc.ID), zap.Error(err))
		}
		acc.LastSignedIn = now
		return acc, nil
	}

	name := email[:strings.Index(email, "@")]
	acc = &ledger.Account{
		ID:           s.node.Generate().String(),
		OpenID:       "email-" + email,
		Name:         name,
		Email:        email,
		LoginMethod:  "email",
		Role:         ledger.RoleUser,
		LastSignedIn: now,
	}
	if err := s.db.WithContext(ctx).Create(acc).Error; err != nil {
		return nil, err
	}

	if s.grant > 0 {
		entry, err := s.ledger.Grant(ctx, acc.ID, s.grant, ledger.TypeRegister, "registration grant")
		if err != nil {
			zap.L().Error("failed to apply registration grant", zap.String("account_id", acc.ID), zap.Error(err))
		} else {
			acc.Credits = entry.CreditsAfter
		}
	}

	s.notifyRegistration(acc)

	return acc, nil
}

// notifyRegistration queues the welcome email and an admin notice. Delivery is
// best-effort and never blocks the sign-in.
func (s *Service) notifyRegistration(acc *ledger.Account) {
	var g errgroup.Group

	g.Go(func() error {
		payload, err := json.Marshal(asynqpkg.WelcomeEmailPayload{Email: acc.Email, Name: acc.Name})
		if err != nil {
			return err
		}
		_, err = s.tasks.Enqueue(asynq.NewTask(asynqpkg.SendWelcomeEmailTask, payload), asynq.Queue("low"))
		return err
	})

	g.Go(func() error {
		payload, err := json.Marshal(asynqpkg.AdminNoticePayload{
			Subject: "Tuliu AI - New registration",
			Body:    fmt.Sprintf("<p>New account: <strong>%s</strong> (%s)</p>", acc.Email, acc.ID),
		})
		if err != nil {
			return err
		}
		_, err = s.tasks.Enqueue(asynq.NewTask(asynqpkg.SendAdminNoticeTask, payload), asynq.Queue("low"))
		return err
	})

	if err := g.Wait(); err != nil {
		zap.L().Warn("failed to enqueue registration emails", zap.String("email", acc.Email), zap.Error(err))
	}
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", errutil.ValidationFailed("invalid email address")
	}
	// ParseAddress accepts the `Name <addr>` form; only the address is kept.
	return addr.Address, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
