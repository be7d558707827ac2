package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	asynqpkg "tuliu-backend/pkg/asynq"
	"tuliu-backend/pkg/config"
	"tuliu-backend/pkg/errutil"
	"tuliu-backend/services/ledger"
	"tuliu-backend/services/tier"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Translator turns a free-text description into an optimized generation prompt.
type Translator interface {
	Translate(ctx context.Context, sourcePrompt string) (string, error)
}

// ImageGenerator submits a prompt, and optionally a source image for
// image-to-image requests, to the generation provider.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, sourceImageURL string, width, height int) (string, error)
}

// Watermarker post-processes a generated image. It never fails: on any
// internal error it returns the raw URL unchanged.
type Watermarker interface {
	Apply(ctx context.Context, rawURL string, t tier.Tier, accountID string) string
}

// Service sequences translation, generation, watermarking and the atomic
// ledger commit for one request.
type Service struct {
	db         *gorm.DB
	node       *snowflake.Node
	ledger     *ledger.Service
	translator Translator
	generator  ImageGenerator
	watermark  Watermarker
	tasks      asynqpkg.Enqueuer

	pendingTimeout time.Duration
}

type ServiceParams struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	Config     *config.Config
	Ledger     *ledger.Service
	Translator Translator
	Generator  ImageGenerator
	Watermark  Watermarker
	Tasks      asynqpkg.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:             p.DB,
		node:           p.Node,
		ledger:         p.Ledger,
		translator:     p.Translator,
		generator:      p.Generator,
		watermark:      p.Watermark,
		tasks:          p.Tasks,
		pendingTimeout: p.Config.Generation.PendingTimeout,
	}
}

// Generate runs the full pipeline for one request. The pending record is the
// durable checkpoint: it is written before the first external call and always
// ends in a terminal state on a completed request.
func (s *Service) Generate(ctx context.Context, accountID, prompt string, width, height int, sourceImageURL string) (*Result, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if !tier.IsValidSize(width, height) {
		return nil, errutil.BadRequest(fmt.Sprintf("invalid image size %dx%d", width, height))
	}
	if strings.TrimSpace(prompt) == "" && sourceImageURL == "" {
		return nil, errutil.ValidationFailed("a prompt or a source image is required")
	}

	t, cost, _ := tier.Resolve(width, height)

	acc, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.Credits < cost {
		s.notifyLowCredits(acc)
		return nil, errutil.Forbidden(fmt.Sprintf("insufficient credits: need %d, have %d", cost, acc.Credits))
	}

	rec := &Generation{
		ID:             s.node.Generate().String(),
		AccountID:      accountID,
		Prompt:         prompt,
		SourceImageURL: sourceImageURL,
		Width:          width,
		Height:         height,
		Tier:           t,
		CreditsUsed:    cost,
		Status:         StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		zap.L().Error("failed to insert pending generation", zap.String("account_id", accountID), zap.Error(err))
		return nil, errutil.Internal("failed to record generation request", errutil.WithErr(err))
	}

	// Image-only requests carry no prompt to translate.
	var translated string
	if strings.TrimSpace(prompt) != "" {
		translated, err = s.translator.Translate(ctx, prompt)
		if err != nil {
			s.markFailed(ctx, rec.ID)
			return nil, err
		}
	}

	rawURL, err := s.generator.GenerateImage(ctx, translated, sourceImageURL, width, height)
	if err != nil {
		s.markFailed(ctx, rec.ID)
		return nil, err
	}

	finalURL := s.watermark.Apply(ctx, rawURL, t, accountID)

	var entry *ledger.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.ledger.DebitTx(ctx, tx, accountID, cost, ledger.TypeGenerate,
			fmt.Sprintf("Generated %dx%d image", width, height), nil)
		if err != nil {
			return err
		}

		return tx.Model(&Generation{}).
			Where("id = ?", rec.ID).
			Updates(map[string]any{
				"translated_prompt": translated,
				"image_url":         rawURL,
				"watermarked_url":   finalURL,
				"status":            StatusSuccess,
			}).Error
	})
	if err != nil {
		// The record must not linger pending; failing it is best-effort.
		s.markFailed(ctx, rec.ID)
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			return nil, errutil.Forbidden(fmt.Sprintf("insufficient credits: need %d", cost))
		}
		zap.L().Error("failed to commit generation",
			zap.String("generation_id", rec.ID),
			zap.String("account_id", accountID),
			zap.Error(err))
		return nil, errutil.Internal("failed to commit generation", errutil.WithErr(err))
	}

	return &Result{
		GenerationID:     rec.ID,
		FinalURL:         finalURL,
		TranslatedPrompt: translated,
		CreditsCharged:   cost,
		CreditsRemaining: entry.CreditsAfter,
	}, nil
}

// History returns the account's most recent generation records.
func (s *Service) History(ctx context.Context, accountID string, limit int) ([]Generation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var records []Generation
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		zap.L().Error("failed to list generations", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}

	return records, nil
}

// SweepPending fails every record stuck in pending longer than the configured
// timeout. A crash between the checkpoint insert and the terminal update is
// the only way records get here. The timeout is re-read from the live config
// snapshot so a hot reload applies without a restart.
func (s *Service) SweepPending(ctx context.Context) (int64, error) {
	timeout := s.pendingTimeout
	if cfg := config.Current(); cfg != nil && cfg.Generation.PendingTimeout > 0 {
		timeout = cfg.Generation.PendingTimeout
	}

	cutoff := time.Now().Add(-timeout)
	res := s.db.WithContext(ctx).Model(&Generation{}).
		Where("status = ? AND created_at < ?", StatusPending, cutoff).
		Update("status", StatusFailed)
	return res.RowsAffected, res.Error
}

func (s *Service) markFailed(ctx context.Context, generationID string) {
	err := s.db.WithContext(ctx).Model(&Generation{}).
		Where("id = ? AND status = ?", generationID, StatusPending).
		Update("status", StatusFailed).Error
	if err != nil {
		zap.L().Error("failed to mark generation as failed",
			zap.String("generation_id", generationID),
			zap.Error(err))
	}
}

// notifyLowCredits enqueues the low-balance email. Fire-and-forget: a queue
// failure never fails the request.
func (s *Service) notifyLowCredits(acc *ledger.Account) {
	payload, err := json.Marshal(asynqpkg.LowCreditsEmailPayload{
		Email:   acc.Email,
		Credits: acc.Credits,
	})
	if err != nil {
		return
	}
	if _, err := s.tasks.Enqueue(asynq.NewTask(asynqpkg.SendLowCreditsEmailTask, payload), asynq.Queue("low")); err != nil {
		zap.L().Warn("failed to enqueue low-credits email",
			zap.String("account_id", acc.ID),
			zap.Error(err))
	}
}
