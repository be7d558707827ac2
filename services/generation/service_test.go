package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	asynqpkg "tuliu-backend/pkg/asynq"
	"tuliu-backend/pkg/errutil"
	"tuliu-backend/services/ledger"
	"tuliu-backend/services/testutil"
	"tuliu-backend/services/tier"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeTranslator struct {
	fn func(ctx context.Context, sourcePrompt string) (string, error)
}

func (f *fakeTranslator) Translate(ctx context.Context, sourcePrompt string) (string, error) {
	if f.fn != nil {
		return f.fn(ctx, sourcePrompt)
	}
	return "translated: " + sourcePrompt, nil
}

type fakeGenerator struct {
	fn func(ctx context.Context, prompt, sourceImageURL string, width, height int) (string, error)
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt, sourceImageURL string, width, height int) (string, error) {
	if f.fn != nil {
		return f.fn(ctx, prompt, sourceImageURL, width, height)
	}
	return "https://images.example.com/raw.png", nil
}

type fakeWatermarker struct {
	fn func(ctx context.Context, rawURL string, t tier.Tier, accountID string) string
}

func (f *fakeWatermarker) Apply(ctx context.Context, rawURL string, t tier.Tier, accountID string) string {
	if f.fn != nil {
		return f.fn(ctx, rawURL, t, accountID)
	}
	return rawURL
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type testEnv struct {
	svc        *Service
	ledger     *ledger.Service
	translator *fakeTranslator
	generator  *fakeGenerator
	watermark  *fakeWatermarker
	tasks      *fakeEnqueuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t, &ledger.Account{}, &ledger.Transaction{}, &Generation{})
	node := testutil.NewTestNode(t)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})

	env := &testEnv{
		ledger:     ledgerSvc,
		translator: &fakeTranslator{},
		generator:  &fakeGenerator{},
		watermark:  &fakeWatermarker{},
		tasks:      &fakeEnqueuer{},
	}
	env.svc = &Service{
		db:             db,
		node:           node,
		ledger:         ledgerSvc,
		translator:     env.translator,
		generator:      env.generator,
		watermark:      env.watermark,
		tasks:          env.tasks,
		pendingTimeout: 15 * time.Minute,
	}
	return env
}

func (e *testEnv) seedAccount(t *testing.T, credits int64) *ledger.Account {
	t.Helper()

	acc := &ledger.Account{
		ID:      e.svc.node.Generate().String(),
		OpenID:  "email-user@example.com",
		Email:   "user@example.com",
		Credits: credits,
		Role:    ledger.RoleUser,
	}
	require.NoError(t, e.svc.db.Create(acc).Error)
	return acc
}

func errCode(t *testing.T, err error) errutil.CoreStatus {
	t.Helper()

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	return be.Code
}

func TestGenerateSuccess(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 10)

	result, err := env.svc.Generate(context.Background(), acc.ID, "一只猫", 1024, 1024, "")
	require.NoError(t, err)
	require.Equal(t, "translated: 一只猫", result.TranslatedPrompt)
	require.Equal(t, int64(1), result.CreditsCharged)
	require.Equal(t, int64(9), result.CreditsRemaining)
	require.Equal(t, "https://images.example.com/raw.png", result.FinalURL)

	var rec Generation
	require.NoError(t, env.svc.db.First(&rec, "id = ?", result.GenerationID).Error)
	require.Equal(t, StatusSuccess, rec.Status)
	require.Equal(t, tier.Standard, rec.Tier)
	require.Equal(t, "https://images.example.com/raw.png", rec.ImageURL)

	var entries []ledger.Transaction
	require.NoError(t, env.svc.db.Where("account_id = ?", acc.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.TypeGenerate, entries[0].Type)
	require.Equal(t, int64(-1), entries[0].CreditsDelta)
	require.Equal(t, int64(9), entries[0].CreditsAfter)
}

func TestGenerateRejectsUnsupportedSize(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 10)

	_, err := env.svc.Generate(context.Background(), acc.ID, "a cat", 512, 512, "")
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadRequest, errCode(t, err))

	var count int64
	require.NoError(t, env.svc.db.Model(&Generation{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGenerateRequiresPromptOrSourceImage(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 10)

	_, err := env.svc.Generate(context.Background(), acc.ID, "   ", 1024, 1024, "")
	require.Error(t, err)
	require.Equal(t, errutil.StatusValidationFailed, errCode(t, err))
}

func TestGenerateImageOnlyRequest(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 10)

	var translated bool
	env.translator.fn = func(ctx context.Context, sourcePrompt string) (string, error) {
		translated = true
		return sourcePrompt, nil
	}
	env.generator.fn = func(ctx context.Context, prompt, sourceImageURL string, width, height int) (string, error) {
		require.Empty(t, prompt)
		require.Equal(t, "https://uploads.example.com/source.png", sourceImageURL)
		return "https://images.example.com/raw.png", nil
	}

	result, err := env.svc.Generate(context.Background(), acc.ID, "", 1024, 1024, "https://uploads.example.com/source.png")
	require.NoError(t, err)
	require.False(t, translated)
	require.Empty(t, result.TranslatedPrompt)

	// The source image is persisted on the record.
	var rec Generation
	require.NoError(t, env.svc.db.First(&rec, "id = ?", result.GenerationID).Error)
	require.Equal(t, "https://uploads.example.com/source.png", rec.SourceImageURL)
	require.Equal(t, StatusSuccess, rec.Status)
}

func TestGenerateInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 1)

	_, err := env.svc.Generate(context.Background(), acc.ID, "a cat", 2048, 2048, "")
	require.Error(t, err)
	require.Equal(t, errutil.StatusForbidden, errCode(t, err))

	// The low-balance email is queued, no record or charge is written.
	require.Len(t, env.tasks.tasks, 1)
	require.Equal(t, asynqpkg.SendLowCreditsEmailTask, env.tasks.tasks[0].Type())

	var count int64
	require.NoError(t, env.svc.db.Model(&Generation{}).Count(&count).Error)
	require.Zero(t, count)

	balance, err := env.ledger.GetBalance(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), balance)
}

func TestGenerateTranslationFailure(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 10)
	env.translator.fn = func(ctx context.Context, sourcePrompt string) (string, error) {
		return "", errutil.BadGateway("provider returned 500")
	}

	_, err := env.svc.Generate(context.Background(), acc.ID, "a cat", 1024, 1024, "")
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadGateway, errCode(t, err))

	// The checkpoint record ends failed and the balance is untouched.
	var rec Generation
	require.NoError(t, env.svc.db.First(&rec, "account_id = ?", acc.ID).Error)
	require.Equal(t, StatusFailed, rec.Status)

	balance, err := env.ledger.GetBalance(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)

	var count int64
	require.NoError(t, env.svc.db.Model(&ledger.Transaction{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGenerateImageFailure(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 10)
	env.generator.fn = func(ctx context.Context, prompt, sourceImageURL string, width, height int) (string, error) {
		return "", errutil.BadGateway("no image URL returned from provider")
	}

	_, err := env.svc.Generate(context.Background(), acc.ID, "a cat", 1024, 1024, "")
	require.Error(t, err)

	var rec Generation
	require.NoError(t, env.svc.db.First(&rec, "account_id = ?", acc.ID).Error)
	require.Equal(t, StatusFailed, rec.Status)

	balance, err := env.ledger.GetBalance(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)
}

func TestGenerateTrialIsFree(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 0)
	env.watermark.fn = func(ctx context.Context, rawURL string, tr tier.Tier, accountID string) string {
		require.Equal(t, tier.Trial, tr)
		return "https://cdn.example.com/bucket/watermarked/" + accountID + "/x-watermarked.png"
	}

	result, err := env.svc.Generate(context.Background(), acc.ID, "a cat", 800, 800, "")
	require.NoError(t, err)
	require.Equal(t, int64(0), result.CreditsCharged)
	require.Equal(t, int64(0), result.CreditsRemaining)
	require.Contains(t, result.FinalURL, "watermarked")

	// A zero-delta transaction still documents the generation.
	var entries []ledger.Transaction
	require.NoError(t, env.svc.db.Where("account_id = ?", acc.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Equal(t, int64(0), entries[0].CreditsDelta)
}

func TestGenerateConcurrentDebitLoses(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 1)

	// Drain the balance between the advisory check and the commit, the way a
	// concurrent request would.
	env.generator.fn = func(ctx context.Context, prompt, sourceImageURL string, width, height int) (string, error) {
		res := env.svc.db.Model(&ledger.Account{}).
			Where("id = ?", acc.ID).
			Update("credits", 0)
		require.NoError(t, res.Error)
		return "https://images.example.com/raw.png", nil
	}

	_, err := env.svc.Generate(context.Background(), acc.ID, "a cat", 1024, 1024, "")
	require.Error(t, err)
	require.Equal(t, errutil.StatusForbidden, errCode(t, err))

	var rec Generation
	require.NoError(t, env.svc.db.First(&rec, "account_id = ?", acc.ID).Error)
	require.Equal(t, StatusFailed, rec.Status)

	balance, err := env.ledger.GetBalance(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestGenerateAccountNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Generate(context.Background(), "missing", "a cat", 1024, 1024, "")
	require.Error(t, err)
	require.Equal(t, errutil.StatusNotFound, errCode(t, err))
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 10)

	for i := 0; i < 3; i++ {
		_, err := env.svc.Generate(context.Background(), acc.ID, "a cat", 1024, 1024, "")
		require.NoError(t, err)
	}

	records, err := env.svc.History(context.Background(), acc.ID, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = env.svc.History(context.Background(), acc.ID, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestSweepPending(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 10)

	stale := &Generation{
		ID:        env.svc.node.Generate().String(),
		AccountID: acc.ID,
		Prompt:    "a cat",
		Width:     1024,
		Height:    1024,
		Tier:      tier.Standard,
		Status:    StatusPending,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	fresh := &Generation{
		ID:        env.svc.node.Generate().String(),
		AccountID: acc.ID,
		Prompt:    "a dog",
		Width:     1024,
		Height:    1024,
		Tier:      tier.Standard,
		Status:    StatusPending,
	}
	require.NoError(t, env.svc.db.Create(stale).Error)
	require.NoError(t, env.svc.db.Create(fresh).Error)

	swept, err := env.svc.SweepPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), swept)

	var rec Generation
	require.NoError(t, env.svc.db.First(&rec, "id = ?", stale.ID).Error)
	require.Equal(t, StatusFailed, rec.Status)

	var freshRec Generation
	require.NoError(t, env.svc.db.First(&freshRec, "id = ?", fresh.ID).Error)
	require.Equal(t, StatusPending, freshRec.Status)
}

func TestNotifyLowCreditsEnqueueFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, 0)
	env.tasks.err = errors.New("redis down")

	_, err := env.svc.Generate(context.Background(), acc.ID, "a cat", 1024, 1024, "")
	require.Error(t, err)
	require.Equal(t, errutil.StatusForbidden, errCode(t, err))
}
