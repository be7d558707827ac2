package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	asynqpkg "tuliu-backend/pkg/asynq"
	"tuliu-backend/pkg/config"
	"tuliu-backend/pkg/db"
	"tuliu-backend/pkg/gen"
	"tuliu-backend/pkg/logger"
	miniopkg "tuliu-backend/pkg/minio"
	"tuliu-backend/pkg/redis"
	"tuliu-backend/pkg/server"
	"tuliu-backend/pkg/session"
	"tuliu-backend/services/ai"
	"tuliu-backend/services/auth"
	"tuliu-backend/services/generation"
	"tuliu-backend/services/ledger"
	"tuliu-backend/services/mailer"
	"tuliu-backend/services/watermark"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		miniopkg.Client,
		asynqpkg.Client,
		asynqpkg.Server,
		asynqpkg.Scheduler,
		gen.Module,
		session.Module,
		server.Module,
		ai.Module,
		watermark.Module,
		mailer.Module,
		ledger.Module,
		generation.Module,
		auth.Module,
		fx.Invoke(migrate),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ledger.Account{},
		&ledger.Transaction{},
		&generation.Generation{},
		&auth.OTPRecord{},
	)
}
