package mailer

import (
	"context"
	"encoding/json"

	asynqpkg "tuliu-backend/pkg/asynq"

	"github.com/hibiken/asynq"
)

// RegisterTasks attaches the email task handlers to the asynq worker mux.
func RegisterTasks(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(asynqpkg.SendOTPEmailTask, svc.handleOTP)
	mux.HandleFunc(asynqpkg.SendWelcomeEmailTask, svc.handleWelcome)
	mux.HandleFunc(asynqpkg.SendLowCreditsEmailTask, svc.handleLowCredits)
	mux.HandleFunc(asynqpkg.SendAdminNoticeTask, svc.handleAdminNotice)
}

func (s *Service) handleOTP(ctx context.Context, t *asynq.Task) error {
	var p asynqpkg.OTPEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	return s.SendOTP(ctx, p.Email, p.Code)
}

func (s *Service) handleWelcome(ctx context.Context, t *asynq.Task) error {
	var p asynqpkg.WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	return s.SendWelcome(ctx, p.Email, p.Name)
}

func (s *Service) handleLowCredits(ctx context.Context, t *asynq.Task) error {
	var p asynqpkg.LowCreditsEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	return s.SendLowCredits(ctx, p.Email, p.Credits)
}

func (s *Service) handleAdminNotice(ctx context.Context, t *asynq.Task) error {
	var p asynqpkg.AdminNoticePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	return s.SendAdminNotice(ctx, p.Subject, p.Body)
}
