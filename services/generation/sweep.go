package generation

import (
	"context"

	asynqpkg "tuliu-backend/pkg/asynq"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// RegisterTasks wires the periodic pending-generation sweep into the asynq
// worker.
func RegisterTasks(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(asynqpkg.SweepPendingGenerationsTask, svc.handleSweep)
}

func (s *Service) handleSweep(ctx context.Context, _ *asynq.Task) error {
	n, err := s.SweepPending(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		zap.L().Warn("failed stuck pending generations", zap.Int64("count", n))
	}
	return nil
}
