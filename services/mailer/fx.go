package mailer

import (
	"go.uber.org/fx"
)

var Module = fx.Module("mailer.service",
	fx.Provide(NewService),
	fx.Invoke(RegisterTasks),
)
