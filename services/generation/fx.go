package generation

import (
	"tuliu-backend/services/ai"
	"tuliu-backend/services/watermark"

	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(
		NewService,
		NewHandler,
		func(c *ai.Client) Translator { return c },
		func(c *ai.Client) ImageGenerator { return c },
		func(w *watermark.Service) Watermarker { return w },
	),
	fx.Invoke(
		RegisterRoutes,
		RegisterTasks,
	),
)
