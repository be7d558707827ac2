package asynq

const (
	SendOTPEmailTask        = "mailer:otp"
	SendWelcomeEmailTask    = "mailer:welcome"
	SendLowCreditsEmailTask = "mailer:low_credits"
	SendAdminNoticeTask     = "mailer:admin_notice"

	SweepPendingGenerationsTask = "generation:sweep_pending"
)

type OTPEmailPayload struct {
	Email string
	Code  string
}

type WelcomeEmailPayload struct {
	Email string
	Name  string
}

type LowCreditsEmailPayload struct {
	Email   string
	Credits int64
}

type AdminNoticePayload struct {
	Subject string
	Body    string
}
