package mailer

import (
	"context"
	"fmt"

	"tuliu-backend/pkg/config"

	"github.com/wneessen/go-mail"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Service sends transactional email over SMTP. With no SMTP host configured
// (local development) messages are logged instead of sent.
type Service struct {
	client     *mail.Client
	from       string
	adminEmail string
}

type ServiceParams struct {
	fx.In
	Config *config.Config
}

func NewService(p ServiceParams) (*Service, error) {
	e := p.Config.Email

	svc := &Service{
		from:       e.From,
		adminEmail: e.AdminEmail,
	}

	if e.Host == "" {
		zap.L().Warn("no SMTP host configured, emails will be logged only")
		return svc, nil
	}

	opts := []mail.Option{
		mail.WithPort(e.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.User),
		mail.WithPassword(e.Password),
	}
	if e.Port == 465 {
		opts = append(opts, mail.WithSSL())
	}

	client, err := mail.NewClient(e.Host, opts...)
	if err != nil {
		return nil, err
	}
	svc.client = client

	return svc, nil
}

func (s *Service) send(ctx context.Context, to, subject, htmlBody string) error {
	if s.client == nil {
		zap.L().Info("email (not sent)", zap.String("to", to), zap.String("subject", subject))
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	return s.client.DialAndSendWithContext(ctx, msg)
}

func (s *Service) SendOTP(ctx context.Context, email, code string) error {
	body := fmt.Sprintf(`<h2>Email verification</h2>
<p>Your verification code is:</p>
<p style="font-size:36px;font-weight:bold;letter-spacing:5px;">%s</p>
<p>The code is valid for 10 minutes. Do not share it with anyone.</p>`, code)
	return s.send(ctx, email, "Tuliu AI - Verification code", body)
}

func (s *Service) SendWelcome(ctx context.Context, email, name string) error {
	body := fmt.Sprintf(`<h2>Welcome %s!</h2>
<p>Thanks for joining Tuliu AI. You received <strong>10 credits</strong> to generate images.</p>
<ul>
<li>Trial (800x800): 0 credits, watermarked</li>
<li>Standard (1024x1024): 1 credit</li>
<li>HD (2048x2048): 2 credits</li>
<li>Ultra (4096x4096): 4 credits</li>
</ul>`, name)
	return s.send(ctx, email, "Tuliu AI - Welcome!", body)
}

func (s *Service) SendLowCredits(ctx context.Context, email string, credits int64) error {
	body := fmt.Sprintf(`<h2>Low credits</h2>
<p>Your account is running low on credits. Current balance: <strong>%d credits</strong>.</p>
<p>Upgrade your plan to keep generating images.</p>`, credits)
	return s.send(ctx, email, "Tuliu AI - Low credits", body)
}

func (s *Service) SendAdminNotice(ctx context.Context, subject, htmlBody string) error {
	if s.adminEmail == "" {
		return nil
	}
	return s.send(ctx, s.adminEmail, subject, htmlBody)
}
