package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/pkg/mailer"
	"go.uber.org/zap"
)

const (
	emailKindVerification  = "verification"
	emailKindPasswordReset = "password_reset"
)

var (
	verificationTemplate = template.Must(template.New("verification").Parse(
		`<p>Hi {{.Name}},</p>
<p>Please confirm your email address to activate your account.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>The link expires in {{.ExpiresIn}}. Accounts that are not verified in time are removed.</p>`))

	passwordResetTemplate = template.Must(template.New("password_reset").Parse(
		`<p>Hi {{.Name}},</p>
<p>We received a request to reset your password.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>The link expires in {{.ExpiresIn}}. If you did not ask for this, ignore this email.</p>`))
)

type emailData struct {
	Name      string
	Link      string
	ExpiresIn string
}

// Notifier sends account emails in the background.
// Delivery failures are logged and never reach the caller.
type Notifier struct {
	sender    mailer.Sender
	clientURL string
	timeout   time.Duration
	metrics   *Metrics
	logger    *zap.Logger

	wg sync.WaitGroup
}

// NewNotifier creates a notifier building links on clientURL
func NewNotifier(sender mailer.Sender, clientURL string, timeout time.Duration, metrics *Metrics, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:    sender,
		clientURL: strings.TrimRight(clientURL, "/"),
		timeout:   timeout,
		metrics:   metrics,
		logger:    logger,
	}
}

// SendVerification mails the email-verification link for token
func (n *Notifier) SendVerification(ctx context.Context, user *domain.User, token string, ttl time.Duration) {
	n.dispatch(ctx, user, emailKindVerification, "Verify your email address", verificationTemplate, emailData{
		Name:      user.Fullname,
		Link:      fmt.Sprintf("%s/verify-email/%s", n.clientURL, token),
		ExpiresIn: formatTTL(ttl),
	})
}

// SendPasswordReset mails the password-reset link for token
func (n *Notifier) SendPasswordReset(ctx context.Context, user *domain.User, token string, ttl time.Duration) {
	n.dispatch(ctx, user, emailKindPasswordReset, "Reset your password", passwordResetTemplate, emailData{
		Name:      user.Fullname,
		Link:      fmt.Sprintf("%s/reset-password/%s", n.clientURL, token),
		ExpiresIn: formatTTL(ttl),
	})
}

// Wait blocks until every pending send finished or ctx is done
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending emails not delivered: %w", ctx.Err())
	}
}

func formatTTL(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}

func (n *Notifier) dispatch(ctx context.Context, user *domain.User, kind, subject string, tmpl *template.Template, data emailData) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		n.logger.Error("failed to render email",
			zap.String("kind", kind),
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return
	}

	msg := mailer.Message{
		To:       user.Email,
		Subject:  subject,
		HTMLBody: body.String(),
	}
	userID := user.ID

	// the send outlives the request that triggered it
	sendCtx := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(sendCtx, n.timeout)
		defer cancel()

		err := n.sender.Send(ctx, msg)
		n.metrics.email(ctx, kind, err)
		if err != nil {
			n.logger.Warn("failed to send email",
				zap.String("kind", kind),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return
		}

		n.logger.Debug("email sent",
			zap.String("kind", kind),
			zap.String("user_id", userID),
		)
	}()
}
