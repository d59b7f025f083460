// Package mailer sends HTML email over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Message represents an email message
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds SMTP settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// BreakerConfig controls when the SMTP circuit opens
type BreakerConfig struct {
	// Timeout is how long the breaker stays open before letting a probe through
	Timeout time.Duration
	// MinRequests is how many sends are needed before the failure ratio counts
	MinRequests uint32
	// FailureRatio trips the breaker, e.g. 0.5 for half of the sends failing
	FailureRatio float64
}

// DefaultBreakerConfig returns the breaker settings used in production
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

// ErrCircuitOpen is returned while the SMTP circuit is open
var ErrCircuitOpen = gobreaker.ErrOpenState

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends email through an SMTP server behind a circuit breaker
type SMTPMailer struct {
	from    string
	dialer  dialer
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewSMTPMailer creates a mailer for the given SMTP server
func NewSMTPMailer(cfg Config, breakerCfg BreakerConfig, logger *zap.Logger) (*SMTPMailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newSMTPMailer(cfg.From, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), breakerCfg, logger), nil
}

func newSMTPMailer(from string, d dialer, breakerCfg BreakerConfig, logger *zap.Logger) *SMTPMailer {
	settings := gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerCfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerCfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Mail circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &SMTPMailer{
		from:    from,
		dialer:  d,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Send delivers msg; it fails fast while the circuit is open
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("no recipient specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTMLBody)

	_, err := m.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, m.dialer.DialAndSend(gm)
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// State returns the current breaker state
func (m *SMTPMailer) State() gobreaker.State {
	return m.breaker.State()
}

func (c Config) validate() error {
	if c.Host == "" {
		return errors.New("missing SMTP host")
	}
	if c.Port == 0 {
		return errors.New("missing SMTP port")
	}
	if c.From == "" {
		return errors.New("missing SMTP sender address")
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.
// It is used when no SMTP server is configured.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a log-only mailer
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs msg
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("Email not sent, SMTP is not configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.HTMLBody),
	)
	return nil
}
