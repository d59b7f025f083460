package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts account lifecycle events. A nil *Metrics records nothing.
type Metrics struct {
	registrations metric.Int64Counter
	logins        metric.Int64Counter
	refreshes     metric.Int64Counter
	reaped        metric.Int64Counter
	emails        metric.Int64Counter
}

// NewMetrics registers the counters on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	registrations, err := meter.Int64Counter("auth.registrations",
		metric.WithDescription("Accounts created"))
	if err != nil {
		return nil, fmt.Errorf("failed to create registrations counter: %w", err)
	}

	logins, err := meter.Int64Counter("auth.logins",
		metric.WithDescription("Login attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create logins counter: %w", err)
	}

	refreshes, err := meter.Int64Counter("auth.refreshes",
		metric.WithDescription("Refresh token rotations by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create refreshes counter: %w", err)
	}

	reaped, err := meter.Int64Counter("auth.unverified_reaped",
		metric.WithDescription("Unverified accounts deleted after the grace period"))
	if err != nil {
		return nil, fmt.Errorf("failed to create reaped counter: %w", err)
	}

	emails, err := meter.Int64Counter("auth.emails",
		metric.WithDescription("Emails sent by kind and outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create emails counter: %w", err)
	}

	return &Metrics{
		registrations: registrations,
		logins:        logins,
		refreshes:     refreshes,
		reaped:        reaped,
		emails:        emails,
	}, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "failure")
	}
	return attribute.String("outcome", "success")
}

func (m *Metrics) registration(ctx context.Context) {
	if m == nil {
		return
	}
	m.registrations.Add(ctx, 1)
}

func (m *Metrics) login(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

func (m *Metrics) refresh(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

func (m *Metrics) reap(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.reaped.Add(ctx, int64(n))
}

func (m *Metrics) email(ctx context.Context, kind string, err error) {
	if m == nil {
		return
	}
	m.emails.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind), outcome(err)))
}
