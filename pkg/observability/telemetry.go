package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Telemetry owns the meter provider and the Prometheus registry it exports to
type Telemetry struct {
	serviceName string
	provider    *sdkmetric.MeterProvider
	handler     http.Handler
}

// NewTelemetry initializes OpenTelemetry metrics exported in Prometheus format
func NewTelemetry(serviceName string) (*Telemetry, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)

	otel.SetMeterProvider(provider)

	return &Telemetry{
		serviceName: serviceName,
		provider:    provider,
		handler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Meter returns the service meter
func (t *Telemetry) Meter() metric.Meter {
	return t.provider.Meter(t.serviceName)
}

// Handler serves the Prometheus scrape endpoint
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

// GinHandler serves handler from a gin route
func GinHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"message": "metrics handler not initialized",
			})
			return
		}
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// Shutdown flushes and stops the meter provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	return nil
}
