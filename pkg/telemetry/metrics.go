// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/agis/pkg/errors"
)

// Metrics tracks gateway traffic and orchestration progress. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// gatewayCalls counts remote calls by role and outcome
	gatewayCalls metric.Int64Counter

	// gatewayRetries counts retried attempts by error code
	gatewayRetries metric.Int64Counter

	// gatewayDuration tracks remote call latency including retries
	gatewayDuration metric.Float64Histogram

	// errorCounter tracks errors by code and component
	errorCounter metric.Int64Counter

	// cycles counts orchestration cycles
	cycles metric.Int64Counter

	// tasks counts executed agent tasks by outcome
	tasks metric.Int64Counter

	// reviews counts leadership verdicts by step and verdict
	reviews metric.Int64Counter

	// escalations counts human escalations by reason
	escalations metric.Int64Counter

	mu sync.RWMutex
}

// NewMetrics creates the metric instruments on the global meter provider.
func NewMetrics(ctx context.Context) (*Metrics, error) {
	meter := otel.Meter("agis")

	gatewayCalls, err := meter.Int64Counter(
		"agis.gateway.calls",
		metric.WithDescription("Remote calls by role and outcome"),
	)
	if err != nil {
		return nil, err
	}

	gatewayRetries, err := meter.Int64Counter(
		"agis.gateway.retries",
		metric.WithDescription("Retried remote call attempts by error code"),
	)
	if err != nil {
		return nil, err
	}

	gatewayDuration, err := meter.Float64Histogram(
		"agis.gateway.duration",
		metric.WithDescription("Remote call latency including retries"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"agis.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	cycles, err := meter.Int64Counter(
		"agis.orchestration.cycles",
		metric.WithDescription("Orchestration cycles by phase"),
	)
	if err != nil {
		return nil, err
	}

	tasks, err := meter.Int64Counter(
		"agis.executor.tasks",
		metric.WithDescription("Executed agent tasks by outcome"),
	)
	if err != nil {
		return nil, err
	}

	reviews, err := meter.Int64Counter(
		"agis.leadership.verdicts",
		metric.WithDescription("Leadership verdicts by step"),
	)
	if err != nil {
		return nil, err
	}

	escalations, err := meter.Int64Counter(
		"agis.orchestration.escalations",
		metric.WithDescription("Human escalations by reason"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatewayCalls:    gatewayCalls,
		gatewayRetries:  gatewayRetries,
		gatewayDuration: gatewayDuration,
		errorCounter:    errorCounter,
		cycles:          cycles,
		tasks:           tasks,
		reviews:         reviews,
		escalations:     escalations,
	}, nil
}

// RecordGatewayCall records one completed remote call.
func (m *Metrics) RecordGatewayCall(ctx context.Context, role string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	outcome := "ok"
	if err != nil {
		outcome = string(errors.CodeOf(err))
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrRoleAlias, role),
		attribute.String("outcome", outcome),
	)
	m.gatewayCalls.Add(ctx, 1, attrs)
	m.gatewayDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordRetry records a retried attempt.
func (m *Metrics) RecordRetry(ctx context.Context, code errors.ErrorCode) {
	if m == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	m.gatewayRetries.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrGatewayErrorCode, string(code)),
		),
	)
}

// RecordError increments the error counter for the given error and component.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	recoverable := "unknown"
	if ae, ok := err.(*errors.AgisError); ok {
		recoverable = ae.RecoverableString()
	}
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", string(errors.CodeOf(err))),
			attribute.String("component", component),
			attribute.String("recoverable", recoverable),
		),
	)
}

// RecordCycle records one orchestration cycle.
func (m *Metrics) RecordCycle(ctx context.Context, phase string) {
	if m == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	m.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrPhase, phase)))
}

// RecordTask records one settled agent task.
func (m *Metrics) RecordTask(ctx context.Context, role string, failed bool) {
	if m == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.tasks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrRoleAlias, role),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordVerdict records a leadership decision such as audit/approve.
func (m *Metrics) RecordVerdict(ctx context.Context, step, verdict string) {
	if m == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	m.reviews.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("step", step),
			attribute.String(AttrVerdict, verdict),
		),
	)
}

// RecordEscalation records a suspension waiting for the human.
func (m *Metrics) RecordEscalation(ctx context.Context, reason string) {
	if m == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	m.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
