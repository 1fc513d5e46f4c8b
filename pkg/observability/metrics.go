package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

const (
	metricRequestsTotal    = "gitgraft.requests.total"
	metricRequestDuration  = "gitgraft.request.duration.seconds"
	metricErrorsTotal      = "gitgraft.errors.total"
	metricInflightRequests = "gitgraft.inflight.requests"

	attrOp     = "op"
	attrStatus = "status"

	statusOK    = "ok"
	statusError = "error"
)

// durationBucketBoundaries covers 10ms to 600s: a single bookmark move up to a
// multi-minute import batch.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// instruments creates instruments on one meter and collects construction errors.
// A failed instrument is replaced by a no-op so callers never hold nil.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) counter(name, description, unit string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("create %s: %w", name, err))

		return noopmetric.Int64Counter{}
	}

	return c
}

func (in *instruments) gauge(name, description, unit string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("create %s: %w", name, err))

		return noopmetric.Int64UpDownCounter{}
	}

	return g
}

// seconds creates a duration histogram using durationBucketBoundaries.
func (in *instruments) seconds(name, description string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(description),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("create %s: %w", name, err))

		return noopmetric.Float64Histogram{}
	}

	return h
}

func (in *instruments) err() error {
	return errors.Join(in.errs...)
}

// REDMetrics records rate, errors and duration of requests served by the
// diagnostics endpoint and the MCP tools. A nil *REDMetrics records nothing.
type REDMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

// NewREDMetrics creates the request instruments on mt.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	in := &instruments{meter: mt}

	red := &REDMetrics{
		requests: in.counter(metricRequestsTotal, "Requests served, by operation and status", "{request}"),
		duration: in.seconds(metricRequestDuration, "Request duration in seconds"),
		errors:   in.counter(metricErrorsTotal, "Requests that failed, by operation", "{error}"),
		inflight: in.gauge(metricInflightRequests, "Requests in progress", "{request}"),
	}

	err := in.err()
	if err != nil {
		return nil, err
	}

	return red, nil
}

// RecordRequest records one finished request. Status is statusOK or statusError.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	if rm == nil {
		return
	}

	opAttr := attribute.String(attrOp, op)
	attrs := metric.WithAttributes(opAttr, attribute.String(attrStatus, status))

	rm.requests.Add(ctx, 1, attrs)
	rm.duration.Record(ctx, duration.Seconds(), attrs)

	if status == statusError {
		rm.errors.Add(ctx, 1, metric.WithAttributes(opAttr))
	}
}

// TrackInflight counts op as in progress until the returned func is called.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	if rm == nil {
		return func() {}
	}

	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflight.Add(ctx, 1, attrs)

	return func() {
		rm.inflight.Add(ctx, -1, attrs)
	}
}
