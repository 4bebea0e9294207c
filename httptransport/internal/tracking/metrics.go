// Package tracking records OpenTelemetry metrics and spans for rate-limited
// calls made through httptransport.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "storeclient/httptransport"

	metricAttempts    = "storeclient.transport.attempts"      // Counter
	metricRateLimited = "storeclient.transport.rate_limited"  // Counter
	metricWait        = "storeclient.transport.wait.duration" // Histogram in seconds
	metricCall        = "storeclient.transport.call.duration" // Histogram in seconds

	attrMethod  = "http.request.method"
	attrOutcome = "storeclient.outcome"
	attrStatus  = "http.response.status_code"
)

// Attempt outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeRateLimited    = "rate_limited"
	OutcomeTransportError = "transport_error"
)

var (
	meter         metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	attemptCounter     metric.Int64Counter
	rateLimitedCounter metric.Int64Counter
	waitDuration       metric.Float64Histogram
	callDuration       metric.Float64Histogram
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize transport metric %s: %v\n", metricName, err)
	}
}

func initMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if meter != nil {
		return
	}

	meter = otel.Meter(meterName)

	var err error

	attemptCounter, err = meter.Int64Counter(
		metricAttempts,
		metric.WithDescription("Number of sends made by the transport, by outcome"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricAttempts, err)

	rateLimitedCounter, err = meter.Int64Counter(
		metricRateLimited,
		metric.WithDescription("Number of rate-limited responses received"),
		metric.WithUnit("{response}"),
	)
	logMetricError(metricRateLimited, err)

	waitDuration, err = meter.Float64Histogram(
		metricWait,
		metric.WithDescription("Time spent waiting before a retry"),
		metric.WithUnit("s"),
	)
	logMetricError(metricWait, err)

	callDuration, err = meter.Float64Histogram(
		metricCall,
		metric.WithDescription("Duration of a logical call including retries"),
		metric.WithUnit("s"),
	)
	logMetricError(metricCall, err)

	metricsInited = true
}

func ensureMeterInitialized() {
	meterOnce.Do(initMeter)
}

// RecordAttempt counts one send and its outcome. status is 0 for transport errors.
func RecordAttempt(ctx context.Context, method, outcome string, status int) {
	ensureMeterInitialized()

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrOutcome, outcome),
	}
	if status > 0 {
		attrs = append(attrs, attribute.Int(attrStatus, status))
	}

	if attemptCounter != nil {
		attemptCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if outcome == OutcomeRateLimited && rateLimitedCounter != nil {
		rateLimitedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(attrMethod, method)))
	}
}

// RecordWait records a completed or interrupted wait between attempts.
func RecordWait(ctx context.Context, method string, d time.Duration) {
	ensureMeterInitialized()

	if waitDuration != nil {
		waitDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(attrMethod, method)))
	}
}

// RecordCall records the total duration of a logical call and its terminal outcome.
func RecordCall(ctx context.Context, method, outcome string, d time.Duration) {
	ensureMeterInitialized()

	if callDuration != nil {
		callDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String(attrMethod, method),
			attribute.String(attrOutcome, outcome),
		))
	}
}

// IsInitialized returns true if transport metrics have been initialized.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting resets the metric state for testing purposes.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	meter = nil
	attemptCounter = nil
	rateLimitedCounter = nil
	waitDuration = nil
	callDuration = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
