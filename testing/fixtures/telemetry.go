package fixtures

import (
	"context"
	"sync"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// MetricPoint is the aggregated value of one instrument across all of its
// attribute sets. Count is only set for histograms.
type MetricPoint struct {
	Sum   float64
	Count uint64
}

// TelemetrySink is an in-memory metric and span exporter. It keeps the
// instruments of the most recent metric export and the names of all
// exported spans.
//
//	sink := &fixtures.TelemetrySink{}
//	client, _ := apiclient.New(cfg, apiclient.WithObservability(
//		observability.WithMetricExporter(sink),
//		observability.WithSpanExporter(sink),
//	))
type TelemetrySink struct {
	mu      sync.Mutex
	exports int
	metrics map[string]MetricPoint
	spans   []string
}

var (
	_ sdkmetric.Exporter    = (*TelemetrySink)(nil)
	_ sdktrace.SpanExporter = (*TelemetrySink)(nil)
)

func (s *TelemetrySink) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (s *TelemetrySink) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

// Export snapshots rm. The reader reuses rm after Export returns, so only
// the aggregated values are kept.
func (s *TelemetrySink) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	snapshot := make(map[string]MetricPoint)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			snapshot[m.Name] = aggregate(m.Data)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports++
	s.metrics = snapshot
	return nil
}

func aggregate(data metricdata.Aggregation) MetricPoint {
	var p MetricPoint
	switch d := data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range d.DataPoints {
			p.Sum += float64(dp.Value)
		}
	case metricdata.Sum[float64]:
		for _, dp := range d.DataPoints {
			p.Sum += dp.Value
		}
	case metricdata.Histogram[float64]:
		for _, dp := range d.DataPoints {
			p.Sum += dp.Sum
			p.Count += dp.Count
		}
	}
	return p
}

// ExportSpans records the names of spans.
func (s *TelemetrySink) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, span := range spans {
		s.spans = append(s.spans, span.Name())
	}
	return nil
}

func (s *TelemetrySink) ForceFlush(context.Context) error { return nil }

// Shutdown keeps the recorded data so it can be inspected afterwards.
func (s *TelemetrySink) Shutdown(context.Context) error { return nil }

// MetricExports returns how many metric exports were received.
func (s *TelemetrySink) MetricExports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}

// Metric returns the last exported value of the named instrument.
func (s *TelemetrySink) Metric(name string) (MetricPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.metrics[name]
	return p, ok
}

// SpanNames returns the names of all exported spans in export order.
func (s *TelemetrySink) SpanNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spans...)
}
