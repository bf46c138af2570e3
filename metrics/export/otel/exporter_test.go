package otel

import (
	"context"
	"sync"
	"testing"

	goGrant "github.com/MrEthical07/goGrant"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goGrant.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goGrant.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goGrant.MetricsSnapshot{
		Counters:   make(map[goGrant.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goGrant.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) EventsDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReaderMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findInt64(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReaderMeter()
	meter := provider.Meter("gogrant-test")

	src := &fakeSource{
		snapshot: goGrant.MetricsSnapshot{
			Counters: map[goGrant.MetricID]uint64{
				goGrant.MetricSignInSuccess: 3,
			},
			Histograms: map[goGrant.MetricID][]uint64{
				goGrant.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findInt64(rm, "gogrant_signin_success_total"); !ok || v != 3 {
		t.Fatalf("expected signin counter 3, got %d (found=%v)", v, ok)
	}
	if v, ok := findInt64(rm, "gogrant_events_dropped_total"); !ok || v != 1 {
		t.Fatalf("expected dropped counter 1, got %d (found=%v)", v, ok)
	}
	if v, ok := findInt64(rm, "gogrant_validate_latency_seconds_count"); !ok || v != 8 {
		t.Fatalf("expected histogram count 8, got %d (found=%v)", v, ok)
	}
	if v, ok := findInt64(rm, "gogrant_validate_latency_seconds_bucket_le_0_01"); !ok || v != 2 {
		t.Fatalf("expected cumulative bucket 2, got %d (found=%v)", v, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReaderMeter()
	meter := provider.Meter("gogrant-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
}

func TestExporterCloseStopsObservation(t *testing.T) {
	reader, provider := newReaderMeter()
	meter := provider.Meter("gogrant-test")
	src := &fakeSource{snapshot: goGrant.MetricsSnapshot{
		Counters: map[goGrant.MetricID]uint64{goGrant.MetricLogout: 4},
	}}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	if err := exp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if _, ok := findInt64(rm, "gogrant_logout_total"); ok {
		t.Fatal("expected no observation after Close")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReaderMeter()
	meter := provider.Meter("gogrant-test")

	src := &fakeSource{
		snapshot: goGrant.MetricsSnapshot{
			Counters: map[goGrant.MetricID]uint64{
				goGrant.MetricSignInSuccess: 1,
			},
			Histograms: map[goGrant.MetricID][]uint64{
				goGrant.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goGrant.MetricSignInSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
