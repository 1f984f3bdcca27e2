package monitor

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"txn-sentinel/internal/domain"
	"txn-sentinel/internal/model"
	"txn-sentinel/internal/model/stub"
	"txn-sentinel/internal/observability"
	"txn-sentinel/internal/storage/memory"
)

var noon = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// modelFactory hands out scripted models in order, falling back to a
// default stub once the queue is empty. Every model it created stays
// addressable for assertions.
type modelFactory struct {
	queue  []*stub.Model
	models []*stub.Model
}

func (f *modelFactory) new() model.ScoringModel {
	var m *stub.Model
	if len(f.queue) > 0 {
		m = f.queue[0]
		f.queue = f.queue[1:]
	} else {
		m = &stub.Model{ThresholdValue: 10}
	}
	f.models = append(f.models, m)
	return m
}

func line(ts time.Time, merchant string, latency, amount float64) string {
	return fmt.Sprintf("[%s] status=SUCCESS latency=%.1fms merchant=%s region=Seoul amount=%.1f",
		ts.Format(domain.TimeLayout), latency, merchant, amount)
}

// normalLines produces unremarkable noon transactions one second apart.
func normalLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = line(noon.Add(time.Duration(i)*time.Second), "CU", 50, 1000)
	}
	return lines
}

func newTestController(f *modelFactory, store *memory.AnomalyStore, minWarmup, retrainEvery, bufferCap int) *Controller {
	return New(Options{
		Store:        store,
		Logger:       log.New(io.Discard, "", 0),
		NewModel:     f.new,
		MinWarmup:    minWarmup,
		RetrainEvery: retrainEvery,
		BufferCap:    bufferCap,
	})
}

func TestWarmupWaitsForMinEvents(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{}
	store := memory.NewAnomalyStore()
	c := newTestController(f, store, 5, 100, 100)

	c.HandleLines(ctx, normalLines(4))
	if c.State() != StateUninitialized {
		t.Fatal("trained before warmup threshold")
	}
	if len(f.models) != 0 {
		t.Fatalf("expected no model yet, got %d", len(f.models))
	}

	c.HandleLines(ctx, []string{line(noon.Add(10*time.Second), "CU", 50, 1000)})
	if c.State() != StateTrained {
		t.Fatal("expected trained state after warmup")
	}
	if len(f.models) != 1 {
		t.Fatalf("expected one model, got %d", len(f.models))
	}
	if rows := len(f.models[0].TrainCalls[0]); rows != 5 {
		t.Errorf("expected training on 5 events, got %d", rows)
	}

	// Warmup events are never scored retroactively.
	if got := len(store.All()); got != 0 {
		t.Errorf("expected no records from warmup, got %d", got)
	}
}

func TestWarmupCountsOnlyParseableLines(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{}
	c := newTestController(f, memory.NewAnomalyStore(), 3, 100, 100)

	c.HandleLines(ctx, []string{"garbage", "also not a transaction"})
	c.HandleLines(ctx, normalLines(2))
	if c.State() != StateUninitialized {
		t.Fatal("unparseable lines counted toward warmup")
	}

	c.HandleLines(ctx, []string{line(noon.Add(10*time.Second), "CU", 50, 1000)})
	if c.State() != StateTrained {
		t.Fatal("expected trained state once 3 events parsed")
	}
}

func TestParseCountersTrackWarmupTraffic(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{}
	c := newTestController(f, memory.NewAnomalyStore(), 50, 100, 100)

	// Counters are process-global, so assert on deltas.
	linesBefore := testutil.ToFloat64(observability.DefaultMetrics.LinesRead)
	parsedBefore := testutil.ToFloat64(observability.DefaultMetrics.EventsParsed)
	dropsBefore := testutil.ToFloat64(observability.DefaultMetrics.ParseDrops)

	batch := append(normalLines(3), "garbage line")
	c.HandleLines(ctx, batch)
	if c.State() != StateUninitialized {
		t.Fatal("expected warmup still in progress")
	}

	if got := testutil.ToFloat64(observability.DefaultMetrics.LinesRead) - linesBefore; got != 4 {
		t.Errorf("expected 4 lines counted, got %g", got)
	}
	if got := testutil.ToFloat64(observability.DefaultMetrics.EventsParsed) - parsedBefore; got != 3 {
		t.Errorf("expected 3 parsed events counted during warmup, got %g", got)
	}
	if got := testutil.ToFloat64(observability.DefaultMetrics.ParseDrops) - dropsBefore; got != 1 {
		t.Errorf("expected 1 parse drop counted during warmup, got %g", got)
	}
}

func TestNormalEventsProduceNoRecords(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{}
	store := memory.NewAnomalyStore()
	c := newTestController(f, store, 2, 100, 100)

	c.HandleLines(ctx, normalLines(2))
	c.HandleLines(ctx, []string{line(noon.Add(time.Minute), "CU", 50, 1000)})

	if got := len(store.All()); got != 0 {
		t.Errorf("expected no records for a normal event, got %d", got)
	}
}

func TestOffHourEventDetectedOnline(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{}
	store := memory.NewAnomalyStore()
	c := newTestController(f, store, 2, 100, 100)

	c.HandleLines(ctx, normalLines(2))
	c.HandleLines(ctx, []string{
		"[2024-01-01 02:00:00] status=SUCCESS latency=50.0ms merchant=CU region=Seoul amount=1000",
	})

	records := store.All()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	rec := records[0]
	if len(rec.Types) != 1 || rec.Types[0] != domain.LabelOffHour {
		t.Errorf("expected types [off_hour], got %v", rec.Types)
	}
	if rec.Timestamp != "2024-01-01 02:00:00" {
		t.Errorf("unexpected timestamp %q", rec.Timestamp)
	}
	if rec.ReconErr != nil {
		t.Errorf("unexpected reconstruction error %f", *rec.ReconErr)
	}
}

func TestFullyAnomalousEventDetectedOnline(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{}
	store := memory.NewAnomalyStore()
	c := newTestController(f, store, 2, 100, 100)

	c.HandleLines(ctx, normalLines(2))
	c.HandleLines(ctx, []string{
		"[2024-01-01 01:00:00] status=FAIL latency=1500.0ms merchant=odd_merchant_7 region=odd_region_3 amount=600000",
	})

	records := store.All()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	want := []string{
		domain.LabelComposite,
		domain.LabelFailure,
		domain.LabelHighAmount,
		domain.LabelHighLatency,
		domain.LabelOffHour,
		domain.LabelUnknownMerchant,
		domain.LabelUnknownRegion,
	}
	got := records[0].Types
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestModelFlagProducesAutoencoderRecord(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{queue: []*stub.Model{{Errors: []float64{42}, ThresholdValue: 10}}}
	store := memory.NewAnomalyStore()
	c := newTestController(f, store, 2, 100, 100)

	c.HandleLines(ctx, normalLines(2))
	c.HandleLines(ctx, []string{line(noon.Add(time.Minute), "CU", 50, 1000)})

	records := store.All()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	rec := records[0]
	if len(rec.Types) != 1 || rec.Types[0] != domain.LabelAutoencoder {
		t.Errorf("expected types [autoencoder], got %v", rec.Types)
	}
	if rec.ReconErr == nil || *rec.ReconErr != 42 {
		t.Errorf("expected recon err 42, got %v", rec.ReconErr)
	}
}

func TestScoringFailureDegradesToRules(t *testing.T) {
	ctx := context.Background()
	broken := &stub.Model{ThresholdValue: 10}
	f := &modelFactory{queue: []*stub.Model{broken}}
	store := memory.NewAnomalyStore()
	c := newTestController(f, store, 2, 100, 100)

	c.HandleLines(ctx, normalLines(2))
	broken.ScoreErr = fmt.Errorf("model backend unavailable")

	// A failed transaction still gets its rule label without the model.
	c.HandleLines(ctx, []string{
		fmt.Sprintf("[%s] status=TIMEOUT latency=50.0ms merchant=CU region=Seoul amount=1000.0",
			noon.Add(time.Minute).Format(domain.TimeLayout)),
	})

	records := store.All()
	if len(records) != 1 {
		t.Fatalf("expected one rule-only record, got %d", len(records))
	}
	if len(records[0].Types) != 1 || records[0].Types[0] != domain.LabelFailure {
		t.Errorf("expected types [failure], got %v", records[0].Types)
	}
	if records[0].ReconErr != nil {
		t.Error("recon err set despite scoring failure")
	}
}

func TestRetrainAfterProcessedThreshold(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{}
	c := newTestController(f, memory.NewAnomalyStore(), 2, 3, 100)

	c.HandleLines(ctx, normalLines(2))
	if len(f.models) != 1 {
		t.Fatalf("expected one model after warmup, got %d", len(f.models))
	}

	// Three scored events reach the retrain threshold; retraining uses the
	// whole buffer (warmup lines included).
	batch := []string{
		line(noon.Add(10*time.Second), "CU", 50, 1000),
		line(noon.Add(11*time.Second), "CU", 50, 1000),
		line(noon.Add(12*time.Second), "CU", 50, 1000),
	}
	c.HandleLines(ctx, batch)

	if len(f.models) != 2 {
		t.Fatalf("expected retrain to build a second model, got %d", len(f.models))
	}
	if rows := len(f.models[1].TrainCalls[0]); rows != 5 {
		t.Errorf("expected retraining on 5 buffered events, got %d", rows)
	}

	// Counter reset: two more events stay under the threshold.
	c.HandleLines(ctx, []string{
		line(noon.Add(13*time.Second), "CU", 50, 1000),
		line(noon.Add(14*time.Second), "CU", 50, 1000),
	})
	if len(f.models) != 2 {
		t.Errorf("expected no retrain below threshold, got %d models", len(f.models))
	}
}

func TestRetrainFailureKeepsModelAndRetries(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{queue: []*stub.Model{
		{ThresholdValue: 10},
		{ThresholdValue: 10, TrainErr: fmt.Errorf("not enough variance")},
	}}
	c := newTestController(f, memory.NewAnomalyStore(), 2, 2, 100)

	c.HandleLines(ctx, normalLines(2))

	c.HandleLines(ctx, []string{
		line(noon.Add(10*time.Second), "CU", 50, 1000),
		line(noon.Add(11*time.Second), "CU", 50, 1000),
	})
	if len(f.models) != 2 {
		t.Fatalf("expected failed retrain attempt, got %d models", len(f.models))
	}
	if c.State() != StateTrained {
		t.Fatal("retrain failure must not drop the live model")
	}

	// The counter was not reset, so the very next batch retries.
	c.HandleLines(ctx, []string{line(noon.Add(12*time.Second), "CU", 50, 1000)})
	if len(f.models) != 3 {
		t.Fatalf("expected retry retrain, got %d models", len(f.models))
	}
	if len(f.models[2].TrainCalls) != 1 {
		t.Error("expected third model to train successfully")
	}
}

func TestBufferCapBoundsRetraining(t *testing.T) {
	ctx := context.Background()
	f := &modelFactory{}
	c := newTestController(f, memory.NewAnomalyStore(), 2, 3, 4)

	c.HandleLines(ctx, normalLines(2))
	c.HandleLines(ctx, []string{
		line(noon.Add(10*time.Second), "CU", 50, 1000),
		line(noon.Add(11*time.Second), "CU", 50, 1000),
		line(noon.Add(12*time.Second), "CU", 50, 1000),
	})

	if len(f.models) != 2 {
		t.Fatalf("expected retrain, got %d models", len(f.models))
	}
	if rows := len(f.models[1].TrainCalls[0]); rows != 4 {
		t.Errorf("expected retraining capped at 4 buffered events, got %d", rows)
	}
}

// chanSource replays a fixed channel, for exercising Run.
type chanSource struct {
	lines chan string
}

func (s *chanSource) Subscribe(context.Context) (<-chan string, error) {
	return s.lines, nil
}

func TestRunStopsOnClosedSource(t *testing.T) {
	f := &modelFactory{}
	c := newTestController(f, memory.NewAnomalyStore(), 2, 100, 100)

	src := &chanSource{lines: make(chan string)}
	close(src.lines)

	if err := c.Run(context.Background(), src); err == nil {
		t.Error("expected error when line source closes")
	}
}

func TestRunFlushesPendingOnCancel(t *testing.T) {
	f := &modelFactory{}
	store := memory.NewAnomalyStore()
	c := New(Options{
		Store:         store,
		Logger:        log.New(io.Discard, "", 0),
		NewModel:      f.new,
		MinWarmup:     2,
		RetrainEvery:  100,
		BufferCap:     100,
		FlushInterval: time.Hour, // never ticks within the test
	})

	src := &chanSource{lines: make(chan string, 2)}
	for _, l := range normalLines(2) {
		src.lines <- l
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, src) }()

	// Give the loop time to drain the channel into its pending batch.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if c.State() != StateTrained {
		t.Error("expected pending lines flushed and warmup completed on shutdown")
	}
}
