// Package monitor orchestrates the detection lifecycle: warmup, online
// scoring, and periodic retraining under concept drift.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"txn-sentinel/internal/alert"
	"txn-sentinel/internal/detect"
	"txn-sentinel/internal/domain"
	"txn-sentinel/internal/feature"
	"txn-sentinel/internal/ingest"
	"txn-sentinel/internal/model"
	"txn-sentinel/internal/observability"
	"txn-sentinel/internal/rules"
	"txn-sentinel/internal/storage"
	"txn-sentinel/internal/window"
)

// State of the detection lifecycle.
type State int

const (
	// StateUninitialized means no model exists yet; lines accumulate in
	// the rolling buffer until warmup completes.
	StateUninitialized State = iota
	// StateTrained means a model bundle exists and new lines are scored
	// online.
	StateTrained
)

// Defaults for controller configuration.
const (
	DefaultMinWarmup     = 50
	DefaultRetrainEvery  = 100
	DefaultBufferCap     = 5000
	DefaultWindow        = 60 * time.Second
	DefaultFlushInterval = 1 * time.Second
)

// bundle is the scoring state produced by one training: categorical
// encoding, standardization, model, and its threshold. It is replaced as
// a whole at retrain; the online path always reads the latest committed
// bundle.
type bundle struct {
	encoding *feature.Encoding
	scaler   *feature.Scaler
	model    model.ScoringModel
}

// Controller owns the rolling training buffer, the sliding windows, and
// the model bundle, and drives warmup, online detection, and retraining.
// All state is mutated by a single goroutine; batches are processed
// strictly in arrival order.
type Controller struct {
	parser  *ingest.LineParser
	windows *window.Tracker
	rules   *rules.Evaluator
	agg     *detect.Aggregator
	store   storage.AnomalyStore
	alerter alert.Alerter
	logger  *log.Logger

	newModel      func() model.ScoringModel
	minWarmup     int
	retrainEvery  int
	bufferCap     int
	flushInterval time.Duration

	state     State
	bundle    *bundle
	buffer    []string // rolling raw-line buffer, oldest first
	processed int      // events scored since last successful train
}

// Options configures a Controller. Store is required; everything else has
// a default.
type Options struct {
	Store   storage.AnomalyStore
	Alerter alert.Alerter // default: log-only
	Logger  *log.Logger

	// NewModel builds a fresh model for each training cycle.
	// Default: model.NewReconstructionModel.
	NewModel func() model.ScoringModel

	MinWarmup     int           // default 50
	RetrainEvery  int           // default 100
	BufferCap     int           // default 5000
	Window        time.Duration // default 60s
	FlushInterval time.Duration // default 1s, batching cadence in Run
}

// New creates a Controller in StateUninitialized.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	alerter := opts.Alerter
	if alerter == nil {
		alerter = alert.NewLogAlerter(logger)
	}

	newModel := opts.NewModel
	if newModel == nil {
		newModel = func() model.ScoringModel { return model.NewReconstructionModel() }
	}

	minWarmup := opts.MinWarmup
	if minWarmup == 0 {
		minWarmup = DefaultMinWarmup
	}
	retrainEvery := opts.RetrainEvery
	if retrainEvery == 0 {
		retrainEvery = DefaultRetrainEvery
	}
	bufferCap := opts.BufferCap
	if bufferCap == 0 {
		bufferCap = DefaultBufferCap
	}
	win := opts.Window
	if win == 0 {
		win = DefaultWindow
	}
	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = DefaultFlushInterval
	}

	windows := window.NewTracker(win)

	return &Controller{
		parser:        ingest.NewParser(),
		windows:       windows,
		rules:         rules.NewEvaluator(windows),
		agg:           detect.NewAggregator(),
		store:         opts.Store,
		alerter:       alerter,
		logger:        logger,
		newModel:      newModel,
		minWarmup:     minWarmup,
		retrainEvery:  retrainEvery,
		bufferCap:     bufferCap,
		flushInterval: flushInterval,
		state:         StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Run consumes the line source until ctx is cancelled, batching lines on
// the flush interval.
func (c *Controller) Run(ctx context.Context, source ingest.LineSource) error {
	lines, err := source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to line source: %w", err)
	}
	c.logger.Printf("[monitor] started, warmup=%d retrain_every=%d buffer_cap=%d",
		c.minWarmup, c.retrainEvery, c.bufferCap)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	var pending []string
	for {
		select {
		case <-ctx.Done():
			if len(pending) > 0 {
				c.HandleLines(ctx, pending)
			}
			c.logger.Printf("[monitor] stopping...")
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				return errors.New("line source channel closed")
			}
			pending = append(pending, line)

		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			c.HandleLines(ctx, pending)
			pending = nil
		}
	}
}

// HandleLines processes one batch of newly arrived raw lines in order:
// buffer, warmup training if due, online scoring, retrain if due. A
// failing cycle is logged and skipped; the loop never dies over one batch.
func (c *Controller) HandleLines(ctx context.Context, batch []string) {
	if len(batch) == 0 {
		return
	}
	observability.RecordLines(len(batch))

	c.buffer = append(c.buffer, batch...)
	if excess := len(c.buffer) - c.bufferCap; excess > 0 {
		c.buffer = c.buffer[excess:]
	}

	// Parse accounting covers every batch, warmup traffic included.
	events := c.parser.ParseBatch(batch)
	observability.RecordParsed(len(events), len(batch))

	if c.state == StateUninitialized {
		c.tryWarmup(ctx)
		observability.UpdateDetectionState(len(c.buffer), c.windows.GlobalSize())
		return
	}

	if len(events) > 0 {
		c.scoreBatch(ctx, events)

		c.processed += len(events)
		if c.processed >= c.retrainEvery {
			c.retrain(ctx)
		}
	}
	observability.UpdateDetectionState(len(c.buffer), c.windows.GlobalSize())
}

// tryWarmup trains the initial model once the buffer holds enough parsed
// events. Warmup events are never scored retroactively.
func (c *Controller) tryWarmup(ctx context.Context) {
	events := c.parser.ParseBatch(c.buffer)
	if len(events) < c.minWarmup {
		return
	}

	c.logger.Printf("[monitor] warmup reached (%d events), training model...", len(events))
	b, threshold, err := c.train(events)
	if err != nil {
		c.logger.Printf("[monitor] initial training failed: %v", err)
		observability.RecordTrainingError()
		return
	}

	c.bundle = b
	c.state = StateTrained
	c.processed = 0
	c.logger.Printf("[monitor] model trained, threshold=%.4f", threshold)
	c.notify(ctx, fmt.Sprintf("model trained on %d samples, anomaly threshold=%.4f", len(events), threshold))
}

// scoreBatch runs model scoring and rule evaluation for each event and
// emits anomaly records. A model failure degrades the batch to rule-only
// detection instead of blocking it.
func (c *Controller) scoreBatch(ctx context.Context, events []*domain.TransactionEvent) {
	b := c.bundle

	var scores []float64
	start := time.Now()
	matrix, _, _, err := feature.Encode(events, b.encoding, b.scaler)
	if err == nil {
		scores, err = b.model.Score(matrix)
	}
	if err != nil {
		c.logger.Printf("[monitor] scoring failed, rule-only detection for this batch: %v", err)
		scores = nil
	}
	observability.RecordScoreLatency(time.Since(start).Seconds())
	threshold := b.model.Threshold()

	for i, e := range events {
		ruleLabels := c.rules.Evaluate(e)

		flagged := false
		reconErr := 0.0
		if scores != nil && scores[i] > threshold {
			flagged = true
			reconErr = scores[i]
		}

		rec := c.agg.Build(e, ruleLabels, flagged, reconErr)
		if rec == nil {
			continue
		}

		if err := c.store.Append(ctx, rec); err != nil {
			c.logger.Printf("[monitor] persist anomaly record: %v", err)
			observability.RecordSinkError()
		}
		observability.RecordAnomaly(rec.Types)

		msg := fmt.Sprintf("anomaly [%s] merchant=%s amount=%.2f latency=%.1f err=%s",
			strings.Join(rec.Types, ", "), rec.Merchant, rec.Amount, rec.LatencyMs, formatErr(rec.ReconErr))
		if err := c.alerter.Send(ctx, msg); err != nil {
			c.logger.Printf("[monitor] alert delivery: %v", err)
			observability.RecordAlertError()
		}
	}
}

// retrain refits encoding, standardization, and model on the entire
// rolling buffer. On failure the previous bundle stays live and the
// counter is left alone so the next batch retries; on success the bundle
// is swapped and the counter resets.
func (c *Controller) retrain(ctx context.Context) {
	events := c.parser.ParseBatch(c.buffer)
	if len(events) == 0 {
		return
	}

	c.logger.Printf("[monitor] retraining on buffer of %d events...", len(events))
	b, threshold, err := c.train(events)
	if err != nil {
		c.logger.Printf("[monitor] retrain failed, keeping previous model: %v", err)
		observability.RecordTrainingError()
		return
	}

	c.bundle = b
	c.processed = 0
	c.logger.Printf("[monitor] model retrained, threshold=%.4f", threshold)
	c.notify(ctx, fmt.Sprintf("model retrained on %d samples, new threshold=%.4f", len(events), threshold))
}

// train builds a fresh bundle from the events: encoding and scaler are
// refit, a new model is trained, and the threshold comes from the model.
func (c *Controller) train(events []*domain.TransactionEvent) (*bundle, float64, error) {
	start := time.Now()

	matrix, enc, scaler, err := feature.Encode(events, nil, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("encode training batch: %w", err)
	}

	m := c.newModel()
	if err := m.Train(matrix); err != nil {
		return nil, 0, fmt.Errorf("train model: %w", err)
	}

	kind := "retrain"
	if c.state == StateUninitialized {
		kind = "initial"
	}
	observability.RecordTraining(kind, m.Threshold(), time.Since(start).Seconds())

	return &bundle{encoding: enc, scaler: scaler, model: m}, m.Threshold(), nil
}

// notify sends a lifecycle alert; failures are logged only.
func (c *Controller) notify(ctx context.Context, msg string) {
	if err := c.alerter.Send(ctx, msg); err != nil {
		c.logger.Printf("[monitor] alert delivery: %v", err)
		observability.RecordAlertError()
	}
}

func formatErr(v *float64) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprintf("%.4f", *v)
}
