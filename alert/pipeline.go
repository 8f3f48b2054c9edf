package alert

import (
	"context"
	"time"

	"logwarden/core"
	"logwarden/detect"
	"logwarden/metrics"

	"go.uber.org/zap"
)

// entryTimeout bounds the background work for a single entry.
const entryTimeout = 30 * time.Second

// Pipeline runs threat detection and alert rule evaluation for ingested
// entries on a bounded worker pool. Ingestion hands an entry over and
// returns; a full queue drops the evaluation work for that entry rather than
// blocking the write path.
type Pipeline struct {
	pool   *core.WorkerPool
	engine *Engine
	ctx    context.Context
	logger *zap.SugaredLogger
}

// NewPipeline creates the evaluation pipeline. ctx is the application
// lifecycle context; per-entry work derives a timeout from it.
func NewPipeline(ctx context.Context, engine *Engine, workers, queueSize int, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		pool:   core.NewWorkerPool(ctx, workers, queueSize, logger),
		engine: engine,
		ctx:    ctx,
		logger: logger,
	}
}

// Start launches the workers.
func (p *Pipeline) Start() {
	p.pool.Start()
}

// Stop drains queued entries and joins the workers.
func (p *Pipeline) Stop() {
	p.pool.Stop()
}

// Enqueue schedules background evaluation of a persisted entry. Never blocks
// and never returns an error to the ingesting caller; a full queue is logged
// and counted.
func (p *Pipeline) Enqueue(entry *core.LogEntry) {
	err := p.pool.TrySubmit(func() {
		p.process(entry)
	})
	if err != nil {
		metrics.PipelineDropped.Inc()
		p.logger.Warnw("Evaluation queue full, dropping background evaluation for entry",
			"log_id", entry.ID, "correlation_id", entry.CorrelationID, "error", err)
	}
}

func (p *Pipeline) process(entry *core.LogEntry) {
	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(p.ctx, entryTimeout)
	defer cancel()

	// Both detection paths run for every entry; a static detection does not
	// short-circuit user rule evaluation or vice versa.
	p.engine.RecordDetection(ctx, entry, detect.DetectThreats(entry))
	p.engine.EvaluateRules(ctx, entry)
}

// QueueLen reports pending entries, for health reporting.
func (p *Pipeline) QueueLen() int {
	return p.pool.QueueLen()
}
