// Package middleware holds the ingest pipeline between the market feed and
// the analytics aggregator.
package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"WalletWatch/internal/domain/models"
	domrepo "WalletWatch/internal/domain/repository"
	"WalletWatch/internal/service/ratelimit"
)

const (
	defaultMaxRPS     = 20
	defaultBufferSize = 1000
	flushBackoffMin   = 50 * time.Millisecond
	flushBackoffMax   = 2 * time.Second
)

// Proc is the downstream trade processor.
type Proc interface {
	Process(ctx context.Context, t *models.Trade) error
}

// RealtimePipeline validates and throttles incoming trades before the
// aggregator sees them. Trades rejected downstream are buffered and retried
// in the background with backoff, so a transient aggregator error does not
// lose the trade.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics

	maxRPS    int
	throttle  *ratelimit.Limiter
	transform func(*models.Trade) *models.Trade

	bufCh  chan *models.Trade
	stopCh chan struct{}

	mu      sync.Mutex
	started bool
}

type PipelineOption func(*pipelineConfig)

type pipelineConfig struct {
	maxRPS    int
	bufSize   int
	transform func(*models.Trade) *models.Trade
}

// WithMaxRPS caps accepted trades per second per market.
func WithMaxRPS(n int) PipelineOption {
	return func(c *pipelineConfig) {
		if n > 0 {
			c.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer capacity.
func WithBufferSize(n int) PipelineOption {
	return func(c *pipelineConfig) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// WithTransform installs a trade rewrite hook, applied after validation.
func WithTransform(fn func(*models.Trade) *models.Trade) PipelineOption {
	return func(c *pipelineConfig) { c.transform = fn }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	cfg := &pipelineConfig{maxRPS: defaultMaxRPS, bufSize: defaultBufferSize}
	for _, opt := range opts {
		opt(cfg)
	}
	return &RealtimePipeline{
		proc:      proc,
		metrics:   metrics,
		maxRPS:    cfg.maxRPS,
		throttle:  ratelimit.New(),
		transform: cfg.transform,
		bufCh:     make(chan *models.Trade, cfg.bufSize),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background retry flusher.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.flushLoop(ctx)
}

// Stop halts the retry flusher. Buffered trades are discarded.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Process validates, throttles, and forwards one trade. Downstream failures
// park the trade in the retry buffer.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Trade) error {
	start := time.Now()

	if err := validateTrade(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTrade(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if p.maxRPS > 0 && !p.throttle.Allow(t.MarketID, float64(p.maxRPS), float64(p.maxRPS)) {
		// Over budget for this market; drop without error. The counter stays
		// unlabelled by market to keep metric cardinality bounded.
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.buffer(t)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *RealtimePipeline) buffer(t *models.Trade) {
	select {
	case p.bufCh <- t:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

// flushLoop drains the retry buffer, backing off while downstream keeps
// failing. A trade that fails again is requeued unless the buffer is full.
func (p *RealtimePipeline) flushLoop(ctx context.Context) {
	backoff := flushBackoffMin
	for {
		select {
		case <-p.stopCh:
			return
		case t := <-p.bufCh:
			if t == nil {
				continue
			}
			if err := p.proc.Process(ctx, t); err != nil {
				p.metrics.RecordError("pipeline_flush")
				if backoff < flushBackoffMax {
					backoff *= 2
				}
				time.Sleep(backoff)
				select {
				case p.bufCh <- t:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				continue
			}
			backoff = flushBackoffMin
		}
	}
}

func validateTrade(t *models.Trade) error {
	switch {
	case t == nil:
		return fmt.Errorf("trade nil")
	case t.MarketID == "":
		return fmt.Errorf("market id empty")
	case t.WalletAddress == "":
		return fmt.Errorf("wallet address empty")
	case t.Timestamp.IsZero():
		return fmt.Errorf("timestamp invalid")
	case t.Price < 0 || t.SizeUsd < 0:
		return fmt.Errorf("negative price or size")
	}
	return nil
}
