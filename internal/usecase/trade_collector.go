package usecase

import (
	"context"

	"WalletWatch/internal/domain/models"
	drepo "WalletWatch/internal/domain/repository"
	mid "WalletWatch/internal/middleware"
)

// TradeCollector collects trades from the market stream and feeds the
// surveillance aggregator.
type TradeCollector struct {
	stream  drepo.MarketStream
	agg     *SurveillanceAggregator
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewTradeCollector creates a new TradeCollector instance.
func NewTradeCollector(stream drepo.MarketStream, agg *SurveillanceAggregator, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *TradeCollector {
	return &TradeCollector{stream: stream, agg: agg, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *TradeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TradeCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	trCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, trCh, errCh)
	return nil
}

func (c *TradeCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case t := <-trCh:
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.agg.IngestTrade(ctx, t)
			}
		}
	}
}

func (c *TradeCollector) Stop() error { return c.stream.Close() }

// Shutdown stops pipeline and closes stream.
func (c *TradeCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}

// IngestProc adapts the aggregator to the pipeline's processor interface.
type IngestProc struct {
	Agg *SurveillanceAggregator
}

func (p IngestProc) Process(ctx context.Context, t *models.Trade) error {
	return p.Agg.IngestTrade(ctx, t)
}

var _ mid.Proc = IngestProc{}
