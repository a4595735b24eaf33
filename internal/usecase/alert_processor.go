package usecase

import (
	"context"
	"fmt"
	"time"

	"WalletWatch/internal/domain/models"
	drepo "WalletWatch/internal/domain/repository"
)

// AlertProcessor routes ranked alerts to the publisher and the archive.
type AlertProcessor struct {
	pub     drepo.AlertPublisher
	archive drepo.AlertArchive
	metrics drepo.Metrics
	batchSz int
	batchTO time.Duration
}

// NewAlertProcessor creates a new AlertProcessor instance.
func NewAlertProcessor(
	pub drepo.AlertPublisher,
	archive drepo.AlertArchive,
	metrics drepo.Metrics,
	batchSz int,
	batchTO time.Duration,
) *AlertProcessor {
	return &AlertProcessor{
		pub:     pub,
		archive: archive,
		metrics: metrics,
		batchSz: batchSz,
		batchTO: batchTO,
	}
}

// Process publishes and archives a single evaluation.
func (p *AlertProcessor) Process(ctx context.Context, ev *Evaluation) error {
	if ev == nil || ev.Result == nil {
		return fmt.Errorf("evaluation is nil")
	}

	start := time.Now()
	if p.archive != nil {
		if err := p.archive.Store(ctx, ev.Result, ev.Ranking); err != nil {
			p.metrics.RecordError("archive")
			return fmt.Errorf("archive alert: %w", err)
		}
	}
	if p.pub != nil && ev.Ranking != nil {
		if err := p.pub.Publish(ctx, ev.Ranking); err != nil {
			p.metrics.RecordError("publish")
			return fmt.Errorf("publish alert: %w", err)
		}
	}
	p.metrics.RecordLatency("process_alert", time.Since(start).Seconds())
	return nil
}

// ProcessBatch publishes and archives multiple evaluations.
func (p *AlertProcessor) ProcessBatch(ctx context.Context, evs []*Evaluation) error {
	if len(evs) == 0 {
		return nil
	}

	start := time.Now()
	results := make([]*models.CompositeScoreResult, 0, len(evs))
	rankings := make([]*models.PriorityRanking, 0, len(evs))
	for _, ev := range evs {
		if ev == nil || ev.Result == nil {
			continue
		}
		results = append(results, ev.Result)
		rankings = append(rankings, ev.Ranking)
	}
	if len(results) == 0 {
		return nil
	}

	if p.archive != nil {
		if err := p.archive.StoreBatch(ctx, results, rankings); err != nil {
			p.metrics.RecordError("archive_batch")
			return fmt.Errorf("archive batch: %w", err)
		}
	}
	if p.pub != nil {
		published := make([]*models.PriorityRanking, 0, len(rankings))
		for _, r := range rankings {
			if r != nil {
				published = append(published, r)
			}
		}
		if err := p.pub.PublishBatch(ctx, published); err != nil {
			p.metrics.RecordError("publish_batch")
			return fmt.Errorf("publish batch: %w", err)
		}
	}
	p.metrics.RecordLatency("process_alert_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *AlertProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.archive != nil {
		_ = p.archive.Close()
	}
}
