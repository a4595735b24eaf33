package usecase

import (
	"context"
	"time"

	"WalletWatch/internal/analytics/accuracy"
	domrepo "WalletWatch/internal/domain/repository"
	domsvc "WalletWatch/internal/domain/service"
	applogger "WalletWatch/pkg/logger"
)

// ResolutionPoller periodically fetches market resolutions and folds them
// back into the accuracy scorer so pending predictions resolve without
// manual updates.
type ResolutionPoller struct {
	provider domsvc.ResolutionProvider
	scorer   *accuracy.Scorer
	metrics  domrepo.Metrics
	logger   *applogger.Logger
	interval time.Duration
}

func NewResolutionPoller(
	provider domsvc.ResolutionProvider,
	scorer *accuracy.Scorer,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	interval time.Duration,
) *ResolutionPoller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ResolutionPoller{
		provider: provider,
		scorer:   scorer,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the polling loop until the context is cancelled.
func (p *ResolutionPoller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Poll(ctx)
			}
		}
	}()
}

// Poll runs one fetch-and-resolve pass. Markets with no pending predictions
// are skipped entirely.
func (p *ResolutionPoller) Poll(ctx context.Context) {
	pending := p.scorer.PendingMarkets()
	if len(pending) == 0 {
		return
	}

	start := time.Now()
	resolutions, err := p.provider.FetchResolutions(ctx, pending)
	if err != nil {
		p.metrics.RecordError("resolution_fetch")
		p.logger.Warn("resolution fetch failed", applogger.Error(err))
		return
	}
	p.metrics.RecordLatency("resolution_fetch", time.Since(start).Seconds())

	total := 0
	for _, r := range resolutions {
		n := p.scorer.ResolveMarket(r.MarketID, r.Outcome, r.ResolvedAt)
		total += n
	}
	if total > 0 {
		p.logger.Info("market resolutions applied",
			applogger.Int("markets", len(resolutions)),
			applogger.Int("predictions", total),
		)
	}
}
