package repository

import (
	"context"
	"time"

	"WalletWatch/internal/domain/models"
)

// MarketStream is the live trade feed from the prediction-market venue.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// AlertPublisher pushes ranked alerts to downstream consumers.
type AlertPublisher interface {
	Publish(ctx context.Context, a *models.PriorityRanking) error
	PublishBatch(ctx context.Context, alerts []*models.PriorityRanking) error
	Close() error
}

// AlertArchive is the durable store for composite scores and their rankings.
type AlertArchive interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, result *models.CompositeScoreResult, ranking *models.PriorityRanking) error
	StoreBatch(ctx context.Context, results []*models.CompositeScoreResult, rankings []*models.PriorityRanking) error
	QueryByWallet(ctx context.Context, wallet string, from, to time.Time, limit int) ([]*models.CompositeScoreResult, error)
	TopAlerts(ctx context.Context, from, to time.Time, limit int) ([]*models.PriorityRanking, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// Metrics abstracts the operational counters the pipeline records.
type Metrics interface {
	RecordTradeIngested(marketID string)
	RecordAlert(level string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCalibrationQuality(quality string, brierScore float64)
	RecordCacheLookup(cache string, hit bool)
}
