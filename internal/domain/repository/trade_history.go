package repository

import (
	"context"
	"time"

	"WalletWatch/internal/domain/models"
)

// TradeHistory provides read-only access to archived trades for batch
// re-analysis.
type TradeHistory interface {
	GetWalletTrades(ctx context.Context, wallet string, from, to time.Time, limit int) ([]models.Trade, error)
	GetMarketTrades(ctx context.Context, marketID string, from, to time.Time, limit int) ([]models.Trade, error)
}
