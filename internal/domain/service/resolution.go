package service

import (
	"context"

	"WalletWatch/internal/domain/models"
)

// ResolutionProvider fetches final outcomes for resolved prediction markets.
type ResolutionProvider interface {
	FetchResolutions(ctx context.Context, markets []string) ([]models.MarketResolution, error)
}
