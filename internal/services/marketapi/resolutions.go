package marketapi

import (
	"context"
	"fmt"
	"time"

	"WalletWatch/internal/domain/models"
	domsvc "WalletWatch/internal/domain/service"
	"WalletWatch/pkg/config"
)

type HTTPResolutionProvider struct{ base *HTTPServiceBase }

func NewHTTPResolutionProvider(cfg *config.Config) *HTTPResolutionProvider {
	return &HTTPResolutionProvider{base: NewHTTPServiceBase(cfg)}
}

type resolutionsRequest struct {
	Markets []string `json:"markets"`
}

type resolutionEntry struct {
	Market     string `json:"market"`
	Outcome    string `json:"outcome"`
	ResolvedAt int64  `json:"resolvedAt"` // unix seconds
}

type resolutionsResponse struct {
	Resolutions []resolutionEntry `json:"resolutions"`
}

// FetchResolutions returns outcomes for the subset of markets that resolved.
func (p *HTTPResolutionProvider) FetchResolutions(ctx context.Context, markets []string) ([]models.MarketResolution, error) {
	var rr resolutionsResponse
	err := p.base.PostJSONWithRetry(ctx, "/markets/resolutions", resolutionsRequest{Markets: markets}, &rr, 3)
	if err != nil {
		return nil, fmt.Errorf("post resolutions: %w", err)
	}
	out := make([]models.MarketResolution, 0, len(rr.Resolutions))
	for _, e := range rr.Resolutions {
		out = append(out, models.MarketResolution{
			MarketID:   e.Market,
			Outcome:    e.Outcome,
			ResolvedAt: time.Unix(e.ResolvedAt, 0),
		})
	}
	return out, nil
}

var _ domsvc.ResolutionProvider = (*HTTPResolutionProvider)(nil)
