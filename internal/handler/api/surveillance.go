package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	icache "WalletWatch/internal/service/cache"
	"WalletWatch/internal/service/metrics"
	"WalletWatch/internal/service/ratelimit"
	"WalletWatch/internal/usecase"
	pkgcache "WalletWatch/pkg/cache"
	applogger "WalletWatch/pkg/logger"
	"WalletWatch/pkg/util"

	"github.com/labstack/echo/v4"
)

// SurveillanceHandler serves the read-heavy surveillance endpoints with
// response caching and per-client rate limiting. Writes go through the Echo
// handler; these endpoints tolerate slightly stale data.
type SurveillanceHandler struct {
	agg   *usecase.SurveillanceAggregator
	cache icache.BytesCache
	rl    *ratelimit.Limiter
	l     *applogger.Logger
}

func NewSurveillanceHandler(agg *usecase.SurveillanceAggregator, cache icache.BytesCache, rl *ratelimit.Limiter, l *applogger.Logger) *SurveillanceHandler {
	if rl == nil {
		rl = ratelimit.New()
	}
	return &SurveillanceHandler{agg: agg, cache: cache, rl: rl, l: l}
}

// RegisterRoutes mounts the cached endpoints on the shared Echo server.
func (h *SurveillanceHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/cached")
	g.GET("/analysis", echo.WrapHandler(h.Analysis()))
	g.GET("/market-trades", echo.WrapHandler(h.MarketTrades()))
}

func (h *SurveillanceHandler) Analysis() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := "analysis"
		defer func() { metrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

		wallet := r.URL.Query().Get("wallet")
		if wallet == "" {
			if h.l != nil {
				h.l.Warn("surveillance.analysis missing wallet")
			}
			http.Error(w, "wallet required", http.StatusBadRequest)
			return
		}
		if err := util.ValidateAddress(wallet); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !h.rl.Allow(r.RemoteAddr+":analysis", 5, 2) {
			if h.l != nil {
				h.l.Warn("surveillance.analysis rate_limited", applogger.String("remote", r.RemoteAddr))
			}
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		cacheKey := pkgcache.Key("analysis", util.NormalizeAddress(wallet))
		if h.cache != nil {
			if b, ok, err := h.cache.GetBytes(cacheKey); err != nil {
				if h.l != nil {
					h.l.Warn("surveillance.analysis cache_get_error", applogger.Error(err))
				}
			} else if ok {
				w.Header().Set("Content-Type", "application/json")
				if h.l != nil {
					h.l.Debug("surveillance.analysis cache_hit", applogger.String("key", cacheKey))
				}
				if _, err := w.Write(b); err != nil && h.l != nil {
					h.l.Warn("surveillance.analysis write_error", applogger.Error(err))
				}
				return
			}
			if h.l != nil {
				h.l.Debug("surveillance.analysis cache_miss", applogger.String("key", cacheKey))
			}
		}
		res, err := h.agg.EvaluateWallet(r.Context(), wallet, usecase.EvaluateParams{})
		if err != nil {
			metrics.AnalyticsErrors.WithLabelValues(endpoint).Inc()
			if h.l != nil {
				h.l.Error("surveillance.analysis error", applogger.Error(err))
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		b, err := json.Marshal(res)
		if err != nil {
			if h.l != nil {
				h.l.Error("surveillance.analysis marshal_error", applogger.Error(err))
			}
			http.Error(w, "encode error", http.StatusInternalServerError)
			return
		}
		if h.cache != nil {
			if err := h.cache.SetBytes(cacheKey, b, 30*time.Second); err != nil && h.l != nil {
				h.l.Warn("surveillance.analysis cache_set_error", applogger.Error(err))
			}
		}
		if _, err := w.Write(b); err != nil && h.l != nil {
			h.l.Warn("surveillance.analysis write_error", applogger.Error(err))
		}
	}
}

func (h *SurveillanceHandler) MarketTrades() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := "market_trades"
		defer func() { metrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

		market := r.URL.Query().Get("market")
		if market == "" {
			if h.l != nil {
				h.l.Warn("surveillance.market_trades missing market")
			}
			http.Error(w, "market required", http.StatusBadRequest)
			return
		}
		n := util.ParseIntDefault(r.URL.Query().Get("n"), 200)
		since := util.ParseTimeDefault(r.URL.Query().Get("since"), time.Time{})
		if !h.rl.Allow(r.RemoteAddr+":trades", 5, 2) {
			if h.l != nil {
				h.l.Warn("surveillance.market_trades rate_limited", applogger.String("remote", r.RemoteAddr))
			}
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		// Market ids are caller supplied; hash them so the key stays bounded.
		cacheKey := pkgcache.Key("trades", pkgcache.HashKey(market), strconv.Itoa(n), strconv.FormatInt(since.Unix(), 10))
		if h.cache != nil {
			if b, ok, err := h.cache.GetBytes(cacheKey); err != nil {
				if h.l != nil {
					h.l.Warn("surveillance.market_trades cache_get_error", applogger.Error(err))
				}
			} else if ok {
				w.Header().Set("Content-Type", "application/json")
				if _, err := w.Write(b); err != nil && h.l != nil {
					h.l.Warn("surveillance.market_trades write_error", applogger.Error(err))
				}
				return
			}
		}
		trades := h.agg.MarketTrades(market)
		if !since.IsZero() {
			cut := 0
			for cut < len(trades) && !trades[cut].Timestamp.After(since) {
				cut++
			}
			trades = trades[cut:]
		}
		if n > 0 && len(trades) > n {
			trades = trades[len(trades)-n:]
		}
		w.Header().Set("Content-Type", "application/json")
		b, err := json.Marshal(trades)
		if err != nil {
			if h.l != nil {
				h.l.Error("surveillance.market_trades marshal_error", applogger.Error(err))
			}
			http.Error(w, "encode error", http.StatusInternalServerError)
			return
		}
		if h.cache != nil {
			if err := h.cache.SetBytes(cacheKey, b, 10*time.Second); err != nil && h.l != nil {
				h.l.Warn("surveillance.market_trades cache_set_error", applogger.Error(err))
			}
		}
		if _, err := w.Write(b); err != nil && h.l != nil {
			h.l.Warn("surveillance.market_trades write_error", applogger.Error(err))
		}
	}
}
