package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"WalletWatch/internal/domain/models"
	pkgch "WalletWatch/pkg/clickhouse"
	applogger "WalletWatch/pkg/logger"
	"WalletWatch/pkg/util"
)

const tradesTable = "walletwatch.trades"

// CHTradeHistory implements TradeHistory backed by ClickHouse.
type CHTradeHistory struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHTradeHistory(ch *pkgch.Client) *CHTradeHistory {
	return &CHTradeHistory{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHTradeHistory) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHTradeHistory) GetWalletTrades(ctx context.Context, wallet string, from, to time.Time, limit int) ([]models.Trade, error) {
	const qtpl = `
        SELECT trade_id, market_id, market_category, wallet, side, size_usd, price, ts, is_maker, pre_event
        FROM %s
        WHERE wallet = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
        LIMIT ?
    `
	return s.queryTrades(ctx, fmt.Sprintf(qtpl, tradesTable), "wallet_trades",
		util.NormalizeAddress(wallet), from, to, limit)
}

func (s *CHTradeHistory) GetMarketTrades(ctx context.Context, marketID string, from, to time.Time, limit int) ([]models.Trade, error) {
	const qtpl = `
        SELECT trade_id, market_id, market_category, wallet, side, size_usd, price, ts, is_maker, pre_event
        FROM %s
        WHERE market_id = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
        LIMIT ?
    `
	return s.queryTrades(ctx, fmt.Sprintf(qtpl, tradesTable), "market_trades",
		marketID, from, to, limit)
}

func (s *CHTradeHistory) queryTrades(ctx context.Context, q, op string, args ...interface{}) ([]models.Trade, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse trade history query error",
				applogger.String("op", op),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get trades: %w", err)
	}
	defer rows.Close()

	out := make([]models.Trade, 0, 1024)
	for rows.Next() {
		var (
			t        models.Trade
			side     string
			isMaker  uint8
			preEvent uint8
		)
		if err := rows.Scan(&t.ID, &t.MarketID, &t.MarketCategory, &t.WalletAddress, &side, &t.SizeUsd, &t.Price, &t.Timestamp, &isMaker, &preEvent); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse trade history scan error",
					applogger.String("op", op),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = models.TradeSide(side)
		t.IsMaker = isMaker == 1
		t.PreEvent = preEvent == 1
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse trade history rows error",
				applogger.String("op", op),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse trade history ok",
			applogger.String("op", op),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}
