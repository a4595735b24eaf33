package usecase

import (
	"context"
	"encoding/json"
	"time"

	"WalletWatch/internal/domain/models"
	domrepo "WalletWatch/internal/domain/repository"
	pkgkafka "WalletWatch/pkg/kafka"
)

// KafkaTradesHandler consumes normalized trade messages and feeds the
// surveillance aggregator.
type KafkaTradesHandler struct {
	topic   string
	agg     *SurveillanceAggregator
	metrics domrepo.Metrics
}

func NewKafkaTradesHandler(topic string, agg *SurveillanceAggregator, metrics domrepo.Metrics) *KafkaTradesHandler {
	return &KafkaTradesHandler{topic: topic, agg: agg, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

// incoming message schema: {id, market, category, wallet, side, size, price, t, maker, preEvent}
func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		ID       string  `json:"id"`
		Market   string  `json:"market"`
		Category string  `json:"category"`
		Wallet   string  `json:"wallet"`
		Side     string  `json:"side"`
		Size     float64 `json:"size"`
		Price    float64 `json:"price"`
		T        int64   `json:"t"`
		Maker    bool    `json:"maker"`
		PreEvent bool    `json:"preEvent"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	start := time.Now()
	err := h.agg.IngestTrade(ctx, &models.Trade{
		ID:             m.ID,
		MarketID:       m.Market,
		MarketCategory: m.Category,
		WalletAddress:  m.Wallet,
		Side:           models.TradeSide(m.Side),
		SizeUsd:        m.Size,
		Price:          m.Price,
		Timestamp:      time.Unix(m.T, 0),
		IsMaker:        m.Maker,
		PreEvent:       m.PreEvent,
	})
	h.metrics.RecordLatency("ingest_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_ingest")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)
