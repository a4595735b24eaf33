package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"WalletWatch/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProc struct {
	mu     sync.Mutex
	trades []*models.Trade
	fail   bool
}

func (p *recordingProc) Process(_ context.Context, t *models.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("downstream unavailable")
	}
	p.trades = append(p.trades, t)
	return nil
}

func (p *recordingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trades)
}

func (p *recordingProc) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordTradeIngested(string) {}
func (m *countingMetrics) RecordAlert(string)         {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}
func (m *countingMetrics) RecordLatency(string, float64)            {}
func (m *countingMetrics) RecordCalibrationQuality(string, float64) {}
func (m *countingMetrics) RecordCacheLookup(string, bool)           {}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func testTrade(market, wallet string) *models.Trade {
	return &models.Trade{
		ID:            "t-1",
		MarketID:      market,
		WalletAddress: wallet,
		Side:          models.SideBuy,
		SizeUsd:       1_000,
		Price:         0.42,
		Timestamp:     time.Now(),
	}
}

func TestPipelineRejectsInvalidTrades(t *testing.T) {
	proc := &recordingProc{}
	m := newCountingMetrics()
	p := NewRealtimePipeline(proc, m)

	require.Error(t, p.Process(context.Background(), nil))

	missingWallet := testTrade("mkt-1", "")
	require.Error(t, p.Process(context.Background(), missingWallet))

	negative := testTrade("mkt-1", "0xabc")
	negative.SizeUsd = -5
	require.Error(t, p.Process(context.Background(), negative))

	assert.Equal(t, 0, proc.count())
	assert.Equal(t, 3, m.errorCount("pipeline_validate"))
}

func TestPipelineForwardsValidTrade(t *testing.T) {
	proc := &recordingProc{}
	p := NewRealtimePipeline(proc, newCountingMetrics())

	require.NoError(t, p.Process(context.Background(), testTrade("mkt-1", "0xabc")))
	assert.Equal(t, 1, proc.count())
}

func TestPipelineThrottlesPerMarket(t *testing.T) {
	proc := &recordingProc{}
	m := newCountingMetrics()
	p := NewRealtimePipeline(proc, m, WithMaxRPS(2))

	// Token bucket starts full with capacity 2, so the third trade in the
	// same instant is dropped without an error.
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Process(context.Background(), testTrade("mkt-1", "0xabc")))
	}
	assert.Equal(t, 2, proc.count())
	assert.Equal(t, 1, m.errorCount("pipeline_throttle"))
	// Drops count against one shared label, never one per market.
	assert.Zero(t, m.errorCount("pipeline_throttle_mkt-1"))

	// A different market has its own bucket.
	require.NoError(t, p.Process(context.Background(), testTrade("mkt-2", "0xabc")))
	assert.Equal(t, 3, proc.count())
}

func TestPipelineAppliesTransform(t *testing.T) {
	proc := &recordingProc{}
	p := NewRealtimePipeline(proc, newCountingMetrics(),
		WithTransform(func(tr *models.Trade) *models.Trade {
			tr.WalletAddress = "0xnormalized"
			return tr
		}),
	)

	require.NoError(t, p.Process(context.Background(), testTrade("mkt-1", "0xABC")))
	require.Equal(t, 1, proc.count())
	assert.Equal(t, "0xnormalized", proc.trades[0].WalletAddress)
}

func TestPipelineBuffersAndRetriesOnFailure(t *testing.T) {
	proc := &recordingProc{fail: true}
	m := newCountingMetrics()
	p := NewRealtimePipeline(proc, m, WithBufferSize(10))

	err := p.Process(context.Background(), testTrade("mkt-1", "0xabc"))
	require.Error(t, err)
	assert.Equal(t, 1, m.errorCount("pipeline_process"))

	// Once downstream recovers, the flusher delivers the buffered trade.
	proc.setFail(false)
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return proc.count() == 1 },
		2*time.Second, 10*time.Millisecond)
}
