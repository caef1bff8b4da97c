package state

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/events"
	"github.com/curvesentinel/node/internal/eventbus"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

type fakePositionStore struct {
	open []*store.Position
}

func (f *fakePositionStore) LoadOpenPositions(ctx context.Context) ([]*store.Position, error) {
	return f.open, nil
}
func (f *fakePositionStore) InsertPosition(ctx context.Context, p *store.Position) error { return nil }
func (f *fakePositionStore) UpdatePosition(ctx context.Context, p *store.Position) error { return nil }
func (f *fakePositionStore) GetPosition(ctx context.Context, id uuid.UUID) (*store.Position, error) {
	return nil, nil
}
func (f *fakePositionStore) ListPositions(ctx context.Context) ([]*store.Position, error) {
	return f.open, nil
}

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{
		ServiceName: "test",
		LogLevel:    "error",
		LogFormat:   "json",
	})
}

func TestGetDevSellPercentageInWindowSumsWithinWindow(t *testing.T) {
	logger := testLogger()
	bus := eventbus.New(logger)
	e := New(logger, &fakePositionStore{}, nil, bus)

	now := time.Now().UnixMilli()
	e.onDevWalletSell(events.Event{
		MintAddress: "mint1",
		Timestamp:   now - 1000,
		DevWalletSell: &events.DevWalletSell{
			DevWallet:            "dev1",
			PercentageOfHoldings: 10,
		},
	})
	e.onDevWalletSell(events.Event{
		MintAddress: "mint1",
		Timestamp:   now - 700_000,
		DevWalletSell: &events.DevWalletSell{
			DevWallet:            "dev1",
			PercentageOfHoldings: 25,
		},
	})

	got := e.GetDevSellPercentageInWindow("mint1", "dev1", 600_000)
	assert.Equal(t, 10.0, got)

	m, ok := e.GetDevMetrics("mint1", "dev1")
	require.True(t, ok)
	assert.Equal(t, int64(2), m.TotalSellCount)
	assert.Equal(t, 35.0, m.TotalSellPercentage)
}

func TestDevMetricsRingEvictsOldestBeyond100(t *testing.T) {
	logger := testLogger()
	bus := eventbus.New(logger)
	e := New(logger, &fakePositionStore{}, nil, bus)

	base := time.Now().UnixMilli()
	for i := 0; i < 105; i++ {
		e.onDevWalletSell(events.Event{
			MintAddress: "mint1",
			Timestamp:   base + int64(i),
			DevWalletSell: &events.DevWalletSell{
				DevWallet:            "dev1",
				PercentageOfHoldings: 1,
			},
		})
	}

	m, ok := e.GetDevMetrics("mint1", "dev1")
	require.True(t, ok)
	assert.Len(t, m.RecentSells, maxRecentSells)
	assert.Equal(t, int64(105), m.TotalSellCount)
	assert.Equal(t, 105.0, m.TotalSellPercentage, "dropped sells remain accounted in the cumulative total")
}

func TestLpRemovePercentageIsMonotonic(t *testing.T) {
	logger := testLogger()
	bus := eventbus.New(logger)
	e := New(logger, &fakePositionStore{}, nil, bus)

	e.onLpRemove(events.Event{
		MintAddress: "mint1",
		LpRemove: &events.LpRemove{
			PoolAddress:     "pool1",
			LiquidityAmount: decimal.NewFromFloat(5),
		},
	})
	e.onLpRemove(events.Event{
		MintAddress: "mint1",
		LpRemove: &events.LpRemove{
			PoolAddress:     "pool1",
			LiquidityAmount: decimal.NewFromFloat(3),
		},
	})

	lp, ok := e.GetLPState("pool1")
	require.True(t, ok)
	assert.Equal(t, 8.0, lp.TotalRemovedPercentage)
	assert.Len(t, lp.Removals, 2)
}

func TestUpdatePositionNeverMovesClosedBackToOpen(t *testing.T) {
	logger := testLogger()
	bus := eventbus.New(logger)
	e := New(logger, &fakePositionStore{}, nil, bus)

	id := uuid.New()
	e.AddPosition(&store.Position{
		ID:     id,
		Status: store.PositionClosed,
	})

	_, err := e.UpdatePosition(id, func(p *store.Position) {
		p.Status = store.PositionOpen
	})
	assert.Error(t, err)
}

func TestGetOpenPositionsExcludesNonOpen(t *testing.T) {
	logger := testLogger()
	bus := eventbus.New(logger)
	openID, closedID := uuid.New(), uuid.New()
	e := New(logger, &fakePositionStore{}, nil, bus)
	e.AddPosition(&store.Position{ID: openID, Status: store.PositionOpen})
	e.AddPosition(&store.Position{ID: closedID, Status: store.PositionClosed})

	open := e.GetOpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, openID, open[0].ID)
}
