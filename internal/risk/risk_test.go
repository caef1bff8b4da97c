package risk

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/store"
)

type fakePositions struct {
	positions map[uuid.UUID]*store.Position
}

func (f *fakePositions) GetPosition(id uuid.UUID) (*store.Position, bool) {
	p, ok := f.positions[id]
	return p, ok
}

func baseParams() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSizeBase:  1_000_000_000,
		MaxSlippageBps:       500,
		MaxPriorityFeeBase:   100_000,
		ExecutionCooldownMs:  5000,
	}
}

func TestEvaluateApprovesWithinLimits(t *testing.T) {
	positionID := uuid.New()
	e := New(baseParams(), &fakePositions{positions: map[uuid.UUID]*store.Position{}})

	result := e.Evaluate(store.ExecutionRequest{
		PositionID:      positionID,
		Action:          store.ExecutionActionFullExit,
		SellPercentage:  100,
		MaxSlippageBps:  300,
		PriorityFeeBase: 50_000,
	})

	assert.True(t, result.Approved)
	assert.Empty(t, result.Violations)
}

func TestEvaluateCollectsAllViolationsWithoutShortCircuiting(t *testing.T) {
	positionID := uuid.New()
	e := New(baseParams(), &fakePositions{positions: map[uuid.UUID]*store.Position{
		positionID: {EntryAmountBase: decimal.NewFromInt(2_000_000_000)},
	}})

	result := e.Evaluate(store.ExecutionRequest{
		PositionID:      positionID,
		Action:          store.ExecutionActionPartialSell,
		SellPercentage:  150, // out of range
		MaxSlippageBps:  600, // breaches cap
		PriorityFeeBase: 200_000, // breaches cap
	})

	assert.False(t, result.Approved)
	assert.Len(t, result.Violations, 4, "slippage, priority fee, position size, and sell percentage should all be reported")
}

func TestEvaluateCooldownBlocksImmediateRetry(t *testing.T) {
	positionID := uuid.New()
	e := New(baseParams(), &fakePositions{positions: map[uuid.UUID]*store.Position{}})

	req := store.ExecutionRequest{PositionID: positionID, Action: store.ExecutionActionFullExit, SellPercentage: 100}
	first := e.Evaluate(req)
	require.True(t, first.Approved)

	second := e.Evaluate(req)
	assert.False(t, second.Approved)
	assert.Contains(t, second.Violations[0], "cooldown")
}

func TestResetCooldownAllowsImmediateRetry(t *testing.T) {
	positionID := uuid.New()
	e := New(baseParams(), &fakePositions{positions: map[uuid.UUID]*store.Position{}})

	req := store.ExecutionRequest{PositionID: positionID, Action: store.ExecutionActionFullExit, SellPercentage: 100}
	require.True(t, e.Evaluate(req).Approved)

	e.ResetCooldown(positionID)
	assert.True(t, e.Evaluate(req).Approved)
}

func TestEvaluateMissingPositionIsNotAViolation(t *testing.T) {
	e := New(baseParams(), &fakePositions{positions: map[uuid.UUID]*store.Position{}})
	result := e.Evaluate(store.ExecutionRequest{
		PositionID:     uuid.New(),
		Action:         store.ExecutionActionFullExit,
		SellPercentage: 100,
	})
	assert.True(t, result.Approved)
}
