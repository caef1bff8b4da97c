package execution

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/risk"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{
		ServiceName: "execution-test",
		LogLevel:    "error",
		LogFormat:   "json",
	})
}

type fakeExecutionStore struct {
	rows []*store.ExecutionRow
}

func (f *fakeExecutionStore) InsertExecution(ctx context.Context, row *store.ExecutionRow) error {
	f.rows = append(f.rows, row)
	return nil
}

func riskParams() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSizeBase: 1_000_000_000,
		MaxSlippageBps:      500,
		MaxPriorityFeeBase:  100_000,
		ExecutionCooldownMs: 5000,
	}
}

// Both failure paths below are reached before any chain RPC is made,
// so a nil *chain.Client is safe here: Run returns at step 1 or 2.

func TestRunRejectsWhenRiskEngineDisapproves(t *testing.T) {
	logger := testLogger()
	stateEngine := state.New(logger, nil, nil, nil)
	riskEngine := risk.New(riskParams(), stateEngine)
	execStore := &fakeExecutionStore{}

	e := New(logger, riskEngine, stateEngine, nil, nil, execStore)

	req := Request{
		PositionID:      uuid.New(),
		Action:          ActionFullExit,
		SellPercentage:  100,
		MaxSlippageBps:  10_000, // breaches risk cap
		PriorityFeeBase: 1,
	}

	result := e.Run(context.Background(), req)

	assert.Equal(t, store.ExecutionFailed, result.Status)
	require.NotNil(t, result.ErrorMessage)
	assert.Contains(t, *result.ErrorMessage, "risk-rejected")
	require.Len(t, execStore.rows, 1)
	assert.Equal(t, store.ExecutionFailed, execStore.rows[0].Status)
}

func TestRunFailsWhenPositionMissing(t *testing.T) {
	logger := testLogger()
	stateEngine := state.New(logger, nil, nil, nil)
	riskEngine := risk.New(riskParams(), stateEngine)
	execStore := &fakeExecutionStore{}

	e := New(logger, riskEngine, stateEngine, nil, nil, execStore)

	req := Request{
		PositionID:      uuid.New(),
		Action:          ActionFullExit,
		SellPercentage:  100,
		MaxSlippageBps:  300,
		PriorityFeeBase: 1,
	}

	result := e.Run(context.Background(), req)

	assert.Equal(t, store.ExecutionFailed, result.Status)
	require.NotNil(t, result.ErrorMessage)
	assert.Contains(t, *result.ErrorMessage, "position-missing")
}
