package orchestrator

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/events"
	"github.com/curvesentinel/node/internal/eventbus"
	"github.com/curvesentinel/node/internal/execution"
	"github.com/curvesentinel/node/internal/policy"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{
		ServiceName: "orchestrator-test",
		LogLevel:    "error",
		LogFormat:   "json",
	})
}

type fakePolicyStore struct {
	policies []*store.Policy
}

func (f *fakePolicyStore) LoadActivePolicies(ctx context.Context) ([]*store.Policy, error) {
	return f.policies, nil
}
func (f *fakePolicyStore) InsertPolicy(ctx context.Context, p *store.Policy) error { return nil }
func (f *fakePolicyStore) DeletePolicy(ctx context.Context, id uuid.UUID) error    { return nil }

type fakeExecutor struct {
	runs []execution.Request
}

func (f *fakeExecutor) Run(ctx context.Context, req execution.Request) execution.Result {
	f.runs = append(f.runs, req)
	return execution.Result{ID: uuid.New(), Status: store.ExecutionConfirmed}
}

func TestHandleEventRunsExecutionForTriggeredExitPolicy(t *testing.T) {
	logger := testLogger()
	bus := eventbus.New(logger)
	stateEngine := state.New(logger, nil, nil, bus)

	mint := "mint111"
	pos := &store.Position{ID: uuid.New(), MintAddress: mint, Status: store.PositionOpen, TokenBalance: 1000}
	stateEngine.AddPosition(pos)

	pol := &store.Policy{
		ID:        uuid.New(),
		Trigger:   store.TriggerWalletOutflow,
		Threshold: 10,
		Action:    store.ActionExitPosition,
		IsActive:  true,
	}
	policyEngine := policy.New(logger, &fakePolicyStore{policies: []*store.Policy{pol}}, stateEngine, bus)
	require.NoError(t, policyEngine.Start(context.Background()))

	executor := &fakeExecutor{}
	orch := New(logger, bus, policyEngine, stateEngine, executor, RiskDefaults{MaxSlippageBps: 500, MaxPriorityFeeBase: 100_000})
	require.NoError(t, orch.Start(context.Background()))

	evt := events.Event{
		ID:          "evt-1",
		Kind:        events.KindWalletTransaction,
		MintAddress: mint,
		WalletTransaction: &events.WalletTransaction{
			FromWallet: "w1",
			ToWallet:   "w2",
			AmountBase: decimal.NewFromInt(50),
		},
	}
	bus.Publish(context.Background(), evt)

	require.Len(t, executor.runs, 1)
	assert.Equal(t, execution.ActionFullExit, executor.runs[0].Action)
	assert.Equal(t, float64(100), executor.runs[0].SellPercentage)
	assert.Equal(t, pos.ID, executor.runs[0].PositionID)
}

func TestHandleEventSkipsAlertOnlyPolicies(t *testing.T) {
	logger := testLogger()
	bus := eventbus.New(logger)
	stateEngine := state.New(logger, nil, nil, bus)

	mint := "mint222"
	pos := &store.Position{ID: uuid.New(), MintAddress: mint, Status: store.PositionOpen, TokenBalance: 1000}
	stateEngine.AddPosition(pos)

	pol := &store.Policy{
		ID:        uuid.New(),
		Trigger:   store.TriggerWalletOutflow,
		Threshold: 10,
		Action:    store.ActionAlertOnly,
		IsActive:  true,
	}
	policyEngine := policy.New(logger, &fakePolicyStore{policies: []*store.Policy{pol}}, stateEngine, bus)
	require.NoError(t, policyEngine.Start(context.Background()))

	executor := &fakeExecutor{}
	orch := New(logger, bus, policyEngine, stateEngine, executor, RiskDefaults{})
	require.NoError(t, orch.Start(context.Background()))

	evt := events.Event{
		ID:          "evt-2",
		Kind:        events.KindWalletTransaction,
		MintAddress: mint,
		WalletTransaction: &events.WalletTransaction{
			AmountBase: decimal.NewFromInt(50),
		},
	}
	bus.Publish(context.Background(), evt)

	assert.Empty(t, executor.runs)
}
