package policy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvesentinel/node/internal/events"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
)

type fakeState struct {
	devSellPct float64
	devMetrics state.DevMetrics
	hasMetrics bool
	lpState    state.LPState
	hasLP      bool
}

func (f *fakeState) GetDevSellPercentageInWindow(mint, wallet string, windowMs int64) float64 {
	return f.devSellPct
}
func (f *fakeState) GetDevMetrics(mint, wallet string) (state.DevMetrics, bool) {
	return f.devMetrics, f.hasMetrics
}
func (f *fakeState) GetLPState(pool string) (state.LPState, bool) {
	return f.lpState, f.hasLP
}

func TestEvaluatePolicyDevSellPercentageTriggers(t *testing.T) {
	e := &Engine{state: &fakeState{devSellPct: 55}}
	pol := &store.Policy{
		ID:        uuid.New(),
		Trigger:   store.TriggerDevSellPercentage,
		Threshold: 50,
		Action:    store.ActionExitPosition,
	}
	evt := events.Event{
		Kind:        events.KindDevWalletSell,
		MintAddress: "mint1",
		DevWalletSell: &events.DevWalletSell{
			DevWallet:            "dev1",
			PercentageOfHoldings: 55,
		},
	}

	result := e.EvaluatePolicy(pol, evt)
	require.NotNil(t, result)
	assert.True(t, result.Triggered)
	assert.Equal(t, 55.0, result.TriggerValue)
}

func TestEvaluatePolicyReturnsNilForNonApplicableEvent(t *testing.T) {
	e := &Engine{state: &fakeState{}}
	pol := &store.Policy{Trigger: store.TriggerDevSellPercentage, Threshold: 50}
	evt := events.Event{Kind: events.KindLpRemove, LpRemove: &events.LpRemove{}}

	result := e.EvaluatePolicy(pol, evt)
	assert.Nil(t, result)
}

func TestEvaluatePolicyPriceDropIsAlwaysStub(t *testing.T) {
	e := &Engine{state: &fakeState{}}
	pol := &store.Policy{Trigger: store.TriggerPriceDropPct, Threshold: 10}
	evt := events.Event{Kind: events.KindDevWalletSell, DevWalletSell: &events.DevWalletSell{}}

	assert.Nil(t, e.EvaluatePolicy(pol, evt))
}

func TestEvaluatePolicyWalletOutflow(t *testing.T) {
	e := &Engine{state: &fakeState{}}
	pol := &store.Policy{Trigger: store.TriggerWalletOutflow, Threshold: 100}
	evt := events.Event{
		Kind: events.KindWalletTransaction,
		WalletTransaction: &events.WalletTransaction{
			FromWallet: "deployer1",
			AmountBase: decimal.NewFromInt(150),
		},
	}

	result := e.EvaluatePolicy(pol, evt)
	require.NotNil(t, result)
	assert.True(t, result.Triggered)
	assert.Equal(t, 150.0, result.TriggerValue)
}

func TestEvaluateEventSortsByPriorityDescendingThenInsertionOrder(t *testing.T) {
	e := &Engine{state: &fakeState{devSellPct: 100}}
	lowPriority := &store.Policy{ID: uuid.New(), Trigger: store.TriggerDevSellPercentage, Threshold: 1, Priority: 1, IsActive: true}
	highPriority := &store.Policy{ID: uuid.New(), Trigger: store.TriggerDevSellPercentage, Threshold: 1, Priority: 5, IsActive: true}
	e.policies = []*store.Policy{lowPriority, highPriority}

	evt := events.Event{
		Kind:        events.KindDevWalletSell,
		MintAddress: "mint1",
		DevWalletSell: &events.DevWalletSell{
			DevWallet:            "dev1",
			PercentageOfHoldings: 100,
		},
	}

	results := e.EvaluateEvent(evt)
	require.Len(t, results, 2)
	assert.Equal(t, highPriority.ID, results[0].PolicyID)
	assert.Equal(t, lowPriority.ID, results[1].PolicyID)
}

func TestAddAndRemovePolicy(t *testing.T) {
	e := &Engine{}
	pol := &store.Policy{ID: uuid.New()}
	e.AddPolicy(pol)
	assert.Len(t, e.ActivePolicies(), 1)

	e.RemovePolicy(pol.ID)
	assert.Len(t, e.ActivePolicies(), 0)
}
