// Package policy evaluates PolicyDefinitions against InternalEvents
// (§4.3) and produces triggered PolicyEvaluationResults for the
// orchestrator to act on.
package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/curvesentinel/node/internal/events"
	"github.com/curvesentinel/node/internal/eventbus"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

// StateReader is the subset of the state engine the policy engine
// depends on to resolve trigger values.
type StateReader interface {
	GetDevSellPercentageInWindow(mint, wallet string, windowMs int64) float64
	GetDevMetrics(mint, wallet string) (state.DevMetrics, bool)
	GetLPState(pool string) (state.LPState, bool)
}

// Result is a PolicyEvaluationResult (§4.3).
type Result struct {
	PolicyID     uuid.UUID
	Triggered    bool
	Action       store.PolicyAction
	ActionParams store.ActionParams
	TriggerValue float64
	Threshold    float64
	Reason       string

	priority int
	seq      int
}

const defaultWindowSeconds = 600

// Engine is the Policy Engine (§4.3).
type Engine struct {
	logger     *observability.Logger
	policyStore store.PolicyStore
	state      StateReader
	bus        *eventbus.Bus

	mu       sync.RWMutex
	policies []*store.Policy
	seq      int
}

func New(logger *observability.Logger, policyStore store.PolicyStore, stateReader StateReader, bus *eventbus.Bus) *Engine {
	return &Engine{
		logger:      logger,
		policyStore: policyStore,
		state:       stateReader,
		bus:         bus,
	}
}

// Start loads active policies and registers a catch-all subscriber
// that invokes evaluateEvent for every published event.
func (e *Engine) Start(ctx context.Context) error {
	policies, err := e.policyStore.LoadActivePolicies(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active policies: %w", err)
	}

	e.mu.Lock()
	e.policies = policies
	e.mu.Unlock()

	e.logger.Info(ctx, "policy engine loaded active policies", map[string]interface{}{"count": len(policies)})

	e.bus.Subscribe("policy-engine", func(ctx context.Context, evt events.Event) {
		e.EvaluateEvent(evt)
	})

	return nil
}

// EvaluatePolicy is a pure function returning a triggered result or nil
// when the policy does not apply to the event variant.
func (e *Engine) EvaluatePolicy(pol *store.Policy, evt events.Event) *Result {
	var triggerValue float64
	applicable := true

	switch pol.Trigger {
	case store.TriggerDevSellPercentage:
		if evt.Kind != events.KindDevWalletSell || evt.DevWalletSell == nil {
			applicable = false
			break
		}
		windowSeconds := defaultWindowSeconds
		if pol.WindowSeconds != nil {
			windowSeconds = int(*pol.WindowSeconds)
		}
		triggerValue = e.state.GetDevSellPercentageInWindow(evt.MintAddress, evt.DevWalletSell.DevWallet, int64(windowSeconds)*1000)

	case store.TriggerDevSellCount:
		if evt.Kind != events.KindDevWalletSell || evt.DevWalletSell == nil {
			applicable = false
			break
		}
		metrics, ok := e.state.GetDevMetrics(evt.MintAddress, evt.DevWalletSell.DevWallet)
		if !ok {
			applicable = false
			break
		}
		triggerValue = float64(metrics.TotalSellCount)

	case store.TriggerLpRemovalPct, store.TriggerLpRemovalTotal:
		if evt.Kind != events.KindLpRemove || evt.LpRemove == nil {
			applicable = false
			break
		}
		lp, ok := e.state.GetLPState(evt.LpRemove.PoolAddress)
		if !ok {
			applicable = false
			break
		}
		// Both triggers read the same cumulative removal figure the
		// state engine tracks per pool (§4.2 only keeps one running
		// total); LpRemovalTotal exists alongside LpRemovalPercentage
		// in the trigger enum (§3) without a distinct field to source
		// from, so the two triggers are equivalent in this engine.
		triggerValue = lp.TotalRemovedPercentage

	case store.TriggerSupplyIncrease:
		if evt.Kind != events.KindSupplyChange || evt.SupplyChange == nil {
			applicable = false
			break
		}
		triggerValue = evt.SupplyChange.ChangePercentage

	case store.TriggerPriceDropPct:
		// Stub: no price oracle is wired (§1 Non-goals). Documented gap.
		return nil

	case store.TriggerWalletOutflow:
		if evt.Kind != events.KindWalletTransaction || evt.WalletTransaction == nil {
			applicable = false
			break
		}
		triggerValue, _ = evt.WalletTransaction.AmountBase.Float64()

	default:
		applicable = false
	}

	if !applicable {
		return nil
	}

	triggered := triggerValue >= pol.Threshold
	reason := fmt.Sprintf("%s=%.4f threshold=%.4f triggered=%t", pol.Trigger, triggerValue, pol.Threshold, triggered)

	return &Result{
		PolicyID:     pol.ID,
		Triggered:    triggered,
		Action:       pol.Action,
		ActionParams: pol.ActionParams,
		TriggerValue: triggerValue,
		Threshold:    pol.Threshold,
		Reason:       reason,
		priority:     pol.Priority,
	}
}

// EvaluateEvent evaluates every active policy against evt and returns
// the triggered results sorted by priority descending, ties broken by
// insertion (policy list) order.
func (e *Engine) EvaluateEvent(evt events.Event) []*Result {
	e.mu.RLock()
	policies := make([]*store.Policy, len(e.policies))
	copy(policies, e.policies)
	e.mu.RUnlock()

	var triggered []*Result
	for i, pol := range policies {
		if !pol.IsActive {
			continue
		}
		if pol.TrackedTokenID != nil && evt.MintAddress == "" {
			continue
		}
		result := e.EvaluatePolicy(pol, evt)
		if result == nil || !result.Triggered {
			continue
		}
		result.seq = i
		triggered = append(triggered, result)
	}

	sort.SliceStable(triggered, func(i, j int) bool {
		if triggered[i].priority != triggered[j].priority {
			return triggered[i].priority > triggered[j].priority
		}
		return triggered[i].seq < triggered[j].seq
	})

	return triggered
}

func (e *Engine) AddPolicy(pol *store.Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = append(e.policies, pol)
}

func (e *Engine) RemovePolicy(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, p := range e.policies {
		if p.ID == id {
			e.policies = append(e.policies[:i], e.policies[i+1:]...)
			return
		}
	}
}

func (e *Engine) ActivePolicies() []*store.Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*store.Policy, len(e.policies))
	copy(out, e.policies)
	return out
}
