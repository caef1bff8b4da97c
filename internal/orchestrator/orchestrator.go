// Package orchestrator wires the event bus to the Policy and Execution
// Engines (§4.6): for every event it asks the Policy Engine which
// policies triggered, maps each triggered action onto an
// ExecutionRequest, and runs it against every open position for the
// event's mint.
package orchestrator

import (
	"context"
	"sync/atomic"

	"github.com/curvesentinel/node/internal/events"
	"github.com/curvesentinel/node/internal/eventbus"
	"github.com/curvesentinel/node/internal/execution"
	"github.com/curvesentinel/node/internal/policy"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

const defaultPartialSellPercentage = 50

// Executor runs a single ExecutionRequest to completion.
type Executor interface {
	Run(ctx context.Context, req execution.Request) execution.Result
}

// RiskDefaults supplies the slippage/fee caps used when a policy's
// actionParams does not override them.
type RiskDefaults struct {
	MaxSlippageBps     int
	MaxPriorityFeeBase uint64
}

// Orchestrator is the top-level single-flight event consumer.
type Orchestrator struct {
	logger   *observability.Logger
	bus      *eventbus.Bus
	policy   *policy.Engine
	state    *state.Engine
	executor Executor
	risk     RiskDefaults

	processing int32
}

func New(logger *observability.Logger, bus *eventbus.Bus, policyEngine *policy.Engine, stateEngine *state.Engine, executor Executor, risk RiskDefaults) *Orchestrator {
	return &Orchestrator{
		logger:   logger,
		bus:      bus,
		policy:   policyEngine,
		state:    stateEngine,
		executor: executor,
		risk:     risk,
	}
}

// Start registers the catch-all subscriber. Must be called after the
// State Engine and Policy Engine have loaded, since their values are
// read synchronously during handling.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.bus.Subscribe("orchestrator", func(ctx context.Context, evt events.Event) {
		o.handleEvent(ctx, evt)
	})
	return nil
}

// handleEvent is the single-flight gate: a concurrently arriving event
// while one is in-flight is dropped, not queued. Policies are
// threshold-based, so a dropped edge still re-fires on the next
// qualifying event once state has caught up.
func (o *Orchestrator) handleEvent(ctx context.Context, evt events.Event) {
	if !atomic.CompareAndSwapInt32(&o.processing, 0, 1) {
		o.logger.Debug(ctx, "dropping event, orchestrator busy", map[string]interface{}{
			"eventId": evt.ID,
			"kind":    string(evt.Kind),
		})
		return
	}
	defer atomic.StoreInt32(&o.processing, 0)

	results := o.policy.EvaluateEvent(evt)
	if len(results) == 0 || evt.MintAddress == "" {
		return
	}

	positions := o.state.GetPositionsByMint(evt.MintAddress)
	if len(positions) == 0 {
		return
	}

	for _, result := range results {
		req, ok := o.buildRequest(result)
		if !ok {
			continue
		}
		for _, pos := range positions {
			if pos.Status != store.PositionOpen {
				continue
			}
			perPosition := req
			perPosition.PositionID = pos.ID
			o.executor.Run(ctx, perPosition)
		}
	}
}

// buildRequest maps a triggered policy result's action onto an
// ExecutionRequest per the action-mapping table (§4.6). AlertOnly maps
// to no execution.
func (o *Orchestrator) buildRequest(result *policy.Result) (execution.Request, bool) {
	policyID := result.PolicyID
	req := execution.Request{
		PolicyID:        &policyID,
		MaxSlippageBps:  o.risk.MaxSlippageBps,
		PriorityFeeBase: o.risk.MaxPriorityFeeBase,
	}
	if result.ActionParams.MaxSlippageBps != nil {
		req.MaxSlippageBps = *result.ActionParams.MaxSlippageBps
	}
	if result.ActionParams.PriorityFeeBase != nil {
		req.PriorityFeeBase = *result.ActionParams.PriorityFeeBase
	}

	switch result.Action {
	case store.ActionExitPosition:
		req.Action = execution.ActionFullExit
		req.SellPercentage = 100
	case store.ActionPartialSell:
		req.Action = execution.ActionPartialSell
		req.SellPercentage = defaultPartialSellPercentage
		if result.ActionParams.SellPercentage != nil {
			req.SellPercentage = *result.ActionParams.SellPercentage
		}
	case store.ActionHaltStrategy:
		req.Action = execution.ActionHalt
		req.SellPercentage = 0
	case store.ActionAlertOnly:
		return execution.Request{}, false
	default:
		return execution.Request{}, false
	}

	return req, true
}
