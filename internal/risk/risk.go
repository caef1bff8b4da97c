// Package risk implements the synchronous Risk Engine (§4.4): five
// ordered checks against an ExecutionRequest, collecting every
// violation rather than short-circuiting on the first.
package risk

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/store"
)

// PositionLookup is the subset of the state engine the risk engine
// needs: the position's entryAmountBase, if it exists.
type PositionLookup interface {
	GetPosition(id uuid.UUID) (*store.Position, bool)
}

// Result is a RiskCheckResult (§4.4).
type Result struct {
	Approved   bool
	Violations []string
}

// Engine is the Risk Engine. It is otherwise stateless; the only
// mutable state is the per-position cooldown map.
type Engine struct {
	params   config.RiskConfig
	state    PositionLookup
	mu       sync.Mutex
	lastExec map[uuid.UUID]time.Time
}

func New(params config.RiskConfig, state PositionLookup) *Engine {
	return &Engine{
		params:   params,
		state:    state,
		lastExec: make(map[uuid.UUID]time.Time),
	}
}

// Evaluate collects every violation from the five ordered rules and
// never short-circuits. On approval it stamps lastExecution[positionId].
func (e *Engine) Evaluate(req store.ExecutionRequest) Result {
	var violations []string

	// 1. maxSlippageBps breach.
	if req.MaxSlippageBps > e.params.MaxSlippageBps {
		violations = append(violations, "maxSlippageBps exceeds risk parameter cap")
	}

	// 2. maxPriorityFeeBase breach.
	if req.PriorityFeeBase > e.params.MaxPriorityFeeBase {
		violations = append(violations, "priorityFeeBase exceeds risk parameter cap")
	}

	// 3. executionCooldownMs not elapsed since last approved request.
	e.mu.Lock()
	last, hasLast := e.lastExec[req.PositionID]
	e.mu.Unlock()
	if hasLast {
		elapsed := time.Since(last)
		if elapsed < time.Duration(e.params.ExecutionCooldownMs)*time.Millisecond {
			violations = append(violations, "execution cooldown has not elapsed for this position")
		}
	}

	// 4. position's entryAmountBase > maxPositionSizeBase. An absent
	// position is not a violation here — the execution engine reports
	// position-missing separately.
	if pos, ok := e.state.GetPosition(req.PositionID); ok {
		entry, _ := pos.EntryAmountBase.Float64()
		if entry > float64(e.params.MaxPositionSizeBase) {
			violations = append(violations, "position entryAmountBase exceeds maxPositionSizeBase")
		}
	}

	// 5. sellPercentage not in (0,100].
	if req.Action == store.ExecutionActionPartialSell || req.Action == store.ExecutionActionFullExit {
		if req.SellPercentage <= 0 || req.SellPercentage > 100 {
			violations = append(violations, "sellPercentage out of range (0,100]")
		}
	}

	approved := len(violations) == 0
	if approved {
		e.mu.Lock()
		e.lastExec[req.PositionID] = time.Now()
		e.mu.Unlock()
	}

	return Result{Approved: approved, Violations: violations}
}

// ResetCooldown erases the cooldown entry, used by the Execution
// Engine after a rejected execution to avoid stranding future attempts.
func (e *Engine) ResetCooldown(positionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lastExec, positionID)
}
