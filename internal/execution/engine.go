// Package execution orchestrates a single sell execution against the
// bonding-curve AMM (§4.5): risk check, quote, build, simulate, send
// with retry, and position reconciliation.
package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curvesentinel/node/internal/chain"
	"github.com/curvesentinel/node/internal/curve"
	"github.com/curvesentinel/node/internal/risk"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

const maxRetries = 3

// Result is the in-process outcome of Run, mirroring ExecutionResult (§3).
type Result struct {
	ID               uuid.UUID
	Status           store.ExecutionStatus
	TxSignature      *string
	AmountIn         *decimal.Decimal
	AmountOut        *decimal.Decimal
	ErrorMessage     *string
	SimulationResult *string
	CompletedAt      *time.Time
}

// Engine is the Execution Engine.
type Engine struct {
	logger      *observability.Logger
	securityLog *observability.SecurityLogger
	risk        *risk.Engine
	state       *state.Engine
	chain       *chain.Client
	wallet      *chain.Wallet
	store       store.ExecutionStore
}

func New(logger *observability.Logger, riskEngine *risk.Engine, stateEngine *state.Engine, chainClient *chain.Client, wallet *chain.Wallet, executionStore store.ExecutionStore) *Engine {
	return &Engine{
		logger:      logger,
		securityLog: observability.NewSecurityLogger(logger),
		risk:        riskEngine,
		state:       stateEngine,
		chain:       chainClient,
		wallet:      wallet,
		store:       executionStore,
	}
}

// Run executes the 8-step sell flow and persists the resulting row
// regardless of outcome.
func (e *Engine) Run(ctx context.Context, req Request) Result {
	result := Result{ID: uuid.New(), Status: store.ExecutionPending}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("unanticipated error: %v", r)
			result.Status = store.ExecutionFailed
			result.ErrorMessage = &msg
			now := time.Now()
			result.CompletedAt = &now
			e.persist(ctx, req, result)
		}
	}()

	// 1. Risk check.
	riskResult := e.risk.Evaluate(req)
	if !riskResult.Approved {
		e.securityLog.LogSecurityViolation(ctx, "risk-rejected execution request", req.PositionID.String(), "", "high", map[string]interface{}{
			"violations": riskResult.Violations,
		})
		return e.fail(ctx, req, result, "risk-rejected", fmt.Errorf("%v", riskResult.Violations))
	}

	// 2. Look up position.
	pos, ok := e.state.GetPosition(req.PositionID)
	if !ok {
		return e.fail(ctx, req, result, "position-missing", fmt.Errorf("position %s not found", req.PositionID))
	}

	// 3. sellAmount = tokenBalance * floor(sellPercentage) / 100.
	sellAmount := pos.TokenBalance * uint64(math.Floor(req.SellPercentage)) / 100

	// 4. Fetch curve state, compute sell quote, derive minBaseOutput.
	mint, err := solana.PublicKeyFromBase58(pos.MintAddress)
	if err != nil {
		return e.fail(ctx, req, result, "position-missing", err)
	}
	curveState, bondingCurve, err := e.chain.GetCurveState(ctx, mint)
	if err != nil {
		return e.fail(ctx, req, result, "simulation-failed", err)
	}
	quote := curve.Sell(curveState, sellAmount)
	minBaseOutput := curve.ApplySlippage(quote.AmountOut, req.MaxSlippageBps, curve.SideSell)

	amountIn := decimal.NewFromInt(int64(sellAmount))
	result.AmountIn = &amountIn

	// 5. Build instruction list.
	accounts, err := e.chain.DeriveAccounts(mint)
	if err != nil {
		return e.fail(ctx, req, result, "simulation-failed", err)
	}
	sellerTokenAccount, _, err := solana.FindAssociatedTokenAddress(e.wallet.PublicKey(), mint)
	if err != nil {
		return e.fail(ctx, req, result, "simulation-failed", err)
	}
	instructions := e.chain.BuildSellInstructions(
		mint, e.wallet.PublicKey(), sellerTokenAccount, bondingCurve, accounts,
		sellAmount, minBaseOutput, req.PriorityFeeBase,
	)

	// 6. Fetch blockhash, sign, simulate.
	blockhash, _, err := e.chain.LatestBlockhash(ctx)
	if err != nil {
		return e.fail(ctx, req, result, "simulation-failed", err)
	}
	tx, err := chain.BuildTransaction(instructions, blockhash, e.wallet.PublicKey())
	if err != nil {
		return e.fail(ctx, req, result, "simulation-failed", err)
	}
	if err := e.wallet.Sign(tx); err != nil {
		return e.fail(ctx, req, result, "simulation-failed", err)
	}

	result.Status = store.ExecutionSimulating
	simResp, err := e.chain.Simulate(ctx, tx)
	if err != nil {
		return e.fail(ctx, req, result, "simulation-failed", err)
	}
	if simResp.Value.Err != nil {
		simStr := fmt.Sprintf("%v logs=%v", simResp.Value.Err, simResp.Value.Logs)
		result.SimulationResult = &simStr
		return e.fail(ctx, req, result, "simulation-failed", fmt.Errorf("%s", simStr))
	}

	// 7. Send with retries, exponential backoff 1000*2^attempt ms.
	result.Status = store.ExecutionSubmitted
	sig, err := e.sendWithRetry(ctx, instructions, e.wallet.PublicKey())
	if err != nil {
		e.risk.ResetCooldown(req.PositionID)
		return e.fail(ctx, req, result, "send-exhausted", err)
	}
	sigStr := sig.String()
	result.TxSignature = &sigStr

	// 8. Confirmed: update position, persist.
	result.Status = store.ExecutionConfirmed
	amountOut := decimal.NewFromInt(int64(quote.AmountOut))
	result.AmountOut = &amountOut
	now := time.Now()
	result.CompletedAt = &now

	_, err = e.state.UpdatePosition(req.PositionID, func(p *store.Position) {
		p.TokenBalance -= sellAmount
		if p.TokenBalance == 0 {
			p.Status = store.PositionClosed
			closedAt := time.Now()
			p.ClosedAt = &closedAt
		}
	})
	if err != nil {
		e.logger.Error(ctx, "failed to reconcile position after confirmed execution", err)
	}

	e.logger.Info(ctx, "execution confirmed", map[string]interface{}{
		"positionId": req.PositionID.String(),
		"signature":  sigStr,
		"amountOut":  amountOut.String(),
	})

	e.persist(ctx, req, result)
	return result
}

// sendWithRetry refreshes the blockhash and re-signs on each attempt,
// sending with skipPreflight=false, maxRetries=0 at the RPC layer, and
// confirming. Any error raises up to this retry layer.
func (e *Engine) sendWithRetry(ctx context.Context, instructions []solana.Instruction, payer solana.PublicKey) (solana.Signature, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1000*(1<<uint(attempt))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return solana.Signature{}, ctx.Err()
			}
		}

		blockhash, _, err := e.chain.LatestBlockhash(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		tx, err := chain.BuildTransaction(instructions, blockhash, payer)
		if err != nil {
			lastErr = err
			continue
		}
		if err := e.wallet.Sign(tx); err != nil {
			lastErr = err
			continue
		}

		sig, err := e.chain.SendRaw(ctx, tx)
		if err != nil {
			lastErr = err
			continue
		}

		if err := e.chain.ConfirmTransaction(ctx, sig); err != nil {
			lastErr = err
			continue
		}

		return sig, nil
	}

	return solana.Signature{}, fmt.Errorf("send exhausted after %d attempts: %w", maxRetries, lastErr)
}

func (e *Engine) fail(ctx context.Context, req Request, result Result, prefix string, err error) Result {
	msg := fmt.Sprintf("%s: %v", prefix, err)
	result.Status = store.ExecutionFailed
	result.ErrorMessage = &msg
	now := time.Now()
	result.CompletedAt = &now
	e.logger.Error(ctx, "execution failed", err, map[string]interface{}{
		"positionId": req.PositionID.String(),
		"stage":      prefix,
	})
	e.persist(ctx, req, result)
	return result
}

func (e *Engine) persist(ctx context.Context, req Request, result Result) {
	row := &store.ExecutionRow{
		ID:               result.ID,
		PositionID:       req.PositionID,
		PolicyID:         req.PolicyID,
		Status:           result.Status,
		TxSignature:      result.TxSignature,
		AmountIn:         result.AmountIn,
		AmountOut:        result.AmountOut,
		ErrorMessage:     result.ErrorMessage,
		SimulationResult: result.SimulationResult,
		CompletedAt:      result.CompletedAt,
		CreatedAt:        time.Now(),
	}
	if err := e.store.InsertExecution(ctx, row); err != nil {
		e.logger.Error(ctx, "failed to persist execution row", err)
	}
}
