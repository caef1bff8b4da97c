package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curvesentinel/node/internal/agent"
	"github.com/curvesentinel/node/internal/chain"
	"github.com/curvesentinel/node/internal/curve"
	"github.com/curvesentinel/node/internal/execution"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

const executorTickInterval = 1 * time.Second

var urgencyRank = map[ExecutionPlanUrgency]int{
	UrgencyCritical: 0,
	UrgencyHigh:     1,
	UrgencyMedium:   2,
	UrgencyLow:      3,
}

type workKind int

const (
	workEnter workKind = iota
	workExit
)

type workItem struct {
	kind    workKind
	urgency ExecutionPlanUrgency
	plan    ExecutionPlan
	exit    ThreatExit
}

// Executor is the executor-agent (§4.7): a 1s-tick priority queue that
// turns execution plans into buys and threat exits into sells, always
// reporting the outcome to memory.
type Executor struct {
	*agent.Base

	logger     *observability.Logger
	chain      *chain.Client
	wallet     *chain.Wallet
	execEngine *execution.Engine
	state      *state.Engine
	wallets    store.WalletStore
	mailbox    *agent.Mailbox

	mu        sync.Mutex
	queue     []workItem
	walletID  uuid.UUID
}

func NewExecutor(chainClient *chain.Client, wallet *chain.Wallet, execEngine *execution.Engine, stateEngine *state.Engine, wallets store.WalletStore, mailbox *agent.Mailbox, logger *observability.Logger) *Executor {
	e := &Executor{logger: logger, chain: chainClient, wallet: wallet, execEngine: execEngine, state: stateEngine, wallets: wallets, mailbox: mailbox}
	e.Base = agent.NewBase(agent.RoleExecutor, executorTickInterval, e, logger)
	mailbox.Subscribe(agent.RoleExecutor, ChannelExecutionPlan, e.enqueuePlan)
	mailbox.Subscribe(agent.RoleExecutor, ChannelThreatExit, e.enqueueExit)
	return e
}

func (e *Executor) OnStart(ctx context.Context) error {
	rows, err := e.wallets.ListWallets(ctx)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		e.walletID = rows[0].ID
	}
	return nil
}

func (e *Executor) OnStop(ctx context.Context) error { return nil }

func (e *Executor) enqueuePlan(ctx context.Context, msg agent.Message) {
	plan, ok := msg.Payload.(ExecutionPlan)
	if !ok {
		return
	}
	e.insert(workItem{kind: workEnter, urgency: plan.Urgency, plan: plan})
}

func (e *Executor) enqueueExit(ctx context.Context, msg agent.Message) {
	exit, ok := msg.Payload.(ThreatExit)
	if !ok {
		return
	}
	item := workItem{kind: workExit, urgency: exit.Urgency, exit: exit}

	e.mu.Lock()
	defer e.mu.Unlock()
	if exit.Urgency == UrgencyCritical {
		e.queue = append([]workItem{item}, e.queue...)
		return
	}
	e.insertLocked(item)
}

func (e *Executor) insert(item workItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.insertLocked(item)
}

func (e *Executor) insertLocked(item workItem) {
	rank := urgencyRank[item.urgency]
	for i, existing := range e.queue {
		if urgencyRank[existing.urgency] > rank {
			e.queue = append(e.queue, workItem{})
			copy(e.queue[i+1:], e.queue[i:])
			e.queue[i] = item
			return
		}
	}
	e.queue = append(e.queue, item)
}

func (e *Executor) dequeue() (workItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return workItem{}, false
	}
	item := e.queue[0]
	e.queue = e.queue[1:]
	return item, true
}

func (e *Executor) Tick(ctx context.Context) error {
	item, ok := e.dequeue()
	if !ok {
		return nil
	}
	switch item.kind {
	case workEnter:
		return e.processEnter(ctx, item.plan)
	case workExit:
		return e.processExit(ctx, item.exit)
	default:
		return nil
	}
}

func (e *Executor) report(ctx context.Context, result ExecutionResultMsg) {
	e.mailbox.Send(ctx, agent.RoleExecutor, agent.RoleMemory, ChannelExecutionResult, result)
}

func (e *Executor) processEnter(ctx context.Context, plan ExecutionPlan) error {
	result := ExecutionResultMsg{Mint: plan.Mint, Kind: "enter", OccurredAt: time.Now()}

	mint, err := solana.PublicKeyFromBase58(plan.Mint)
	if err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}

	curveState, bondingCurve, err := e.chain.GetCurveState(ctx, mint)
	if err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}

	quote := curve.Quote(curveState, plan.BaseAmount)
	minTokenOutput := curve.ApplySlippage(quote.AmountOut, plan.MaxSlippageBps, curve.SideSell)

	accounts, err := e.chain.DeriveAccounts(mint)
	if err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}
	buyerTokenAccount, _, err := solana.FindAssociatedTokenAddress(e.wallet.PublicKey(), mint)
	if err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}
	exists, err := e.chain.AccountExists(ctx, buyerTokenAccount)
	if err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}

	instructions := e.chain.BuildBuyInstructions(
		mint, e.wallet.PublicKey(), buyerTokenAccount, !exists, bondingCurve, accounts,
		plan.BaseAmount, minTokenOutput, plan.PriorityFeeBase,
	)

	blockhash, _, err := e.chain.LatestBlockhash(ctx)
	if err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}
	tx, err := chain.BuildTransaction(instructions, blockhash, e.wallet.PublicKey())
	if err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}
	if err := e.wallet.Sign(tx); err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}

	simResp, err := e.chain.Simulate(ctx, tx)
	if err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}
	if simResp.Value.Err != nil {
		result.Error = fmt.Sprintf("%v", simResp.Value.Err)
		e.report(ctx, result)
		return fmt.Errorf("buy simulation failed: %v logs=%v", simResp.Value.Err, simResp.Value.Logs)
	}

	sig, err := e.chain.SendRawSkipPreflight(ctx, tx)
	if err != nil {
		result.Error = err.Error()
		e.report(ctx, result)
		return err
	}

	position := &store.Position{
		ID:              uuid.New(),
		WalletID:        e.walletID,
		MintAddress:     plan.Mint,
		EntryAmountBase: decimal.NewFromInt(int64(plan.BaseAmount)),
		TokenBalance:    quote.AmountOut,
		Status:          store.PositionOpen,
		OpenedAt:        time.Now(),
	}
	e.state.AddPosition(position)

	result.Success = true
	result.TxSignature = sig.String()
	result.PositionID = position.ID.String()
	result.AmountIn = float64(plan.BaseAmount)
	result.AmountOut = float64(quote.AmountOut)
	e.report(ctx, result)
	return nil
}

func (e *Executor) processExit(ctx context.Context, exit ThreatExit) error {
	positionID, err := uuid.Parse(exit.PositionID)
	if err != nil {
		return nil
	}

	action := store.ExecutionActionPartialSell
	if exit.Action == "full_exit" {
		action = store.ExecutionActionFullExit
	}

	execResult := e.execEngine.Run(ctx, execution.Request{
		PositionID:     positionID,
		Action:         action,
		SellPercentage: exit.SellPercentage,
		MaxSlippageBps: 500,
	})

	result := ExecutionResultMsg{
		PositionID: exit.PositionID,
		Mint:       exit.Mint,
		Kind:       exit.Action,
		Success:    execResult.Status == store.ExecutionConfirmed,
		OccurredAt: time.Now(),
	}
	if execResult.TxSignature != nil {
		result.TxSignature = *execResult.TxSignature
	}
	if execResult.AmountIn != nil {
		result.AmountIn, _ = execResult.AmountIn.Float64()
	}
	if execResult.AmountOut != nil {
		result.AmountOut, _ = execResult.AmountOut.Float64()
	}
	if execResult.ErrorMessage != nil {
		result.Error = *execResult.ErrorMessage
	}
	e.report(ctx, result)
	return nil
}
