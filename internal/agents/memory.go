package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/curvesentinel/node/internal/agent"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

const (
	memoryTickInterval  = 10 * time.Second
	memoryOutcomeWindow = 500
	memoryPersistEvery  = 10
	memoryOutcomesKey   = "agents:memory:outcomes"
	memoryStatsKey      = "agents:memory:stats"
)

// decisionOutcome records one closed position's P&L, derived by
// matching an `enter` result
// against the corresponding `exit`/`partial_exit` result for the same
// position (§4.7 Memory).
type decisionOutcome struct {
	Mint           string        `json:"mint"`
	PnlPercent     float64       `json:"pnlPercent"`
	HoldDurationMs int64         `json:"holdDurationMs"`
	WasCorrect     bool          `json:"wasCorrect"`
	RecordedAt     time.Time     `json:"recordedAt"`
}

type memoryStats struct {
	TotalOutcomes int     `json:"totalOutcomes"`
	WinRate       float64 `json:"winRate"`
	AvgPnlPercent float64 `json:"avgPnlPercent"`
}

// Memory collects execution results, derives decision outcomes by
// matching entries to exits, feeds the outcome back to the strategist,
// and periodically persists a rolling history plus aggregate stats
// (§4.7 Memory).
type Memory struct {
	*agent.Base

	logger  *observability.Logger
	kv      *store.KV
	mailbox *agent.Mailbox

	mu        sync.Mutex
	pending   []ExecutionResultMsg
	outcomes  []decisionOutcome
	ticks     int
}

func NewMemory(kv *store.KV, mailbox *agent.Mailbox, logger *observability.Logger) *Memory {
	m := &Memory{logger: logger, kv: kv, mailbox: mailbox}
	m.Base = agent.NewBase(agent.RoleMemory, memoryTickInterval, m, logger)
	mailbox.Subscribe(agent.RoleMemory, ChannelExecutionResult, m.enqueue)
	return m
}

func (m *Memory) enqueue(ctx context.Context, msg agent.Message) {
	result, ok := msg.Payload.(ExecutionResultMsg)
	if !ok {
		return
	}
	m.mu.Lock()
	m.pending = append(m.pending, result)
	m.mu.Unlock()
}

func (m *Memory) OnStart(ctx context.Context) error {
	raw, err := m.kv.Get(ctx, memoryOutcomesKey)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	var outcomes []decisionOutcome
	if err := json.Unmarshal([]byte(raw), &outcomes); err != nil {
		return fmt.Errorf("failed to decode persisted outcomes: %w", err)
	}
	m.mu.Lock()
	m.outcomes = outcomes
	m.mu.Unlock()
	return nil
}

func (m *Memory) OnStop(ctx context.Context) error {
	return m.persist(ctx)
}

func (m *Memory) drain() []ExecutionResultMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	drained := m.pending
	m.pending = nil
	return drained
}

func (m *Memory) Tick(ctx context.Context) error {
	results := m.drain()
	for _, result := range results {
		m.resolve(ctx, result, results)
	}

	m.mu.Lock()
	m.ticks++
	due := m.ticks%memoryPersistEvery == 0
	m.mu.Unlock()

	if due {
		return m.persist(ctx)
	}
	return nil
}

// resolve looks for an enter in this batch whose position this exit
// closes, and derives P&L from it. Only the given batch is searched: an
// exit whose enter was drained in an earlier tick yields no outcome.
func (m *Memory) resolve(ctx context.Context, result ExecutionResultMsg, batch []ExecutionResultMsg) {
	if result.Kind == "enter" || !result.Success {
		return
	}

	var entry *ExecutionResultMsg
	for i := range batch {
		if batch[i].Kind == "enter" && batch[i].PositionID == result.PositionID {
			entry = &batch[i]
			break
		}
	}
	if entry == nil {
		return
	}

	var pnlPercent float64
	if entry.AmountIn > 0 {
		pnlPercent = (result.AmountOut - entry.AmountIn) / entry.AmountIn * 100
	}

	outcome := decisionOutcome{
		Mint:         result.Mint,
		PnlPercent:   pnlPercent,
		HoldDurationMs: result.OccurredAt.Sub(entry.OccurredAt).Milliseconds(),
		WasCorrect:   pnlPercent > 0,
		RecordedAt:   time.Now(),
	}

	m.mu.Lock()
	m.outcomes = append(m.outcomes, outcome)
	if len(m.outcomes) > memoryOutcomeWindow {
		m.outcomes = m.outcomes[len(m.outcomes)-memoryOutcomeWindow:]
	}
	m.mu.Unlock()

	m.mailbox.Send(ctx, agent.RoleMemory, agent.RoleStrategist, ChannelOutcome, Outcome{
		Mint:       outcome.Mint,
		PnlPercent: outcome.PnlPercent,
		WasCorrect: outcome.WasCorrect,
	})
}

func (m *Memory) persist(ctx context.Context) error {
	m.mu.Lock()
	outcomes := make([]decisionOutcome, len(m.outcomes))
	copy(outcomes, m.outcomes)
	m.mu.Unlock()

	raw, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}
	if err := m.kv.Set(ctx, memoryOutcomesKey, string(raw), 0); err != nil {
		return err
	}

	stats := memoryStats{TotalOutcomes: len(outcomes)}
	if len(outcomes) > 0 {
		wins, pnlSum := 0, 0.0
		for _, o := range outcomes {
			if o.WasCorrect {
				wins++
			}
			pnlSum += o.PnlPercent
		}
		stats.WinRate = float64(wins) / float64(len(outcomes))
		stats.AvgPnlPercent = pnlSum / float64(len(outcomes))
	}
	statsRaw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode memory stats: %w", err)
	}
	return m.kv.Set(ctx, memoryStatsKey, string(statsRaw), 0)
}
