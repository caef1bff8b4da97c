package agents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvesentinel/node/internal/agent"
	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{ServiceName: "agents-test", LogLevel: "error", LogFormat: "json"})
}

func TestExecutorInsertOrdersByUrgencyLowestRankFirst(t *testing.T) {
	e := &Executor{}
	e.insert(workItem{urgency: UrgencyLow})
	e.insert(workItem{urgency: UrgencyMedium})
	e.insert(workItem{urgency: UrgencyCritical})
	e.insert(workItem{urgency: UrgencyHigh})

	require.Len(t, e.queue, 4)
	assert.Equal(t, UrgencyCritical, e.queue[0].urgency)
	assert.Equal(t, UrgencyHigh, e.queue[1].urgency)
	assert.Equal(t, UrgencyMedium, e.queue[2].urgency)
	assert.Equal(t, UrgencyLow, e.queue[3].urgency)
}

func TestExecutorCriticalThreatExitBypassesOrderAtHead(t *testing.T) {
	e := &Executor{}
	e.insert(workItem{kind: workEnter, urgency: UrgencyHigh})
	e.insert(workItem{kind: workEnter, urgency: UrgencyMedium})

	e.enqueueExit(context.Background(), agent.Message{Payload: ThreatExit{PositionID: "p1", Urgency: UrgencyCritical}})

	require.Len(t, e.queue, 3)
	assert.Equal(t, workExit, e.queue[0].kind)
	assert.Equal(t, UrgencyCritical, e.queue[0].urgency)
}

func TestExecutorDequeuePopsFromFront(t *testing.T) {
	e := &Executor{}
	e.insert(workItem{kind: workEnter, urgency: UrgencyCritical, plan: ExecutionPlan{Mint: "first"}})
	e.insert(workItem{kind: workEnter, urgency: UrgencyLow, plan: ExecutionPlan{Mint: "second"}})

	item, ok := e.dequeue()
	require.True(t, ok)
	assert.Equal(t, "first", item.plan.Mint)

	item, ok = e.dequeue()
	require.True(t, ok)
	assert.Equal(t, "second", item.plan.Mint)

	_, ok = e.dequeue()
	assert.False(t, ok)
}

func TestMemoryResolveComputesPositivePnl(t *testing.T) {
	m := &Memory{logger: testLogger(), mailbox: agent.NewMailbox()}
	positionID := uuid.NewString()

	var captured Outcome
	m.mailbox.Subscribe(agent.RoleStrategist, ChannelOutcome, func(ctx context.Context, msg agent.Message) {
		captured = msg.Payload.(Outcome)
	})

	entry := ExecutionResultMsg{PositionID: positionID, Mint: "mint1", Kind: "enter", Success: true, AmountIn: 100, OccurredAt: time.Now()}
	exit := ExecutionResultMsg{PositionID: positionID, Mint: "mint1", Kind: "full_exit", Success: true, AmountOut: 150, OccurredAt: time.Now().Add(time.Minute)}

	m.resolve(context.Background(), exit, []ExecutionResultMsg{entry, exit})

	require.Len(t, m.outcomes, 1)
	assert.InDelta(t, 50.0, m.outcomes[0].PnlPercent, 0.001)
	assert.True(t, m.outcomes[0].WasCorrect)
	assert.Equal(t, "mint1", captured.Mint)
	assert.True(t, captured.WasCorrect)
}

func TestMemoryResolveIgnoresEnterAndFailedResults(t *testing.T) {
	m := &Memory{logger: testLogger(), mailbox: agent.NewMailbox()}
	positionID := uuid.NewString()

	enter := ExecutionResultMsg{PositionID: positionID, Kind: "enter", Success: true, AmountIn: 100}
	failedExit := ExecutionResultMsg{PositionID: positionID, Kind: "full_exit", Success: false}

	m.resolve(context.Background(), enter, []ExecutionResultMsg{enter})
	m.resolve(context.Background(), failedExit, []ExecutionResultMsg{enter, failedExit})

	assert.Empty(t, m.outcomes)
}

func TestMemoryOutcomeWindowIsCappedAtFiveHundred(t *testing.T) {
	m := &Memory{logger: testLogger(), mailbox: agent.NewMailbox()}
	for i := 0; i < memoryOutcomeWindow+10; i++ {
		positionID := uuid.NewString()
		entry := ExecutionResultMsg{PositionID: positionID, Kind: "enter", Success: true, AmountIn: 100, OccurredAt: time.Now()}
		exit := ExecutionResultMsg{PositionID: positionID, Kind: "full_exit", Success: true, AmountOut: 110, OccurredAt: time.Now()}
		m.resolve(context.Background(), exit, []ExecutionResultMsg{entry, exit})
	}
	assert.Len(t, m.outcomes, memoryOutcomeWindow)
}

func TestStrategistSkipsExtremeRiskAndLowConvictionAndDuplicateMint(t *testing.T) {
	stateEngine := state.New(testLogger(), nil, nil, nil)
	stateEngine.AddPosition(&store.Position{ID: uuid.New(), MintAddress: "dupMint", Status: store.PositionOpen, OpenedAt: time.Now()})

	s := &Strategist{logger: testLogger(), state: stateEngine, mailbox: agent.NewMailbox(), risk: config.RiskConfig{MaxPositionSizeBase: 1000, MaxSlippageBps: 500}}

	sent := false
	s.mailbox.Subscribe(agent.RoleExecutor, ChannelExecutionPlan, func(ctx context.Context, msg agent.Message) { sent = true })

	require.NoError(t, s.decide(context.Background(), TokenAnalysis{Mint: "m1", RiskProfile: RiskExtreme, ConvictionScore: 90, RecommendedPositionSizeBase: 500}))
	assert.False(t, sent)

	require.NoError(t, s.decide(context.Background(), TokenAnalysis{Mint: "m2", RiskProfile: RiskMedium, ConvictionScore: 10, RecommendedPositionSizeBase: 500}))
	assert.False(t, sent)

	require.NoError(t, s.decide(context.Background(), TokenAnalysis{Mint: "dupMint", RiskProfile: RiskMedium, ConvictionScore: 90, RecommendedPositionSizeBase: 500}))
	assert.False(t, sent)
}

func TestStrategistPortfolioContextTracksLosingStreak(t *testing.T) {
	stateEngine := state.New(testLogger(), nil, nil, nil)
	s := &Strategist{state: stateEngine}

	s.outcomes = []bool{true, false, false, false}
	_, winRate, onLosingStreak := s.portfolioContext()
	assert.InDelta(t, 0.25, winRate, 0.001)
	assert.True(t, onLosingStreak)

	s.outcomes = []bool{false, true, false}
	_, _, onLosingStreak = s.portfolioContext()
	assert.False(t, onLosingStreak)
}
