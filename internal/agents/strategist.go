package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curvesentinel/node/internal/agent"
	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/reasoning"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/pkg/observability"
)

const (
	strategistTickInterval    = 2 * time.Second
	strategistConvictionFloor = 30
	strategistOutcomeWindow   = 20
	strategistLosingStreak    = 3
)

type entryDecision struct {
	Action         string `json:"action"` // enter | skip
	BaseAmount     uint64 `json:"baseAmount"`
	MaxSlippageBps int    `json:"maxSlippageBps"`
	Reasoning      string `json:"reasoning"`
}

// Strategist turns a qualified token analysis into an execution plan,
// sized against recent win rate and capped by configured risk (§4.7
// Strategist).
type Strategist struct {
	*agent.Base

	logger   *observability.Logger
	state    *state.Engine
	reasoner reasoning.Client
	mailbox  *agent.Mailbox
	risk     config.RiskConfig

	mu       sync.Mutex
	queue    []TokenAnalysis
	outcomes []bool // most recent last
}

func NewStrategist(stateEngine *state.Engine, reasoner reasoning.Client, mailbox *agent.Mailbox, risk config.RiskConfig, logger *observability.Logger) *Strategist {
	s := &Strategist{logger: logger, state: stateEngine, reasoner: reasoner, mailbox: mailbox, risk: risk}
	s.Base = agent.NewBase(agent.RoleStrategist, strategistTickInterval, s, logger)
	mailbox.Subscribe(agent.RoleStrategist, ChannelTokenAnalysis, s.enqueue)
	mailbox.Subscribe(agent.RoleStrategist, ChannelOutcome, s.recordOutcome)
	return s
}

func (s *Strategist) enqueue(ctx context.Context, msg agent.Message) {
	analysis, ok := msg.Payload.(TokenAnalysis)
	if !ok {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, analysis)
	s.mu.Unlock()
}

func (s *Strategist) recordOutcome(ctx context.Context, msg agent.Message) {
	outcome, ok := msg.Payload.(Outcome)
	if !ok {
		return
	}
	s.mu.Lock()
	s.outcomes = append(s.outcomes, outcome.WasCorrect)
	if len(s.outcomes) > strategistOutcomeWindow {
		s.outcomes = s.outcomes[len(s.outcomes)-strategistOutcomeWindow:]
	}
	s.mu.Unlock()
}

func (s *Strategist) OnStart(ctx context.Context) error { return nil }
func (s *Strategist) OnStop(ctx context.Context) error  { return nil }

func (s *Strategist) dequeue() (TokenAnalysis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return TokenAnalysis{}, false
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	return item, true
}

func (s *Strategist) portfolioContext() (openCount int, winRate float64, onLosingStreak bool) {
	open := s.state.GetOpenPositions()
	openCount = len(open)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) > 0 {
		wins := 0
		for _, correct := range s.outcomes {
			if correct {
				wins++
			}
		}
		winRate = float64(wins) / float64(len(s.outcomes))
	}
	if len(s.outcomes) >= strategistLosingStreak {
		streak := s.outcomes[len(s.outcomes)-strategistLosingStreak:]
		onLosingStreak = true
		for _, correct := range streak {
			if correct {
				onLosingStreak = false
				break
			}
		}
	}
	return
}

func (s *Strategist) hasOpenPosition(mint string) bool {
	return len(s.state.GetPositionsByMint(mint)) > 0
}

func (s *Strategist) Tick(ctx context.Context) error {
	analysis, ok := s.dequeue()
	if !ok {
		return nil
	}
	return s.decide(ctx, analysis)
}

func (s *Strategist) decide(ctx context.Context, analysis TokenAnalysis) error {
	if analysis.RiskProfile == RiskExtreme {
		return nil
	}
	if analysis.ConvictionScore < strategistConvictionFloor {
		return nil
	}
	if s.hasOpenPosition(analysis.Mint) {
		return nil
	}

	openCount, winRate, onLosingStreak := s.portfolioContext()

	systemPrompt := "You are a position-sizing strategist deciding whether to enter a trade given current portfolio state. Respond with a single JSON object only."
	userPrompt := fmt.Sprintf(
		"mint=%s convictionScore=%.1f riskProfile=%s recommendedPositionSizeBase=%d openPositions=%d winRate=%.3f onLosingStreak=%t maxPositionSizeBase=%d\nRespond with JSON: {\"action\": \"enter|skip\", \"baseAmount\": number, \"maxSlippageBps\": number, \"reasoning\": string}",
		analysis.Mint, analysis.ConvictionScore, analysis.RiskProfile, analysis.RecommendedPositionSizeBase,
		openCount, winRate, onLosingStreak, s.risk.MaxPositionSizeBase,
	)

	var decision entryDecision
	if err := s.reasoner.Complete(ctx, systemPrompt, userPrompt, &decision); err != nil {
		return fmt.Errorf("strategist reasoning call failed: %w", err)
	}
	if decision.Action != "enter" || decision.BaseAmount == 0 {
		return nil
	}

	baseAmount := decision.BaseAmount
	if baseAmount > s.risk.MaxPositionSizeBase {
		baseAmount = s.risk.MaxPositionSizeBase
	}
	if onLosingStreak {
		baseAmount /= 2
	}
	if baseAmount == 0 {
		return nil
	}

	maxSlippageBps := decision.MaxSlippageBps
	if maxSlippageBps <= 0 || maxSlippageBps > s.risk.MaxSlippageBps {
		maxSlippageBps = s.risk.MaxSlippageBps
	}

	plan := ExecutionPlan{
		ID:              uuid.NewString(),
		Action:          "enter",
		Mint:            analysis.Mint,
		BaseAmount:      baseAmount,
		MaxSlippageBps:  maxSlippageBps,
		PriorityFeeBase: s.risk.MaxPriorityFeeBase,
		Urgency:         UrgencyMedium,
		Reasoning:       decision.Reasoning,
	}
	s.mailbox.Send(ctx, agent.RoleStrategist, agent.RoleExecutor, ChannelExecutionPlan, plan)
	return nil
}
