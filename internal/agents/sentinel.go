package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/curvesentinel/node/internal/agent"
	"github.com/curvesentinel/node/internal/chain"
	"github.com/curvesentinel/node/internal/intel"
	"github.com/curvesentinel/node/internal/reasoning"
	"github.com/curvesentinel/node/internal/signalbus"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

const (
	sentinelTickInterval    = 5 * time.Second
	sentinelCheckCooldown   = 10 * time.Second
	sentinelDevSellWindowMs = 10 * 60 * 1000
	sentinelClusterSize     = 10

	severityMedium   = "medium"
	severityHigh     = "high"
	severityCritical = "critical"
)

type threat struct {
	positionID string
	mint       string
	severity   string
	reasoning  string
}

type threatVerdict struct {
	IsThreat       bool    `json:"isThreat"`
	Severity       string  `json:"severity"`
	Action         string  `json:"action"` // hold | partial_exit | full_exit
	SellPercentage float64 `json:"sellPercentage"`
	Reasoning      string  `json:"reasoning"`
}

// Sentinel watches open positions for dev-sell pressure, curve
// completion, wallet-cluster concentration, and network-wide rug
// signals, escalating to an immediate exit on anything critical (§4.7
// Sentinel).
type Sentinel struct {
	*agent.Base

	logger   *observability.Logger
	chain    *chain.Client
	state    *state.Engine
	graph    *intel.WalletGraph
	signals  *signalbus.Bus
	reasoner reasoning.Client
	mailbox  *agent.Mailbox

	mu          sync.Mutex
	lastChecked map[string]time.Time
	rugAlerts   map[string]bool
}

func NewSentinel(chainClient *chain.Client, stateEngine *state.Engine, graph *intel.WalletGraph, signals *signalbus.Bus, reasoner reasoning.Client, mailbox *agent.Mailbox, logger *observability.Logger) *Sentinel {
	s := &Sentinel{
		logger: logger, chain: chainClient, state: stateEngine, graph: graph, signals: signals, reasoner: reasoner, mailbox: mailbox,
		lastChecked: make(map[string]time.Time), rugAlerts: make(map[string]bool),
	}
	s.Base = agent.NewBase(agent.RoleSentinel, sentinelTickInterval, s, logger)
	signals.Subscribe("rugs", s.onRugSignal)
	return s
}

func (s *Sentinel) onRugSignal(ctx context.Context, sig signalbus.Signal) error {
	var payload struct {
		Mint string `json:"mint"`
	}
	if err := json.Unmarshal(sig.Data, &payload); err != nil || payload.Mint == "" {
		return nil
	}
	s.mu.Lock()
	s.rugAlerts[payload.Mint] = true
	s.mu.Unlock()
	return nil
}

func (s *Sentinel) OnStart(ctx context.Context) error { return nil }
func (s *Sentinel) OnStop(ctx context.Context) error  { return nil }

func (s *Sentinel) dueForCheck(positionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastChecked[positionID]
	if ok && time.Since(last) < sentinelCheckCooldown {
		return false
	}
	s.lastChecked[positionID] = time.Now()
	return true
}

func (s *Sentinel) Tick(ctx context.Context) error {
	var batch []threat
	for _, pos := range s.state.GetOpenPositions() {
		if !s.dueForCheck(pos.ID.String()) {
			continue
		}
		found, critical, err := s.gatherThreats(ctx, pos)
		if err != nil {
			s.logger.Warn(ctx, "sentinel failed to gather threats", map[string]interface{}{"position": pos.ID.String(), "error": err.Error()})
			continue
		}
		for _, t := range critical {
			s.emitExit(ctx, t.positionID, t.mint, UrgencyCritical, "full_exit", 100, t.reasoning)
			s.publishThreat(ctx, t)
		}
		batch = append(batch, found...)
	}
	if len(batch) == 0 {
		return nil
	}
	return s.resolveBatch(ctx, batch)
}

func (s *Sentinel) gatherThreats(ctx context.Context, pos *store.Position) ([]threat, []threat, error) {
	var found, critical []threat

	mintKey, err := solana.PublicKeyFromBase58(pos.MintAddress)
	if err != nil {
		return nil, nil, nil
	}

	if sellPct := s.state.GetDevSellPercentageInWindow(pos.MintAddress, "", sentinelDevSellWindowMs); sellPct > 0 {
		switch {
		case sellPct > 30:
			critical = append(critical, threat{positionID: pos.ID.String(), mint: pos.MintAddress, severity: severityCritical,
				reasoning: fmt.Sprintf("dev wallet sold %.1f%% of supply in the last 10 minutes", sellPct)})
		case sellPct > 15:
			found = append(found, threat{positionID: pos.ID.String(), mint: pos.MintAddress, severity: severityHigh,
				reasoning: fmt.Sprintf("dev wallet sold %.1f%% of supply in the last 10 minutes", sellPct)})
		case sellPct > 5:
			found = append(found, threat{positionID: pos.ID.String(), mint: pos.MintAddress, severity: severityMedium,
				reasoning: fmt.Sprintf("dev wallet sold %.1f%% of supply in the last 10 minutes", sellPct)})
		}
	}

	curveState, _, err := s.chain.GetCurveState(ctx, mintKey)
	if err == nil && curveState.Complete {
		found = append(found, threat{positionID: pos.ID.String(), mint: pos.MintAddress, severity: severityHigh, reasoning: "bonding curve completed"})
	}

	if cluster, err := s.graph.GetCluster(ctx, pos.MintAddress, 1); err == nil && len(cluster) > sentinelClusterSize {
		found = append(found, threat{positionID: pos.ID.String(), mint: pos.MintAddress, severity: severityMedium,
			reasoning: fmt.Sprintf("deployer wallet cluster has grown to %d wallets", len(cluster))})
	}

	s.mu.Lock()
	rugged := s.rugAlerts[pos.MintAddress]
	s.mu.Unlock()
	if rugged {
		critical = append(critical, threat{positionID: pos.ID.String(), mint: pos.MintAddress, severity: severityCritical, reasoning: "network-wide rug signal received"})
	}

	return found, critical, nil
}

func (s *Sentinel) resolveBatch(ctx context.Context, batch []threat) error {
	highestSeverity := severityMedium
	summary := ""
	for _, t := range batch {
		if t.severity == severityHigh {
			highestSeverity = severityHigh
		}
		summary += fmt.Sprintf("[%s/%s severity=%s] %s\n", t.positionID, t.mint, t.severity, t.reasoning)
	}

	systemPrompt := "You are a defensive sentinel deciding whether flagged threats require exiting a position. Respond with a single JSON object only."
	userPrompt := fmt.Sprintf("Threats detected:\n%sRespond with JSON: {\"isThreat\": bool, \"severity\": \"medium|high\", \"action\": \"hold|partial_exit|full_exit\", \"sellPercentage\": number, \"reasoning\": string}", summary)

	var verdict threatVerdict
	if err := s.reasoner.Complete(ctx, systemPrompt, userPrompt, &verdict); err != nil {
		if highestSeverity == severityHigh {
			for _, t := range batch {
				s.emitExit(ctx, t.positionID, t.mint, UrgencyHigh, "full_exit", 100, "reasoning call failed; defaulting to exit on high-severity threat")
			}
		}
		return fmt.Errorf("sentinel reasoning call failed: %w", err)
	}

	if !verdict.IsThreat || verdict.Action == "hold" {
		return nil
	}
	urgency := UrgencyMedium
	if verdict.Severity == severityHigh {
		urgency = UrgencyHigh
	}
	for _, t := range batch {
		s.emitExit(ctx, t.positionID, t.mint, urgency, verdict.Action, verdict.SellPercentage, verdict.Reasoning)
		if urgency == UrgencyHigh {
			s.publishThreat(ctx, t)
		}
	}
	return nil
}

func (s *Sentinel) emitExit(ctx context.Context, positionID, mint string, urgency ExecutionPlanUrgency, action string, sellPercentage float64, reasoning string) {
	s.mailbox.Send(ctx, agent.RoleSentinel, agent.RoleExecutor, ChannelThreatExit, ThreatExit{
		PositionID: positionID, Mint: mint, Urgency: urgency, Action: action, SellPercentage: sellPercentage, Reasoning: reasoning,
	})
}

func (s *Sentinel) publishThreat(ctx context.Context, t threat) {
	if err := s.signals.Publish(ctx, "rugs", "threat", map[string]interface{}{"mint": t.mint, "severity": t.severity}); err != nil {
		s.logger.Warn(ctx, "sentinel failed to publish threat signal", map[string]interface{}{"error": err.Error()})
	}
}
