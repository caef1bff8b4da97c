package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/curvesentinel/node/internal/agent"
	"github.com/curvesentinel/node/internal/chain"
	"github.com/curvesentinel/node/internal/intel"
	"github.com/curvesentinel/node/internal/reasoning"
	"github.com/curvesentinel/node/pkg/observability"
)

const (
	analystTickInterval   = 2 * time.Second
	analystClusterDepth   = 2
	analystTopPatterns    = 5
	analystConvictionFloor = 0
)

type convictionResponse struct {
	ConvictionScore             float64     `json:"convictionScore"`
	RiskProfile                 RiskProfile `json:"riskProfile"`
	RecommendedPositionSizeBase uint64      `json:"recommendedPositionSizeBase"`
	Reasoning                   string      `json:"reasoning"`
}

// Analyst evaluates queued launches against curve state, the wallet
// graph, and historical patterns, then calls the reasoning service for
// a conviction verdict (§4.7).
type Analyst struct {
	*agent.Base

	logger    *observability.Logger
	chain     *chain.Client
	graph     *intel.WalletGraph
	patterns  *intel.PatternDatabase
	reasoner  reasoning.Client
	mailbox   *agent.Mailbox

	mu    sync.Mutex
	queue []NewLaunchPayload
}

func NewAnalyst(chainClient *chain.Client, graph *intel.WalletGraph, patterns *intel.PatternDatabase, reasoner reasoning.Client, mailbox *agent.Mailbox, logger *observability.Logger) *Analyst {
	a := &Analyst{logger: logger, chain: chainClient, graph: graph, patterns: patterns, reasoner: reasoner, mailbox: mailbox}
	a.Base = agent.NewBase(agent.RoleAnalyst, analystTickInterval, a, logger)
	mailbox.Subscribe(agent.RoleAnalyst, ChannelNewLaunch, a.enqueue)
	return a
}

func (a *Analyst) enqueue(ctx context.Context, msg agent.Message) {
	payload, ok := msg.Payload.(NewLaunchPayload)
	if !ok {
		return
	}
	a.mu.Lock()
	a.queue = append(a.queue, payload)
	a.mu.Unlock()
}

func (a *Analyst) OnStart(ctx context.Context) error { return nil }
func (a *Analyst) OnStop(ctx context.Context) error  { return nil }

func (a *Analyst) dequeue() (NewLaunchPayload, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return NewLaunchPayload{}, false
	}
	item := a.queue[0]
	a.queue = a.queue[1:]
	return item, true
}

func (a *Analyst) Tick(ctx context.Context) error {
	item, ok := a.dequeue()
	if !ok {
		return nil
	}
	return a.analyze(ctx, item)
}

func (a *Analyst) analyze(ctx context.Context, launch NewLaunchPayload) error {
	mintKey, err := solana.PublicKeyFromBase58(launch.Signal.Mint)
	if err != nil {
		return nil
	}

	curveState, _, err := a.chain.GetCurveState(ctx, mintKey)
	if err != nil {
		return err
	}
	if curveState.Complete {
		return nil
	}

	cluster, err := a.graph.GetCluster(ctx, launch.Signal.Deployer, analystClusterDepth)
	if err != nil {
		return err
	}

	observation := map[string]float64{
		"deployerScore":     launch.DeployerProfile.Score,
		"clusterSize":       float64(len(cluster)),
		"curveRealBase":     float64(curveState.RealBase),
		"curveRealToken":    float64(curveState.RealToken),
	}
	matches, err := a.patterns.FindMatches(ctx, observation)
	if err != nil {
		return err
	}
	if len(matches) > analystTopPatterns {
		matches = matches[:analystTopPatterns]
	}

	systemPrompt := "You are a quantitative analyst scoring a newly launched bonding-curve token for conviction to trade. Respond with a single JSON object only."
	userPrompt := fmt.Sprintf(
		"deployerScore=%.1f rugRate=%.3f totalLaunches=%d clusterSize=%d curveRealBase=%d curveRealToken=%d topPatterns=%d\nRespond with JSON: {\"convictionScore\": number, \"riskProfile\": \"low|medium|high|extreme\", \"recommendedPositionSizeBase\": number, \"reasoning\": string}",
		launch.DeployerProfile.Score, launch.DeployerProfile.RugRate, launch.DeployerProfile.TotalLaunches,
		len(cluster), curveState.RealBase, curveState.RealToken, len(matches),
	)

	var verdict convictionResponse
	if err := a.reasoner.Complete(ctx, systemPrompt, userPrompt, &verdict); err != nil {
		return fmt.Errorf("analyst reasoning call failed: %w", err)
	}

	if verdict.ConvictionScore <= analystConvictionFloor || verdict.RecommendedPositionSizeBase == 0 {
		return nil
	}

	a.mailbox.Send(ctx, agent.RoleAnalyst, agent.RoleStrategist, ChannelTokenAnalysis, TokenAnalysis{
		Mint:                        launch.Signal.Mint,
		Deployer:                    launch.Signal.Deployer,
		ConvictionScore:             verdict.ConvictionScore,
		RiskProfile:                 verdict.RiskProfile,
		RecommendedPositionSizeBase: verdict.RecommendedPositionSizeBase,
		Reasoning:                   verdict.Reasoning,
	})
	return nil
}
