package agents

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/curvesentinel/node/internal/agent"
	"github.com/curvesentinel/node/internal/chain"
	"github.com/curvesentinel/node/internal/intel"
	"github.com/curvesentinel/node/internal/signalbus"
	"github.com/curvesentinel/node/pkg/observability"
)

const (
	scoutTickInterval      = 3 * time.Second
	scoutForwardThreshold  = 20
	scoutSignatureBatch    = 20
)

// Scout watches the launchpad program for novel mint launches, scores
// the deployer, and forwards promising ones to the analyst (§4.7).
type Scout struct {
	*agent.Base

	logger  *observability.Logger
	chain   *chain.Client
	graph   *intel.WalletGraph
	scores  *intel.DeployerScoreEngine
	signals *signalbus.Bus
	mailbox *agent.Mailbox

	mu             sync.Mutex
	seenSignatures map[string]bool
	seenMints      map[string]bool
}

func NewScout(chainClient *chain.Client, graph *intel.WalletGraph, scores *intel.DeployerScoreEngine, signals *signalbus.Bus, mailbox *agent.Mailbox, logger *observability.Logger) *Scout {
	s := &Scout{
		logger:         logger,
		chain:          chainClient,
		graph:          graph,
		scores:         scores,
		signals:        signals,
		mailbox:        mailbox,
		seenSignatures: make(map[string]bool),
		seenMints:      make(map[string]bool),
	}
	s.Base = agent.NewBase(agent.RoleScout, scoutTickInterval, s, logger)
	return s
}

func (s *Scout) OnStart(ctx context.Context) error { return nil }
func (s *Scout) OnStop(ctx context.Context) error  { return nil }

func (s *Scout) Tick(ctx context.Context) error {
	sigs, err := s.chain.RecentSignatures(ctx, scoutSignatureBatch)
	if err != nil {
		return err
	}

	// Oldest first so a deployer's own earlier transactions (e.g. the
	// mint creation before the curve initialization) are seen in order.
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i].Signature

		s.mu.Lock()
		novel := !s.seenSignatures[sig.String()]
		s.seenSignatures[sig.String()] = true
		s.mu.Unlock()
		if !novel {
			continue
		}

		if err := s.processSignature(ctx, sig); err != nil {
			s.logger.Warn(ctx, "scout failed to process signature", map[string]interface{}{
				"signature": sig.String(), "error": err.Error(),
			})
		}
	}
	return nil
}

func (s *Scout) processSignature(ctx context.Context, sig solana.Signature) error {
	candidate, ok, err := s.chain.ParseLaunchCandidate(ctx, sig)
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	alreadySeen := s.seenMints[candidate.Mint]
	s.mu.Unlock()
	if alreadySeen {
		return nil
	}

	mintKey, err := solana.PublicKeyFromBase58(candidate.Mint)
	if err != nil {
		return nil
	}
	if _, _, err := s.chain.GetCurveState(ctx, mintKey); err != nil {
		// Not (yet) a bonding-curve mint — not a launch we track.
		return nil
	}

	s.mu.Lock()
	s.seenMints[candidate.Mint] = true
	s.mu.Unlock()

	if err := s.graph.AddEdge(ctx, candidate.Deployer, candidate.Mint, intel.EdgeDeployedFrom); err != nil {
		s.logger.Warn(ctx, "scout failed to record wallet edge", map[string]interface{}{"error": err.Error()})
	}

	profile, err := s.scores.RecordLaunch(ctx, candidate.Deployer, candidate.Mint, nil)
	if err != nil {
		return err
	}

	signal := LaunchSignal{Mint: candidate.Mint, Deployer: candidate.Deployer, Slot: candidate.Slot, Signature: candidate.Signature}
	if err := s.signals.Publish(ctx, ChannelNewLaunch, "launch", signal); err != nil {
		s.logger.Warn(ctx, "scout failed to publish launch signal", map[string]interface{}{"error": err.Error()})
	}

	if profile.Score >= scoutForwardThreshold {
		s.mailbox.Send(ctx, agent.RoleScout, agent.RoleAnalyst, ChannelNewLaunch, NewLaunchPayload{
			Signal:          signal,
			DeployerProfile: profile,
		})
	}

	return nil
}
