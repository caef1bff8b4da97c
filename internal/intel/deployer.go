// Package intel holds the three cross-token intelligence stores the
// agent swarm shares (§4.8): deployer reputation scoring, a wallet
// relationship graph, and a pattern-match database. All three persist
// through the same KV store the state engine snapshots into.
package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/curvesentinel/node/internal/store"
)

const (
	deployerProfileTTL = 24 * time.Hour
	deployerScoreIndex = "intel:deployer:scores"
)

// DeployerProfile is the DeployerProfile entity (§3).
type DeployerProfile struct {
	Deployer         string          `json:"deployer"`
	TotalLaunches    int             `json:"totalLaunches"`
	RugCount         int             `json:"rugCount"`
	RugRate          float64         `json:"rugRate"`
	AvgLifespanHours float64         `json:"avgLifespanHours"`
	ConnectedWallets map[string]bool `json:"connectedWallets"`
	FirstSeenAt      time.Time       `json:"firstSeenAt"`
	LastSeenAt       time.Time       `json:"lastSeenAt"`
	Score            float64         `json:"score"`
}

// DeployerScoreEngine scores a deployer's trustworthiness from launch
// and rug history.
type DeployerScoreEngine struct {
	kv *store.KV
}

func NewDeployerScoreEngine(kv *store.KV) *DeployerScoreEngine {
	return &DeployerScoreEngine{kv: kv}
}

func deployerKey(deployer string) string {
	return fmt.Sprintf("intel:deployer:%s", deployer)
}

// computeScore is pure (§4.8): 50 baseline, penalized by rug rate and
// dormancy, rewarded by launch count and track-record lifespan,
// penalized by connected-wallet cluster size. Clamped to [0,100].
func computeScore(p DeployerProfile, now time.Time) float64 {
	lifespanHours := now.Sub(p.FirstSeenAt).Hours()
	if lifespanHours < 0 {
		lifespanHours = 0
	}
	daysSinceLastSeen := now.Sub(p.LastSeenAt).Hours() / 24

	score := 50.0
	score -= 40 * p.RugRate
	score += math.Min(15, float64(p.TotalLaunches)*1.5)
	score += math.Min(20, lifespanHours*2)
	score -= math.Min(15, float64(len(p.ConnectedWallets))*3)
	score -= math.Min(10, math.Max(0, daysSinceLastSeen-7)*0.5)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return math.Round(score)
}

func (e *DeployerScoreEngine) load(ctx context.Context, deployer string) (DeployerProfile, error) {
	raw, err := e.kv.Get(ctx, deployerKey(deployer))
	if err != nil {
		return DeployerProfile{}, err
	}
	if raw == "" {
		return DeployerProfile{Deployer: deployer, ConnectedWallets: map[string]bool{}}, nil
	}
	var p DeployerProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return DeployerProfile{}, fmt.Errorf("failed to decode deployer profile: %w", err)
	}
	if p.ConnectedWallets == nil {
		p.ConnectedWallets = map[string]bool{}
	}
	return p, nil
}

func (e *DeployerScoreEngine) persist(ctx context.Context, p DeployerProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode deployer profile: %w", err)
	}
	if err := e.kv.Set(ctx, deployerKey(p.Deployer), string(raw), deployerProfileTTL); err != nil {
		return err
	}
	return e.kv.ZAdd(ctx, deployerScoreIndex, p.Score, p.Deployer)
}

// RecordLaunch upserts a deployer profile for a new launch, merges the
// connected-wallet set, recomputes the score, and persists under a 24h
// expiry.
func (e *DeployerScoreEngine) RecordLaunch(ctx context.Context, deployer, mint string, connectedWallets []string) (DeployerProfile, error) {
	now := time.Now()
	p, err := e.load(ctx, deployer)
	if err != nil {
		return DeployerProfile{}, err
	}

	if p.TotalLaunches == 0 {
		p.FirstSeenAt = now
	}
	p.TotalLaunches++
	p.LastSeenAt = now
	for _, w := range connectedWallets {
		p.ConnectedWallets[w] = true
	}
	p.Score = computeScore(p, now)

	if err := e.persist(ctx, p); err != nil {
		return DeployerProfile{}, err
	}
	return p, nil
}

// RecordRug bumps the rug count, recomputes rugRate, blends lifespan
// via a running mean, and re-persists.
func (e *DeployerScoreEngine) RecordRug(ctx context.Context, deployer string, lifespanMs int64) (DeployerProfile, error) {
	now := time.Now()
	p, err := e.load(ctx, deployer)
	if err != nil {
		return DeployerProfile{}, err
	}

	p.RugCount++
	if p.TotalLaunches > 0 {
		p.RugRate = float64(p.RugCount) / float64(p.TotalLaunches)
	}
	lifespanHours := float64(lifespanMs) / 3_600_000
	p.AvgLifespanHours = (p.AvgLifespanHours*float64(p.RugCount-1) + lifespanHours) / float64(p.RugCount)
	p.Score = computeScore(p, now)

	if err := e.persist(ctx, p); err != nil {
		return DeployerProfile{}, err
	}
	return p, nil
}

// GetProfile returns the current profile without mutating it.
func (e *DeployerScoreEngine) GetProfile(ctx context.Context, deployer string) (DeployerProfile, error) {
	return e.load(ctx, deployer)
}
