// Package state holds the authoritative in-memory snapshot of open
// positions and defensive telemetry (§4.2): positions, per-wallet
// dev-sell windows, and per-pool liquidity-removal tallies.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curvesentinel/node/internal/events"
	"github.com/curvesentinel/node/internal/eventbus"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

const (
	snapshotInterval = 30 * time.Second
	snapshotTTL       = 300 * time.Second
	snapshotKey       = "curvesentinel:state:snapshot"
	maxRecentSells    = 100
)

// Sell is one ring entry of DevWalletMetrics.recentSells.
type Sell struct {
	Timestamp  int64
	Percentage float64
	Slot       uint64
}

// DevMetrics is the DevWalletMetrics entity (§3), keyed by (mint, devWallet).
type DevMetrics struct {
	TotalSellCount      int64
	TotalSellPercentage float64
	RecentSells         []Sell
	LastUpdated         time.Time
}

// Removal is one entry in LPState's ordered removal list.
type Removal struct {
	Timestamp       int64
	LiquidityAmount float64
}

// LPState is the LPState entity (§3), keyed by poolAddress.
type LPState struct {
	MintAddress            string
	TotalLiquidity          uint64
	Removals                []Removal
	TotalRemovedPercentage  float64
}

type devKey struct {
	mint   string
	wallet string
}

// Engine is the State Engine (§4.2).
type Engine struct {
	logger *observability.Logger
	store  store.PositionStore
	kv     *store.KV
	bus    *eventbus.Bus

	mu         sync.RWMutex
	positions  map[uuid.UUID]*store.Position
	devMetrics map[devKey]*DevMetrics
	lpStates   map[string]*LPState

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func New(logger *observability.Logger, positionStore store.PositionStore, kv *store.KV, bus *eventbus.Bus) *Engine {
	return &Engine{
		logger:     logger,
		store:      positionStore,
		kv:         kv,
		bus:        bus,
		positions:  make(map[uuid.UUID]*store.Position),
		devMetrics: make(map[devKey]*DevMetrics),
		lpStates:   make(map[string]*LPState),
		stopChan:   make(chan struct{}),
	}
}

// Start loads open positions, subscribes to DevWalletSell and LpRemove,
// and schedules a snapshot every 30s. The subscription must be
// registered before the Policy Engine's to preserve the ordering
// guarantee that dev-metrics updates are visible to policy evaluation
// of the same event (§5).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("state engine already running")
	}
	e.running = true
	e.mu.Unlock()

	open, err := e.store.LoadOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}

	e.mu.Lock()
	for _, p := range open {
		e.positions[p.ID] = p
	}
	e.mu.Unlock()

	e.logger.Info(ctx, "state engine loaded open positions", map[string]interface{}{"count": len(open)})

	e.bus.Subscribe("state-engine", e.handleEvent)

	e.wg.Add(1)
	go e.snapshotLoop(ctx)

	return nil
}

func (e *Engine) handleEvent(ctx context.Context, evt events.Event) {
	switch evt.Kind {
	case events.KindDevWalletSell:
		e.onDevWalletSell(evt)
	case events.KindLpRemove:
		e.onLpRemove(evt)
	}
}

func (e *Engine) onDevWalletSell(evt events.Event) {
	if evt.DevWalletSell == nil {
		return
	}
	key := devKey{mint: evt.MintAddress, wallet: evt.DevWalletSell.DevWallet}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.devMetrics[key]
	if !ok {
		m = &DevMetrics{}
		e.devMetrics[key] = m
	}

	m.RecentSells = append(m.RecentSells, Sell{
		Timestamp:  evt.Timestamp,
		Percentage: evt.DevWalletSell.PercentageOfHoldings,
		Slot:       evt.Slot,
	})
	if len(m.RecentSells) > maxRecentSells {
		m.RecentSells = m.RecentSells[len(m.RecentSells)-maxRecentSells:]
	}
	m.TotalSellCount++
	m.TotalSellPercentage += evt.DevWalletSell.PercentageOfHoldings
	m.LastUpdated = time.Now()
}

func (e *Engine) onLpRemove(evt events.Event) {
	if evt.LpRemove == nil {
		return
	}
	pool := evt.LpRemove.PoolAddress

	e.mu.Lock()
	defer e.mu.Unlock()

	lp, ok := e.lpStates[pool]
	if !ok {
		lp = &LPState{MintAddress: evt.MintAddress}
		e.lpStates[pool] = lp
	}

	amount, _ := evt.LpRemove.LiquidityAmount.Float64()
	lp.Removals = append(lp.Removals, Removal{Timestamp: evt.Timestamp, LiquidityAmount: amount})
	lp.TotalRemovedPercentage += amount
}

func (e *Engine) GetPosition(id uuid.UUID) (*store.Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.positions[id]
	return p, ok
}

func (e *Engine) GetOpenPositions() []*store.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*store.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.Status == store.PositionOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (e *Engine) GetPositionsByMint(mint string) []*store.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*store.Position
	for _, p := range e.positions {
		if p.MintAddress == mint {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) GetDevMetrics(mint, wallet string) (DevMetrics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.devMetrics[devKey{mint: mint, wallet: wallet}]
	if !ok {
		return DevMetrics{}, false
	}
	return *m, true
}

// GetDevSellPercentageInWindow sums recentSells.percentage for entries
// with timestamp >= now - windowMs (§4.2).
func (e *Engine) GetDevSellPercentageInWindow(mint, wallet string, windowMs int64) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.devMetrics[devKey{mint: mint, wallet: wallet}]
	if !ok {
		return 0
	}
	cutoff := time.Now().UnixMilli() - windowMs
	var sum float64
	for _, s := range m.RecentSells {
		if s.Timestamp >= cutoff {
			sum += s.Percentage
		}
	}
	return sum
}

func (e *Engine) GetLPState(pool string) (LPState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lp, ok := e.lpStates[pool]
	if !ok {
		return LPState{}, false
	}
	return *lp, true
}

// AddPosition registers a newly opened position in-memory. Persistence
// to the relational store is the caller's responsibility.
func (e *Engine) AddPosition(p *store.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[p.ID] = p
}

// UpdatePosition applies partial field mutations. A Closed position's
// status can never move backwards to Open.
func (e *Engine) UpdatePosition(id uuid.UUID, mutate func(p *store.Position)) (*store.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s not found", id)
	}

	prevStatus := p.Status
	updated := *p
	mutate(&updated)

	if prevStatus == store.PositionClosed && updated.Status != store.PositionClosed {
		return nil, fmt.Errorf("position %s is closed and cannot transition to %s", id, updated.Status)
	}

	e.positions[id] = &updated
	return &updated, nil
}

func (e *Engine) snapshotLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.snapshot(ctx); err != nil {
				e.logger.Error(ctx, "state engine snapshot failed", err)
			}
		case <-e.stopChan:
			return
		}
	}
}

type snapshotPosition struct {
	ID              string `json:"id"`
	MintAddress     string `json:"mintAddress"`
	EntryAmountBase string `json:"entryAmountBase"`
	TokenBalance    string `json:"tokenBalance"`
	Status          string `json:"status"`
}

type snapshotDoc struct {
	Positions  []snapshotPosition    `json:"positions"`
	DevMetrics map[string]DevMetrics `json:"devMetrics"`
	TakenAt    int64                 `json:"takenAt"`
}

func (e *Engine) snapshot(ctx context.Context) error {
	e.mu.RLock()
	doc := snapshotDoc{
		Positions:  make([]snapshotPosition, 0, len(e.positions)),
		DevMetrics: make(map[string]DevMetrics, len(e.devMetrics)),
	}
	for _, p := range e.positions {
		doc.Positions = append(doc.Positions, snapshotPosition{
			ID:              p.ID.String(),
			MintAddress:     p.MintAddress,
			EntryAmountBase: p.EntryAmountBase.String(),
			TokenBalance:    fmt.Sprintf("%d", p.TokenBalance),
			Status:          string(p.Status),
		})
	}
	for k, m := range e.devMetrics {
		doc.DevMetrics[k.mint+":"+k.wallet] = *m
	}
	e.mu.RUnlock()

	doc.TakenAt = time.Now().Unix()

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return e.kv.Set(ctx, snapshotKey, string(payload), snapshotTTL)
}

// Stop cancels the snapshot timer and flushes one final snapshot.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("state engine not running")
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopChan)
	e.wg.Wait()

	return e.snapshot(ctx)
}
