// Package agent is the cooperative-task framework the swarm's six roles
// run on (§4.7): a fixed-interval tick loop with protected lifecycle
// hooks, plus a typed mailbox for inter-agent channels.
package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/curvesentinel/node/pkg/observability"
)

// Role identifies one of the six cooperative agents, or the broadcast
// pseudo-role used as a mailbox address.
type Role string

const (
	RoleScout      Role = "scout"
	RoleAnalyst    Role = "analyst"
	RoleStrategist Role = "strategist"
	RoleSentinel   Role = "sentinel"
	RoleExecutor   Role = "executor-agent"
	RoleMemory     Role = "memory"
	RoleBroadcast  Role = "broadcast"
)

// Status is an agent's externally observable lifecycle state.
type Status struct {
	Running    bool
	TickCount  uint64
	LastTickAt time.Time
}

// Hooks are the three protected lifecycle methods a concrete agent
// implements; the Base loop calls them and never stops on a Tick error.
type Hooks interface {
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	Tick(ctx context.Context) error
}

// Agent is what the Swarm manages.
type Agent interface {
	Role() Role
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Pause()
	Resume()
	Status() Status
}

// Base implements Agent's lifecycle around a caller-supplied Hooks,
// scheduling Tick on a repeating timer. Concrete agents embed Base and
// satisfy Hooks themselves.
type Base struct {
	role         Role
	tickInterval time.Duration
	hooks        Hooks
	logger       *observability.Logger

	mu         sync.RWMutex
	running    bool
	tickCount  uint64
	lastTickAt time.Time

	paused int32

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewBase(role Role, tickInterval time.Duration, hooks Hooks, logger *observability.Logger) *Base {
	return &Base{
		role:         role,
		tickInterval: tickInterval,
		hooks:        hooks,
		logger:       logger,
	}
}

func (b *Base) Role() Role { return b.role }

// Start arms the tick timer and runs onStart before the first tick can
// fire.
func (b *Base) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("agent %s already running", b.role)
	}
	b.running = true
	b.stopChan = make(chan struct{})
	b.mu.Unlock()

	if err := b.hooks.OnStart(ctx); err != nil {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		return fmt.Errorf("agent %s onStart failed: %w", b.role, err)
	}

	b.wg.Add(1)
	go b.loop(ctx)
	return nil
}

func (b *Base) loop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case <-ticker.C:
			if atomic.LoadInt32(&b.paused) == 1 {
				continue
			}
			b.runTick(ctx)
		}
	}
}

// runTick catches a panicking or erroring Tick so one bad cycle never
// stops the loop.
func (b *Base) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "agent tick panicked", fmt.Errorf("%v", r), map[string]interface{}{"role": string(b.role)})
		}
	}()

	if err := b.hooks.Tick(ctx); err != nil {
		b.logger.Warn(ctx, "agent tick failed", map[string]interface{}{"role": string(b.role), "error": err.Error()})
	}

	b.mu.Lock()
	b.tickCount++
	b.lastTickAt = time.Now()
	b.mu.Unlock()
}

// Stop cancels the timer, waits for the in-flight tick to finish, and
// runs onStop.
func (b *Base) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("agent %s not running", b.role)
	}
	b.running = false
	close(b.stopChan)
	b.mu.Unlock()

	b.wg.Wait()

	return b.hooks.OnStop(ctx)
}

func (b *Base) Pause()  { atomic.StoreInt32(&b.paused, 1) }
func (b *Base) Resume() { atomic.StoreInt32(&b.paused, 0) }

func (b *Base) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Status{Running: b.running, TickCount: b.tickCount, LastTickAt: b.lastTickAt}
}

// Swarm owns every agent by role and fans lifecycle calls out to all of
// them concurrently; one agent's failure is logged, never aborts the
// others.
type Swarm struct {
	logger *observability.Logger

	mu     sync.RWMutex
	agents map[Role]Agent
}

func NewSwarm(logger *observability.Logger) *Swarm {
	return &Swarm{logger: logger, agents: make(map[Role]Agent)}
}

func (s *Swarm) Register(a Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.Role()] = a
}

func (s *Swarm) snapshot() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out
}

// Start fans Start out across every registered agent concurrently.
func (s *Swarm) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, a := range s.snapshot() {
		wg.Add(1)
		go func(a Agent) {
			defer wg.Done()
			if err := a.Start(ctx); err != nil {
				s.logger.Error(ctx, "agent failed to start", err, map[string]interface{}{"role": string(a.Role())})
			}
		}(a)
	}
	wg.Wait()
}

// Stop fans Stop out across every registered agent concurrently.
func (s *Swarm) Stop(ctx context.Context) {
	var wg sync.WaitGroup
	for _, a := range s.snapshot() {
		wg.Add(1)
		go func(a Agent) {
			defer wg.Done()
			if err := a.Stop(ctx); err != nil {
				s.logger.Error(ctx, "agent failed to stop", err, map[string]interface{}{"role": string(a.Role())})
			}
		}(a)
	}
	wg.Wait()
}

func (s *Swarm) agent(role Role) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[role]
	if !ok {
		return nil, fmt.Errorf("no agent registered for role %s", role)
	}
	return a, nil
}

func (s *Swarm) PauseAgent(role Role) error {
	a, err := s.agent(role)
	if err != nil {
		return err
	}
	a.Pause()
	return nil
}

func (s *Swarm) ResumeAgent(role Role) error {
	a, err := s.agent(role)
	if err != nil {
		return err
	}
	a.Resume()
	return nil
}

func (s *Swarm) Status(role Role) (Status, error) {
	a, err := s.agent(role)
	if err != nil {
		return Status{}, err
	}
	return a.Status(), nil
}
