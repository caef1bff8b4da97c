// Package ingestion is the Event Ingestion component (§2): it subscribes
// to every watched dev wallet's token accounts and LP pool accounts,
// translates each account-data notification into a typed internal event,
// publishes it to the event bus, and persists it to the event log.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curvesentinel/node/internal/chain"
	"github.com/curvesentinel/node/internal/events"
	"github.com/curvesentinel/node/internal/eventbus"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

// splTokenAccountAmountOffset is the byte offset of the `amount` field in
// an SPL token account's binary layout (mint 32 | owner 32 | amount 8 | ...).
const splTokenAccountAmountOffset = 64

// Subscriber is the Event Ingestion subscriber.
type Subscriber struct {
	logger   *observability.Logger
	chain    *chain.Client
	wallets  store.WalletStore
	eventLog store.EventLogStore
	bus      *eventbus.Bus

	mu            sync.Mutex
	lastBalances  map[string]uint64
	stopChan      chan struct{}
	wg            sync.WaitGroup
	running       bool
}

func New(logger *observability.Logger, chainClient *chain.Client, wallets store.WalletStore, eventLog store.EventLogStore, bus *eventbus.Bus) *Subscriber {
	return &Subscriber{
		logger:       logger,
		chain:        chainClient,
		wallets:      wallets,
		eventLog:     eventLog,
		bus:          bus,
		lastBalances: make(map[string]uint64),
		stopChan:     make(chan struct{}),
	}
}

// Start lists every watched wallet's tracked tokens and opens one
// account subscription per dev-wallet token account and per pool.
// Subscriptions that fail to open (e.g. no WS connection) are logged and
// skipped rather than aborting the whole ingestion layer.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("ingestion already running")
	}
	s.running = true
	s.mu.Unlock()

	rows, err := s.wallets.ListWallets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list wallets: %w", err)
	}

	for _, wallet := range rows {
		if !wallet.IsWatched {
			continue
		}
		tokens, err := s.wallets.GetWalletTokens(ctx, wallet.ID)
		if err != nil {
			s.logger.Warn(ctx, "ingestion failed to list wallet tokens", map[string]interface{}{"wallet": wallet.Address, "error": err.Error()})
			continue
		}
		for _, token := range tokens {
			s.watchDevWalletToken(ctx, wallet.Address, token.MintAddress)
			if token.PoolAddress != "" {
				s.watchPool(ctx, token.PoolAddress, token.MintAddress)
			}
		}
	}
	return nil
}

func (s *Subscriber) watchDevWalletToken(ctx context.Context, walletAddress, mintAddress string) {
	wallet, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return
	}
	mint, err := solana.PublicKeyFromBase58(mintAddress)
	if err != nil {
		return
	}
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		s.logger.Warn(ctx, "ingestion failed to derive dev wallet token account", map[string]interface{}{"wallet": walletAddress, "mint": mintAddress, "error": err.Error()})
		return
	}

	sub, err := s.chain.SubscribeAccount(ctx, ata)
	if err != nil {
		s.logger.Warn(ctx, "ingestion failed to subscribe to dev wallet token account", map[string]interface{}{"account": ata.String(), "error": err.Error()})
		return
	}

	s.wg.Add(1)
	go s.watchLoop(ctx, sub, ata.String(), mintAddress, walletAddress, events.KindDevWalletSell)
}

func (s *Subscriber) watchPool(ctx context.Context, poolAddress, mintAddress string) {
	pool, err := solana.PublicKeyFromBase58(poolAddress)
	if err != nil {
		return
	}
	sub, err := s.chain.SubscribeAccount(ctx, pool)
	if err != nil {
		s.logger.Warn(ctx, "ingestion failed to subscribe to pool account", map[string]interface{}{"account": poolAddress, "error": err.Error()})
		return
	}

	s.wg.Add(1)
	go s.watchLoop(ctx, sub, poolAddress, mintAddress, "", events.KindLpRemove)
}

// watchLoop reads one account subscription's notifications, compares the
// decoded token amount against the last observed balance, and emits a
// DevWalletSell or LpRemove event on any decrease (an increase is not a
// threat this component classifies).
func (s *Subscriber) watchLoop(ctx context.Context, sub chain.AccountSubscription, accountKey, mintAddress, devWallet string, kind events.Kind) {
	defer s.wg.Done()
	defer sub.Unsubscribe()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		result, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		if result == nil || result.Value == nil {
			continue
		}

		data := result.Value.Data.GetBinary()
		if len(data) < splTokenAccountAmountOffset+8 {
			continue
		}
		amount := decodeUint64LE(data[splTokenAccountAmountOffset : splTokenAccountAmountOffset+8])

		s.mu.Lock()
		previous, known := s.lastBalances[accountKey]
		s.lastBalances[accountKey] = amount
		s.mu.Unlock()
		if !known || amount >= previous {
			continue
		}

		delta := previous - amount
		var percentage float64
		if previous > 0 {
			percentage = float64(delta) / float64(previous) * 100
		}

		evt := events.Event{
			ID:          uuid.NewString(),
			Slot:        result.Context.Slot,
			Timestamp:   time.Now().UnixMilli(),
			Kind:        kind,
			MintAddress: mintAddress,
		}
		switch kind {
		case events.KindDevWalletSell:
			evt.DevWalletSell = &events.DevWalletSell{DevWallet: devWallet, PercentageOfHoldings: percentage}
		case events.KindLpRemove:
			evt.LpRemove = &events.LpRemove{PoolAddress: accountKey, LiquidityAmount: decimal.NewFromInt(int64(delta))}
		}

		s.emit(ctx, evt)
	}
}

func (s *Subscriber) emit(ctx context.Context, evt events.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn(ctx, "ingestion failed to encode event payload", map[string]interface{}{"error": err.Error()})
	}
	row := &store.EventLogRow{
		ID:          uuid.MustParse(evt.ID),
		Slot:        evt.Slot,
		OccurredAt:  time.UnixMilli(evt.Timestamp),
		Kind:        string(evt.Kind),
		MintAddress: evt.MintAddress,
		Payload:     string(payload),
	}
	if err := s.eventLog.AppendEvent(ctx, row); err != nil {
		s.logger.Warn(ctx, "ingestion failed to persist event", map[string]interface{}{"error": err.Error()})
	}
	s.bus.Publish(ctx, evt)
}

func decodeUint64LE(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Stop tears down every open subscription and waits for their loops to exit.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	return nil
}
