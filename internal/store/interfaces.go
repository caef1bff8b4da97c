package store

import (
	"context"

	"github.com/google/uuid"
)

// PositionStore persists PositionState rows.
type PositionStore interface {
	LoadOpenPositions(ctx context.Context) ([]*Position, error)
	InsertPosition(ctx context.Context, p *Position) error
	UpdatePosition(ctx context.Context, p *Position) error
	GetPosition(ctx context.Context, id uuid.UUID) (*Position, error)
	ListPositions(ctx context.Context) ([]*Position, error)
}

// PolicyStore persists PolicyDefinition rows.
type PolicyStore interface {
	LoadActivePolicies(ctx context.Context) ([]*Policy, error)
	InsertPolicy(ctx context.Context, p *Policy) error
	DeletePolicy(ctx context.Context, id uuid.UUID) error
}

// ExecutionStore persists ExecutionResult rows.
type ExecutionStore interface {
	InsertExecution(ctx context.Context, e *ExecutionRow) error
	GetExecution(ctx context.Context, id uuid.UUID) (*ExecutionRow, error)
	ListExecutions(ctx context.Context) ([]*ExecutionRow, error)
}

// WalletStore persists wallet rows.
type WalletStore interface {
	ListWallets(ctx context.Context) ([]*Wallet, error)
	GetWalletTokens(ctx context.Context, walletID uuid.UUID) ([]*TrackedToken, error)
}

// EventLogStore persists an append-only ingestion log.
type EventLogStore interface {
	AppendEvent(ctx context.Context, row *EventLogRow) error
}

// Store aggregates every relational capability the core depends on.
type Store interface {
	PositionStore
	PolicyStore
	ExecutionStore
	WalletStore
	EventLogStore
	Health(ctx context.Context) error
	Close() error
}
