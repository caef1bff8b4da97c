// Package store defines the relational and key-value capability
// interfaces the core treats as external collaborators (§1 Out of scope,
// §6 relational tables), plus their concrete implementations.
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	PositionOpen    PositionStatus = "Open"
	PositionClosing PositionStatus = "Closing"
	PositionClosed  PositionStatus = "Closed"
	PositionFailed  PositionStatus = "Failed"
)

// Position is the PositionState entity (§3).
type Position struct {
	ID              uuid.UUID
	WalletID        uuid.UUID
	TrackedTokenID  uuid.UUID
	MintAddress     string
	EntryAmountBase decimal.Decimal
	TokenBalance    uint64
	EntryPrice      *float64
	Status          PositionStatus
	OpenedAt        time.Time
	ClosedAt        *time.Time
}

type TriggerType string

const (
	TriggerDevSellPercentage TriggerType = "DevSellPercentage"
	TriggerDevSellCount      TriggerType = "DevSellCount"
	TriggerLpRemovalPct      TriggerType = "LpRemovalPercentage"
	TriggerLpRemovalTotal    TriggerType = "LpRemovalTotal"
	TriggerSupplyIncrease    TriggerType = "SupplyIncrease"
	TriggerPriceDropPct      TriggerType = "PriceDropPercentage"
	TriggerWalletOutflow     TriggerType = "WalletOutflow"
)

type PolicyAction string

const (
	ActionExitPosition PolicyAction = "ExitPosition"
	ActionPartialSell  PolicyAction = "PartialSell"
	ActionHaltStrategy PolicyAction = "HaltStrategy"
	ActionAlertOnly    PolicyAction = "AlertOnly"
)

// ActionParams carries the optional per-policy action parameters (§3).
type ActionParams struct {
	SellPercentage  *float64
	MaxSlippageBps  *int
	PriorityFeeBase *uint64
}

// Policy is the PolicyDefinition entity (§3).
type Policy struct {
	ID             uuid.UUID
	Name           string
	Trigger        TriggerType
	Threshold      float64
	WindowBlocks   *int64
	WindowSeconds  *int64
	Action         PolicyAction
	ActionParams   ActionParams
	Priority       int
	IsActive       bool
	TrackedTokenID *uuid.UUID
}

type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "Pending"
	ExecutionSimulating ExecutionStatus = "Simulating"
	ExecutionSubmitted  ExecutionStatus = "Submitted"
	ExecutionConfirmed  ExecutionStatus = "Confirmed"
	ExecutionFailed     ExecutionStatus = "Failed"
)

type ExecutionAction string

const (
	ExecutionActionFullExit    ExecutionAction = "FullExit"
	ExecutionActionPartialSell ExecutionAction = "PartialSell"
	ExecutionActionHalt        ExecutionAction = "Halt"
)

// ExecutionRequest is the ExecutionRequest entity (§3), built by the
// Policy Engine/Orchestrator and consumed by the Risk and Execution
// Engines.
type ExecutionRequest struct {
	PositionID      uuid.UUID
	PolicyID        *uuid.UUID
	Action          ExecutionAction
	SellPercentage  float64
	MaxSlippageBps  int
	PriorityFeeBase uint64
}

// ExecutionRow is the persisted ExecutionResult entity (§3), joined to
// the request that produced it.
type ExecutionRow struct {
	ID               uuid.UUID
	PositionID       uuid.UUID
	PolicyID         *uuid.UUID
	Status           ExecutionStatus
	TxSignature      *string
	AmountIn         *decimal.Decimal
	AmountOut        *decimal.Decimal
	ErrorMessage     *string
	SimulationResult *string
	CompletedAt      *time.Time
	CreatedAt        time.Time
}

// Wallet is the wallet table row referenced by §3/§6.
type Wallet struct {
	ID         uuid.UUID
	Address    string
	Label      string
	IsWatched  bool
	CreatedAt  time.Time
}

// TrackedToken is the trackedToken table row referenced by §3/§6.
type TrackedToken struct {
	ID              uuid.UUID
	MintAddress     string
	PoolAddress     string
	Symbol          string
	Name            string
	Deployer        string
	FirstSeenAt     time.Time
	CurveCompletedAt *time.Time
}

// EventLogRow is one append-only record of an ingested InternalEvent.
type EventLogRow struct {
	ID          uuid.UUID
	Kind        string
	MintAddress string
	Slot        uint64
	Signature   string
	Payload     string // JSON-encoded InternalEvent
	OccurredAt  time.Time
}
