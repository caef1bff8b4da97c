// Package events defines the closed InternalEvent tagged variant (§3) that
// flows from chain ingestion through the event bus to every consumer:
// the state engine, the policy engine, the orchestrator, and the
// sentinel agent.
package events

import "github.com/shopspring/decimal"

// Kind discriminates an InternalEvent's variant. The taxonomy is closed;
// consumers switch on Kind rather than using open polymorphism.
type Kind string

const (
	KindWalletTransaction  Kind = "WalletTransaction"
	KindTokenTransfer      Kind = "TokenTransfer"
	KindTokenBalanceChange Kind = "TokenBalanceChange"
	KindLpAdd              Kind = "LpAdd"
	KindLpRemove           Kind = "LpRemove"
	KindDevWalletSell      Kind = "DevWalletSell"
	KindDevWalletTransfer  Kind = "DevWalletTransfer"
	KindSupplyChange       Kind = "SupplyChange"
	KindPositionOpened     Kind = "PositionOpened"
	KindPositionClosed     Kind = "PositionClosed"
)

// Event is every InternalEvent variant. Numeric quantities denominated in
// token/base-unit integers are carried as decimal strings to preserve
// 64-bit precision across boundaries; counts and percentages are floats.
type Event struct {
	ID        string
	Slot      uint64
	Timestamp int64 // milliseconds since epoch
	Signature string
	Kind      Kind

	// MintAddress is present on every variant that concerns a specific
	// token; the orchestrator relies on this to fan out to open positions.
	MintAddress string

	WalletTransaction  *WalletTransaction  `json:",omitempty"`
	TokenTransfer      *TokenTransfer      `json:",omitempty"`
	TokenBalanceChange *TokenBalanceChange `json:",omitempty"`
	LpAdd              *LpAdd              `json:",omitempty"`
	LpRemove           *LpRemove           `json:",omitempty"`
	DevWalletSell      *DevWalletSell      `json:",omitempty"`
	DevWalletTransfer  *DevWalletTransfer  `json:",omitempty"`
	SupplyChange       *SupplyChange       `json:",omitempty"`
	PositionOpened     *PositionOpened     `json:",omitempty"`
	PositionClosed     *PositionClosed     `json:",omitempty"`
}

type WalletTransaction struct {
	FromWallet string
	ToWallet   string
	AmountBase decimal.Decimal
}

type TokenTransfer struct {
	FromWallet string
	ToWallet   string
	AmountBase decimal.Decimal
}

type TokenBalanceChange struct {
	Wallet        string
	NewBalance    decimal.Decimal
	DeltaBase     decimal.Decimal
}

type LpAdd struct {
	PoolAddress     string
	LiquidityAmount decimal.Decimal
}

type LpRemove struct {
	PoolAddress     string
	LiquidityAmount decimal.Decimal
}

type DevWalletSell struct {
	DevWallet            string
	PercentageOfHoldings float64
}

type DevWalletTransfer struct {
	DevWallet  string
	ToWallet   string
	AmountBase decimal.Decimal
}

type SupplyChange struct {
	ChangePercentage float64
	NewSupply        decimal.Decimal
}

type PositionOpened struct {
	PositionID string
}

type PositionClosed struct {
	PositionID string
}
