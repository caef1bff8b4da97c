// Package agents implements the six cooperative roles of the swarm
// (§4.7): scout, analyst, strategist, sentinel, executor-agent, and
// memory, wired together over the agent mailbox's six channels.
package agents

import (
	"time"

	"github.com/curvesentinel/node/internal/intel"
)

// LaunchSignal is the Scout's own record of a detected launch.
type LaunchSignal struct {
	Mint      string `json:"mint"`
	Deployer  string `json:"deployer"`
	Slot      uint64 `json:"slot"`
	Signature string `json:"signature"`
}

// NewLaunchPayload is the `new-launch` channel payload.
type NewLaunchPayload struct {
	Signal          LaunchSignal          `json:"signal"`
	DeployerProfile intel.DeployerProfile `json:"deployerProfile"`
}

// RiskProfile is the analyst/strategist reasoning service's qualitative
// risk bucket.
type RiskProfile string

const (
	RiskLow     RiskProfile = "low"
	RiskMedium  RiskProfile = "medium"
	RiskHigh    RiskProfile = "high"
	RiskExtreme RiskProfile = "extreme"
)

// TokenAnalysis is the `token-analysis` channel payload.
type TokenAnalysis struct {
	Mint                        string      `json:"mint"`
	Deployer                    string      `json:"deployer"`
	ConvictionScore             float64     `json:"convictionScore"`
	RiskProfile                 RiskProfile `json:"riskProfile"`
	RecommendedPositionSizeBase uint64      `json:"recommendedPositionSizeBase"`
	Reasoning                   string      `json:"reasoning"`
}

// ExecutionPlanUrgency mirrors the threat-exit urgency scale so both
// channels can be compared by the executor-agent's priority queue.
type ExecutionPlanUrgency string

const (
	UrgencyLow      ExecutionPlanUrgency = "low"
	UrgencyMedium   ExecutionPlanUrgency = "medium"
	UrgencyHigh     ExecutionPlanUrgency = "high"
	UrgencyCritical ExecutionPlanUrgency = "critical"
)

// ExecutionPlan is the `execution-plan` channel payload: a strategist
// decision to enter a position.
type ExecutionPlan struct {
	ID              string               `json:"id"`
	Action          string               `json:"action"` // "enter"
	Mint            string               `json:"mint"`
	BaseAmount      uint64               `json:"baseAmount"`
	MaxSlippageBps  int                  `json:"maxSlippageBps"`
	PriorityFeeBase uint64               `json:"priorityFeeBase"`
	Urgency         ExecutionPlanUrgency `json:"urgency"`
	Reasoning       string               `json:"reasoning"`
}

// ThreatExit is the `threat-exit` channel payload.
type ThreatExit struct {
	PositionID     string               `json:"positionId"`
	Mint           string               `json:"mint"`
	Urgency        ExecutionPlanUrgency `json:"urgency"`
	Action         string               `json:"action"` // full_exit | partial_exit
	SellPercentage float64              `json:"sellPercentage"`
	Reasoning      string               `json:"reasoning"`
}

// ExecutionResultMsg is the `execution-result` channel payload.
type ExecutionResultMsg struct {
	PositionID  string    `json:"positionId"`
	Mint        string    `json:"mint"`
	Kind        string    `json:"kind"` // enter | full_exit | partial_exit
	Success     bool      `json:"success"`
	TxSignature string    `json:"txSignature,omitempty"`
	AmountIn    float64   `json:"amountIn,omitempty"`
	AmountOut   float64   `json:"amountOut,omitempty"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Outcome is the `outcome` channel payload, fed back to the strategist.
type Outcome struct {
	Mint        string  `json:"mint"`
	PnlPercent  float64 `json:"pnlPercent"`
	WasCorrect  bool    `json:"wasCorrect"`
}

const (
	ChannelNewLaunch      = "new-launch"
	ChannelTokenAnalysis  = "token-analysis"
	ChannelExecutionPlan  = "execution-plan"
	ChannelThreatExit     = "threat-exit"
	ChannelExecutionResult = "execution-result"
	ChannelOutcome        = "outcome"
)
