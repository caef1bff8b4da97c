package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/curvesentinel/node/internal/chain"
	"github.com/curvesentinel/node/internal/curve"
	"github.com/curvesentinel/node/internal/store"
)

// envelope mirrors the teacher's standard API response shape.
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: status < 400, Data: data, Timestamp: time.Now()})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: message, Timestamp: time.Now()})
}

// writeValidationError is the Validation error category (malformed
// payload, 400 plus a structured details map).
func writeValidationError(w http.ResponseWriter, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: "validation failed", Details: details, Timestamp: time.Now()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeValidationError(w, map[string]string{"body": err.Error()})
		return false
	}
	return true
}

// --- health ---------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	healthy := true

	if err := s.store.Health(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if err := s.kv.Health(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	if err := s.chain.Health(ctx); err != nil {
		checks["rpc"] = err.Error()
		healthy = false
	} else {
		checks["rpc"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{"status": healthy, "checks": checks})
}

// --- policies ---------------------------------------------------------

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.policy.ActivePolicies())
}

type createPolicyRequest struct {
	Name           string              `json:"name"`
	Trigger        store.TriggerType   `json:"trigger"`
	Threshold      float64             `json:"threshold"`
	WindowBlocks   *int64              `json:"windowBlocks"`
	WindowSeconds  *int64              `json:"windowSeconds"`
	Action         store.PolicyAction  `json:"action"`
	ActionParams   store.ActionParams  `json:"actionParams"`
	Priority       int                 `json:"priority"`
	TrackedTokenID *uuid.UUID          `json:"trackedTokenId"`
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if !decodeBody(w, r, s.cfg.MaxBodyBytes, &req) {
		return
	}

	details := map[string]string{}
	if req.Threshold <= 0 {
		details["threshold"] = "must be > 0"
	}
	if req.Action == store.ActionPartialSell {
		if req.ActionParams.SellPercentage == nil || *req.ActionParams.SellPercentage <= 0 || *req.ActionParams.SellPercentage > 100 {
			details["actionParams.sellPercentage"] = "required in (0,100] for PartialSell"
		}
	}
	if req.Name == "" {
		details["name"] = "required"
	}
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	pol := &store.Policy{
		ID:             uuid.New(),
		Name:           req.Name,
		Trigger:        req.Trigger,
		Threshold:      req.Threshold,
		WindowBlocks:   req.WindowBlocks,
		WindowSeconds:  req.WindowSeconds,
		Action:         req.Action,
		ActionParams:   req.ActionParams,
		Priority:       req.Priority,
		IsActive:       true,
		TrackedTokenID: req.TrackedTokenID,
	}

	if err := s.store.InsertPolicy(r.Context(), pol); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to persist policy: %v", err))
		return
	}
	s.policy.AddPolicy(pol)
	writeJSON(w, http.StatusCreated, pol)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeValidationError(w, map[string]string{"id": "must be a uuid"})
		return
	}
	if err := s.store.DeletePolicy(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to delete policy: %v", err))
		return
	}
	s.policy.RemovePolicy(id)
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

// --- wallets ---------------------------------------------------------

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.store.ListWallets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list wallets: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, wallets)
}

func (s *Server) handleWalletTokens(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuid.Parse(mux.Vars(r)["walletId"])
	if err != nil {
		writeValidationError(w, map[string]string{"walletId": "must be a uuid"})
		return
	}
	tokens, err := s.store.GetWalletTokens(r.Context(), walletID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list wallet tokens: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// --- positions ---------------------------------------------------------

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListPositions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list positions: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeValidationError(w, map[string]string{"id": "must be a uuid"})
		return
	}
	position, err := s.store.GetPosition(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("position not found: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, position)
}

type openPositionRequest struct {
	Mint            string `json:"mint"`
	BaseAmount      uint64 `json:"baseAmount"`
	MaxSlippageBps  int    `json:"maxSlippageBps"`
	PriorityFeeBase uint64 `json:"priorityFeeBase"`
}

// handleOpenPosition opens a position via a buy (§6 HTTP surface POST
// /positions), the same buy path the executor-agent runs for an
// analyst/strategist-originated entry, driven here directly by an
// operator instead of the swarm.
func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if !decodeBody(w, r, s.cfg.MaxBodyBytes, &req) {
		return
	}

	details := map[string]string{}
	if req.BaseAmount == 0 {
		details["baseAmount"] = "must be > 0"
	}
	if req.BaseAmount > s.risk.MaxPositionSizeBase {
		details["baseAmount"] = fmt.Sprintf("exceeds max position size of %d", s.risk.MaxPositionSizeBase)
	}
	if req.MaxSlippageBps <= 0 {
		req.MaxSlippageBps = s.risk.MaxSlippageBps
	}
	mint, err := solana.PublicKeyFromBase58(req.Mint)
	if err != nil {
		details["mint"] = "must be a base58 public key"
	}
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	ctx := r.Context()
	position, sig, err := s.buy(ctx, mint, req.BaseAmount, req.MaxSlippageBps, req.PriorityFeeBase)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to open position: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"position": position, "signature": sig.String()})
}

// buy runs the curve-buy flow: quote, slippage floor, account
// derivation, instruction build, sign, simulate, send. Mirrors the
// executor-agent's enter path (§4.7) so a manually-opened position and
// a swarm-opened one go through identical on-chain mechanics.
func (s *Server) buy(ctx context.Context, mint solana.PublicKey, baseAmount uint64, maxSlippageBps int, priorityFeeBase uint64) (*store.Position, solana.Signature, error) {
	curveState, bondingCurve, err := s.chain.GetCurveState(ctx, mint)
	if err != nil {
		return nil, solana.Signature{}, err
	}
	if curveState.Complete {
		return nil, solana.Signature{}, fmt.Errorf("bonding curve for %s is already complete", mint)
	}

	quote := curve.Quote(curveState, baseAmount)
	minTokenOutput := curve.ApplySlippage(quote.AmountOut, maxSlippageBps, curve.SideSell)

	accounts, err := s.chain.DeriveAccounts(mint)
	if err != nil {
		return nil, solana.Signature{}, err
	}
	buyerTokenAccount, _, err := solana.FindAssociatedTokenAddress(s.wallet.PublicKey(), mint)
	if err != nil {
		return nil, solana.Signature{}, err
	}
	exists, err := s.chain.AccountExists(ctx, buyerTokenAccount)
	if err != nil {
		return nil, solana.Signature{}, err
	}

	instructions := s.chain.BuildBuyInstructions(
		mint, s.wallet.PublicKey(), buyerTokenAccount, !exists, bondingCurve, accounts,
		baseAmount, minTokenOutput, priorityFeeBase,
	)

	blockhash, _, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, solana.Signature{}, err
	}
	tx, err := chain.BuildTransaction(instructions, blockhash, s.wallet.PublicKey())
	if err != nil {
		return nil, solana.Signature{}, err
	}
	if err := s.wallet.Sign(tx); err != nil {
		return nil, solana.Signature{}, err
	}

	simResp, err := s.chain.Simulate(ctx, tx)
	if err != nil {
		return nil, solana.Signature{}, err
	}
	if simResp.Value.Err != nil {
		return nil, solana.Signature{}, fmt.Errorf("buy simulation failed: %v logs=%v", simResp.Value.Err, simResp.Value.Logs)
	}

	sig, err := s.chain.SendRawSkipPreflight(ctx, tx)
	if err != nil {
		return nil, solana.Signature{}, err
	}

	wallets, err := s.store.ListWallets(ctx)
	if err != nil {
		return nil, solana.Signature{}, err
	}
	if len(wallets) == 0 {
		return nil, solana.Signature{}, fmt.Errorf("no wallet rows configured")
	}

	position := &store.Position{
		ID:              uuid.New(),
		WalletID:        wallets[0].ID,
		MintAddress:     mint.String(),
		EntryAmountBase: decimal.NewFromInt(int64(baseAmount)),
		TokenBalance:    quote.AmountOut,
		Status:          store.PositionOpen,
		OpenedAt:        time.Now(),
	}
	if err := s.store.InsertPosition(ctx, position); err != nil {
		return nil, solana.Signature{}, err
	}
	s.state.AddPosition(position)

	return position, sig, nil
}

// --- executions ---------------------------------------------------------

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	executions, err := s.store.ListExecutions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list executions: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeValidationError(w, map[string]string{"id": "must be a uuid"})
		return
	}
	execRow, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("execution not found: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, execRow)
}

// --- network metrics ---------------------------------------------------------

// memoryStatsKey mirrors agents.memoryStatsKey; kept as a literal here
// rather than an import to avoid a dependency from api on the agent
// swarm package for a single aggregate read.
const memoryStatsKey = "agents:memory:stats"

type networkMetrics struct {
	OpenPositions      int     `json:"openPositions"`
	TotalExecutions    int     `json:"totalExecutions"`
	ConfirmedExecutions int    `json:"confirmedExecutions"`
	FailedExecutions   int     `json:"failedExecutions"`
	ActivePolicies     int     `json:"activePolicies"`
	TotalOutcomes      int     `json:"totalOutcomes"`
	WinRate            float64 `json:"winRate"`
	AvgPnlPercent      float64 `json:"avgPnlPercent"`
}

// handleNetworkMetrics reports aggregate-only telemetry (§6: no
// strategy data, no addresses).
func (s *Server) handleNetworkMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	executions, err := s.store.ListExecutions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list executions: %v", err))
		return
	}

	metrics := networkMetrics{
		OpenPositions:   len(s.state.GetOpenPositions()),
		TotalExecutions: len(executions),
		ActivePolicies:  len(s.policy.ActivePolicies()),
	}
	for _, e := range executions {
		switch e.Status {
		case store.ExecutionConfirmed:
			metrics.ConfirmedExecutions++
		case store.ExecutionFailed:
			metrics.FailedExecutions++
		}
	}

	if raw, err := s.kv.Get(ctx, memoryStatsKey); err == nil && raw != "" {
		var stats struct {
			TotalOutcomes int     `json:"totalOutcomes"`
			WinRate       float64 `json:"winRate"`
			AvgPnlPercent float64 `json:"avgPnlPercent"`
		}
		if json.Unmarshal([]byte(raw), &stats) == nil {
			metrics.TotalOutcomes = stats.TotalOutcomes
			metrics.WinRate = stats.WinRate
			metrics.AvgPnlPercent = stats.AvgPnlPercent
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
