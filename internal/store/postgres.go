package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/pkg/observability"
)

// Postgres is the relational store implementation, issuing raw SQL
// against the wallet, trackedToken, position, policy, execution, and
// eventLog tables (§6).
type Postgres struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewPostgres(cfg config.DatabaseConfig, logger *observability.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db, logger: logger}, nil
}

func (p *Postgres) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) LoadOpenPositions(ctx context.Context) ([]*Position, error) {
	query := `
		SELECT id, wallet_id, tracked_token_id, mint_address, entry_amount_base,
		       token_balance, entry_price, status, opened_at, closed_at
		FROM position
		WHERE status = $1
	`

	rows, err := p.db.QueryContext(ctx, query, string(PositionOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to load open positions: %w", err)
	}
	defer rows.Close()

	var positions []*Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			p.logger.Error(ctx, "failed to scan position row", err)
			continue
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (p *Postgres) ListPositions(ctx context.Context) ([]*Position, error) {
	query := `
		SELECT id, wallet_id, tracked_token_id, mint_address, entry_amount_base,
		       token_balance, entry_price, status, opened_at, closed_at
		FROM position
		ORDER BY opened_at DESC
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []*Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			p.logger.Error(ctx, "failed to scan position row", err)
			continue
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (p *Postgres) GetPosition(ctx context.Context, id uuid.UUID) (*Position, error) {
	query := `
		SELECT id, wallet_id, tracked_token_id, mint_address, entry_amount_base,
		       token_balance, entry_price, status, opened_at, closed_at
		FROM position
		WHERE id = $1
	`
	row := p.db.QueryRowContext(ctx, query, id)
	return scanPositionRow(row)
}

func (p *Postgres) InsertPosition(ctx context.Context, pos *Position) error {
	query := `
		INSERT INTO position (id, wallet_id, tracked_token_id, mint_address, entry_amount_base,
		                       token_balance, entry_price, status, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.db.ExecContext(ctx, query,
		pos.ID, pos.WalletID, pos.TrackedTokenID, pos.MintAddress,
		pos.EntryAmountBase.String(), pos.TokenBalance, pos.EntryPrice,
		string(pos.Status), pos.OpenedAt, pos.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

func (p *Postgres) UpdatePosition(ctx context.Context, pos *Position) error {
	query := `
		UPDATE position
		SET token_balance = $1, status = $2, closed_at = $3
		WHERE id = $4
	`
	_, err := p.db.ExecContext(ctx, query, pos.TokenBalance, string(pos.Status), pos.ClosedAt, pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	return nil
}

func (p *Postgres) LoadActivePolicies(ctx context.Context) ([]*Policy, error) {
	query := `
		SELECT id, name, trigger, threshold, window_blocks, window_seconds,
		       action, sell_percentage, max_slippage_bps, priority_fee_base,
		       priority, is_active, tracked_token_id
		FROM policy
		WHERE is_active = true
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load active policies: %w", err)
	}
	defer rows.Close()

	var policies []*Policy
	for rows.Next() {
		var pol Policy
		var windowBlocks, windowSeconds sql.NullInt64
		var sellPct sql.NullFloat64
		var maxSlippage sql.NullInt64
		var priorityFee sql.NullInt64
		var trackedTokenID uuid.NullUUID

		err := rows.Scan(&pol.ID, &pol.Name, &pol.Trigger, &pol.Threshold,
			&windowBlocks, &windowSeconds, &pol.Action, &sellPct, &maxSlippage,
			&priorityFee, &pol.Priority, &pol.IsActive, &trackedTokenID)
		if err != nil {
			p.logger.Error(ctx, "failed to scan policy row", err)
			continue
		}
		if windowBlocks.Valid {
			pol.WindowBlocks = &windowBlocks.Int64
		}
		if windowSeconds.Valid {
			pol.WindowSeconds = &windowSeconds.Int64
		}
		if sellPct.Valid {
			pol.ActionParams.SellPercentage = &sellPct.Float64
		}
		if maxSlippage.Valid {
			v := int(maxSlippage.Int64)
			pol.ActionParams.MaxSlippageBps = &v
		}
		if priorityFee.Valid {
			v := uint64(priorityFee.Int64)
			pol.ActionParams.PriorityFeeBase = &v
		}
		if trackedTokenID.Valid {
			pol.TrackedTokenID = &trackedTokenID.UUID
		}
		policies = append(policies, &pol)
	}
	return policies, rows.Err()
}

func (p *Postgres) InsertPolicy(ctx context.Context, pol *Policy) error {
	query := `
		INSERT INTO policy (id, name, trigger, threshold, window_blocks, window_seconds,
		                     action, sell_percentage, max_slippage_bps, priority_fee_base,
		                     priority, is_active, tracked_token_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := p.db.ExecContext(ctx, query,
		pol.ID, pol.Name, string(pol.Trigger), pol.Threshold, pol.WindowBlocks,
		pol.WindowSeconds, string(pol.Action), pol.ActionParams.SellPercentage,
		pol.ActionParams.MaxSlippageBps, pol.ActionParams.PriorityFeeBase,
		pol.Priority, pol.IsActive, pol.TrackedTokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}
	return nil
}

func (p *Postgres) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM policy WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	return nil
}

func (p *Postgres) InsertExecution(ctx context.Context, e *ExecutionRow) error {
	query := `
		INSERT INTO execution (id, position_id, policy_id, status, tx_signature,
		                        amount_in, amount_out, error_message, simulation_result,
		                        completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	var amountIn, amountOut *string
	if e.AmountIn != nil {
		s := e.AmountIn.String()
		amountIn = &s
	}
	if e.AmountOut != nil {
		s := e.AmountOut.String()
		amountOut = &s
	}
	_, err := p.db.ExecContext(ctx, query,
		e.ID, e.PositionID, e.PolicyID, string(e.Status), e.TxSignature,
		amountIn, amountOut, e.ErrorMessage, e.SimulationResult, e.CompletedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

func (p *Postgres) GetExecution(ctx context.Context, id uuid.UUID) (*ExecutionRow, error) {
	query := `
		SELECT id, position_id, policy_id, status, tx_signature, amount_in, amount_out,
		       error_message, simulation_result, completed_at, created_at
		FROM execution
		WHERE id = $1
	`
	row := p.db.QueryRowContext(ctx, query, id)
	return scanExecutionRow(row)
}

func (p *Postgres) ListExecutions(ctx context.Context) ([]*ExecutionRow, error) {
	query := `
		SELECT id, position_id, policy_id, status, tx_signature, amount_in, amount_out,
		       error_message, simulation_result, completed_at, created_at
		FROM execution
		ORDER BY created_at DESC
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*ExecutionRow
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			p.logger.Error(ctx, "failed to scan execution row", err)
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) ListWallets(ctx context.Context) ([]*Wallet, error) {
	query := `SELECT id, address, label, is_watched, created_at FROM wallet ORDER BY created_at DESC`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*Wallet
	for rows.Next() {
		var w Wallet
		if err := rows.Scan(&w.ID, &w.Address, &w.Label, &w.IsWatched, &w.CreatedAt); err != nil {
			p.logger.Error(ctx, "failed to scan wallet row", err)
			continue
		}
		wallets = append(wallets, &w)
	}
	return wallets, rows.Err()
}

func (p *Postgres) GetWalletTokens(ctx context.Context, walletID uuid.UUID) ([]*TrackedToken, error) {
	query := `
		SELECT tt.id, tt.mint_address, tt.pool_address, tt.symbol, tt.name, tt.deployer,
		       tt.first_seen_at, tt.curve_completed_at
		FROM tracked_token tt
		JOIN position pos ON pos.tracked_token_id = tt.id
		WHERE pos.wallet_id = $1
		GROUP BY tt.id
	`
	rows, err := p.db.QueryContext(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*TrackedToken
	for rows.Next() {
		var tt TrackedToken
		if err := rows.Scan(&tt.ID, &tt.MintAddress, &tt.PoolAddress, &tt.Symbol, &tt.Name,
			&tt.Deployer, &tt.FirstSeenAt, &tt.CurveCompletedAt); err != nil {
			p.logger.Error(ctx, "failed to scan tracked token row", err)
			continue
		}
		tokens = append(tokens, &tt)
	}
	return tokens, rows.Err()
}

func (p *Postgres) AppendEvent(ctx context.Context, row *EventLogRow) error {
	query := `
		INSERT INTO event_log (id, kind, mint_address, slot, signature, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.db.ExecContext(ctx, query, row.ID, row.Kind, row.MintAddress, row.Slot,
		row.Signature, row.Payload, row.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to append event log row: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPosition(rows *sql.Rows) (*Position, error) {
	return scanPositionRow(rows)
}

func scanPositionRow(row scannable) (*Position, error) {
	var pos Position
	var entryAmount string
	var entryPrice sql.NullFloat64
	var status string
	var closedAt sql.NullTime

	err := row.Scan(&pos.ID, &pos.WalletID, &pos.TrackedTokenID, &pos.MintAddress,
		&entryAmount, &pos.TokenBalance, &entryPrice, &status, &pos.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	amt, err := decimal.NewFromString(entryAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid entry_amount_base %q: %w", entryAmount, err)
	}
	pos.EntryAmountBase = amt
	pos.Status = PositionStatus(status)
	if entryPrice.Valid {
		pos.EntryPrice = &entryPrice.Float64
	}
	if closedAt.Valid {
		pos.ClosedAt = &closedAt.Time
	}
	return &pos, nil
}

func scanExecution(rows *sql.Rows) (*ExecutionRow, error) {
	return scanExecutionRow(rows)
}

func scanExecutionRow(row scannable) (*ExecutionRow, error) {
	var e ExecutionRow
	var status string
	var policyID uuid.NullUUID
	var txSig, amountIn, amountOut, errMsg, simResult sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&e.ID, &e.PositionID, &policyID, &status, &txSig, &amountIn, &amountOut,
		&errMsg, &simResult, &completedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	e.Status = ExecutionStatus(status)
	if policyID.Valid {
		e.PolicyID = &policyID.UUID
	}
	if txSig.Valid {
		e.TxSignature = &txSig.String
	}
	if amountIn.Valid {
		d, err := decimal.NewFromString(amountIn.String)
		if err == nil {
			e.AmountIn = &d
		}
	}
	if amountOut.Valid {
		d, err := decimal.NewFromString(amountOut.String)
		if err == nil {
			e.AmountOut = &d
		}
	}
	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}
	if simResult.Valid {
		e.SimulationResult = &simResult.String
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return &e, nil
}
