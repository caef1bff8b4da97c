// Package chain wraps the Solana RPC/WS clients and the bonding-curve
// AMM's instruction surface (§4.5, §4.1 BondingCurveState). Grounded on
// the teacher's solana Service (RPC+WS client holder, span-per-call
// logging). It covers curve state reads, buy and sell instruction
// building, simulate/send, account subscriptions, and the signature and
// transaction lookups used for launch discovery.
package chain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/curve"
	"github.com/curvesentinel/node/pkg/observability"
)

// Client wraps the Solana RPC/WS connections used by ingestion,
// execution, the agents and the HTTP API.
type Client struct {
	rpc    *rpc.Client
	ws     *ws.Client
	logger *observability.Logger

	launchpadProgram solana.PublicKey
}

func NewClient(ctx context.Context, cfg config.ChainConfig, logger *observability.Logger) (*Client, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.LaunchpadProgram)
	if err != nil {
		return nil, fmt.Errorf("invalid LAUNCHPAD_PROGRAM_ID: %w", err)
	}

	wsClient, err := ws.Connect(ctx, cfg.WSURL)
	if err != nil {
		logger.Warn(ctx, "failed to connect to solana websocket endpoint, continuing without it", map[string]interface{}{
			"endpoint": cfg.WSURL,
			"error":    err.Error(),
		})
		wsClient = nil
	}

	return &Client{
		rpc:              rpc.New(cfg.RPCURL),
		ws:               wsClient,
		logger:           logger,
		launchpadProgram: programID,
	}, nil
}

func (c *Client) LaunchpadProgram() solana.PublicKey {
	return c.launchpadProgram
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return fmt.Errorf("solana rpc health check failed: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if c.ws != nil {
		c.ws.Close()
	}
	return nil
}

// BondingCurveAccounts derives the PDAs the sell instruction needs.
type BondingCurveAccounts struct {
	BondingCurve          solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
	CreatorVault          solana.PublicKey
	Global                solana.PublicKey
	Fees                  solana.PublicKey
}

// DeriveAccounts derives the bonding-curve AMM's PDAs for mint.
func (c *Client) DeriveAccounts(mint solana.PublicKey) (BondingCurveAccounts, error) {
	return c.deriveBondingCurveAccounts(mint)
}

func (c *Client) deriveBondingCurveAccounts(mint solana.PublicKey) (BondingCurveAccounts, error) {
	bondingCurve, _, err := solana.FindProgramAddress([][]byte{[]byte("bonding-curve"), mint.Bytes()}, c.launchpadProgram)
	if err != nil {
		return BondingCurveAccounts{}, fmt.Errorf("failed to derive bonding curve pda: %w", err)
	}

	associatedBondingCurve, _, err := solana.FindAssociatedTokenAddress(bondingCurve, mint)
	if err != nil {
		return BondingCurveAccounts{}, fmt.Errorf("failed to derive associated bonding curve pda: %w", err)
	}

	creatorVault, _, err := solana.FindProgramAddress([][]byte{[]byte("creator-vault"), mint.Bytes()}, c.launchpadProgram)
	if err != nil {
		return BondingCurveAccounts{}, fmt.Errorf("failed to derive creator vault pda: %w", err)
	}

	global, _, err := solana.FindProgramAddress([][]byte{[]byte("global")}, c.launchpadProgram)
	if err != nil {
		return BondingCurveAccounts{}, fmt.Errorf("failed to derive global pda: %w", err)
	}

	fees, _, err := solana.FindProgramAddress([][]byte{[]byte("fees")}, c.launchpadProgram)
	if err != nil {
		return BondingCurveAccounts{}, fmt.Errorf("failed to derive fees pda: %w", err)
	}

	return BondingCurveAccounts{
		BondingCurve:           bondingCurve,
		AssociatedBondingCurve: associatedBondingCurve,
		CreatorVault:           creatorVault,
		Global:                 global,
		Fees:                   fees,
	}, nil
}

// bondingCurveAccountLayout mirrors the account's on-wire field order:
// discriminator(8) virtualToken(8) virtualBase(8) realToken(8) realBase(8)
// tokenTotalSupply(8) complete(1) creator(32).
const bondingCurveAccountLen = 8 + 8*5 + 1 + 32

// GetCurveState fetches and decodes the BondingCurveState account for
// the given mint.
func (c *Client) GetCurveState(ctx context.Context, mint solana.PublicKey) (curve.State, solana.PublicKey, error) {
	accounts, err := c.deriveBondingCurveAccounts(mint)
	if err != nil {
		return curve.State{}, solana.PublicKey{}, err
	}

	info, err := c.rpc.GetAccountInfo(ctx, accounts.BondingCurve)
	if err != nil {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("failed to fetch bonding curve account: %w", err)
	}
	if info == nil || info.Value == nil {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("bonding curve account not found for mint %s", mint)
	}

	data := info.Value.Data.GetBinary()
	if len(data) < bondingCurveAccountLen {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("bonding curve account data too short: got %d bytes", len(data))
	}

	decoder := solana.NewBinDecoder(data[8:])
	state := curve.State{}
	if err := decoder.Decode(&state.VirtualToken); err != nil {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("failed to decode virtualToken: %w", err)
	}
	if err := decoder.Decode(&state.VirtualBase); err != nil {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("failed to decode virtualBase: %w", err)
	}
	if err := decoder.Decode(&state.RealToken); err != nil {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("failed to decode realToken: %w", err)
	}
	if err := decoder.Decode(&state.RealBase); err != nil {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("failed to decode realBase: %w", err)
	}
	if err := decoder.Decode(&state.TokenSupply); err != nil {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("failed to decode tokenTotalSupply: %w", err)
	}
	if err := decoder.Decode(&state.Complete); err != nil {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("failed to decode complete flag: %w", err)
	}
	var creator solana.PublicKey
	if err := decoder.Decode(&creator); err != nil {
		return curve.State{}, solana.PublicKey{}, fmt.Errorf("failed to decode creator: %w", err)
	}
	state.Creator = creator.String()

	return state, accounts.BondingCurve, nil
}

// AccountSubscription is the minimal surface event ingestion needs from a
// live account-data subscription.
type AccountSubscription interface {
	Recv(ctx context.Context) (*ws.AccountResult, error)
	Unsubscribe()
}

// SubscribeAccount opens a WS account-data subscription, used by event
// ingestion to watch a dev wallet's token account or an LP pool account
// for balance changes (§2 Event Ingestion). Returns an error if the WS
// connection was unavailable at startup.
func (c *Client) SubscribeAccount(ctx context.Context, account solana.PublicKey) (AccountSubscription, error) {
	if c.ws == nil {
		return nil, fmt.Errorf("no websocket connection available")
	}
	sub, err := c.ws.AccountSubscribe(account, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to account %s: %w", account, err)
	}
	return sub, nil
}

func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return res.Value.Blockhash, res.Value.LastValidBlockHeight, nil
}

func (c *Client) Simulate(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error) {
	res, err := c.rpc.SimulateTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate transaction: %w", err)
	}
	return res, nil
}

func (c *Client) SendRaw(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight: false,
		MaxRetries:    new(uint),
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// SendRawSkipPreflight sends tx without preflight simulation and with
// up to 3 RPC-level retries, used by the executor-agent's buy path
// where speed matters more than a pre-send simulation catching errors
// the on-chain program will reject anyway (§4.7 Executor-agent).
func (c *Client) SendRawSkipPreflight(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	retries := uint(3)
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &retries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// AccountExists reports whether an account is present on chain, used to
// decide whether a buy needs an associated-token-account-create
// instruction ahead of it.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		return false, fmt.Errorf("failed to fetch account info: %w", err)
	}
	return info != nil && info.Value != nil, nil
}

// RecentSignatures returns up to limit of the launchpad program's most
// recent transaction signatures, newest first (§4.7 Scout).
func (c *Client) RecentSignatures(ctx context.Context, limit uint64) ([]*rpc.TransactionSignature, error) {
	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, c.launchpadProgram, &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent signatures: %w", err)
	}
	return sigs, nil
}

// GetParsedTransaction fetches a confirmed transaction with account keys
// resolved, used by the Scout to find the deployer and the minted token.
func (c *Client) GetParsedTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	version := uint64(0)
	tx, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", sig, err)
	}
	return tx, nil
}

func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return fmt.Errorf("failed to get signature status: %w", err)
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return fmt.Errorf("transaction %s not yet observed", sig)
	}
	if res.Value[0].Err != nil {
		return fmt.Errorf("transaction %s failed: %v", sig, res.Value[0].Err)
	}
	return nil
}
