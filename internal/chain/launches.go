package chain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// LaunchCandidate is one parsed transaction against the launchpad
// program, carrying enough to let the Scout decide whether it minted a
// new bonding-curve token (§4.7 Scout).
type LaunchCandidate struct {
	Signature string
	Slot      uint64
	Deployer  string
	Mint      string
}

// ParseLaunchCandidate fetches sig's transaction and extracts the
// deployer (first signer) and minted token (first post-balance mint),
// per the Scout's literal description. Returns ok=false when the
// transaction failed or carries no token balances — either of which just
// means this signature isn't a launch. A transaction that can't be
// fetched or decoded is returned as an error.
func (c *Client) ParseLaunchCandidate(ctx context.Context, sig solana.Signature) (LaunchCandidate, bool, error) {
	tx, err := c.GetParsedTransaction(ctx, sig)
	if err != nil {
		return LaunchCandidate{}, false, err
	}
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil || tx.Transaction == nil {
		return LaunchCandidate{}, false, nil
	}

	decoded, err := tx.Transaction.GetTransaction()
	if err != nil {
		return LaunchCandidate{}, false, fmt.Errorf("failed to decode transaction %s: %w", sig, err)
	}
	if decoded == nil || len(decoded.Message.AccountKeys) == 0 {
		return LaunchCandidate{}, false, nil
	}
	if len(tx.Meta.PostTokenBalances) == 0 {
		return LaunchCandidate{}, false, nil
	}

	return LaunchCandidate{
		Signature: sig.String(),
		Slot:      tx.Slot,
		Deployer:  decoded.Message.AccountKeys[0].String(),
		Mint:      tx.Meta.PostTokenBalances[0].Mint.String(),
	}, true, nil
}
