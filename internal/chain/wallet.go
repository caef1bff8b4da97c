package chain

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/curvesentinel/node/internal/config"
)

// Wallet holds the single signing keypair the node trades with (§1:
// custody is limited to exactly one signing key).
type Wallet struct {
	private solana.PrivateKey
}

func LoadWallet(cfg config.WalletConfig) (*Wallet, error) {
	if cfg.PrivateKey != "" {
		key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse WALLET_PRIVATE_KEY: %w", err)
		}
		return &Wallet{private: key}, nil
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFile(strings.TrimSpace(cfg.KeypairPath))
	if err != nil {
		return nil, fmt.Errorf("failed to parse keypair file %q: %w", cfg.KeypairPath, err)
	}
	return &Wallet{private: key}, nil
}

func (w *Wallet) PublicKey() solana.PublicKey {
	return w.private.PublicKey()
}

func (w *Wallet) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.private.PublicKey()) {
			return &w.private
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}
