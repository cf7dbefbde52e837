package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

// PassphraseFunc collects the passphrase of a keystore account.
type PassphraseFunc func(ctx context.Context) (string, error)

// KeystoreConfig configures a provider for a key in the user's own keystore.
type KeystoreConfig struct {
	Keys       *wallet.KeystoreManager
	Address    common.Address
	Chain      *chain.ChainConfig
	RPC        *rpc.Client // optional
	Passphrase PassphraseFunc
}

// Keystore is an identity provider for a single locally held key. Its only
// wallet has client type keystore.
type Keystore struct {
	cfg KeystoreConfig

	mu      sync.Mutex
	signer  *wallet.KeystoreSigner
	handler *requestHandler
	wallet  ConnectedWallet
}

// NewKeystore checks that the account exists without unlocking it.
func NewKeystore(cfg KeystoreConfig) (*Keystore, error) {
	switch {
	case cfg.Keys == nil:
		return nil, errors.New("keystore is required")
	case cfg.Chain == nil:
		return nil, errors.New("chain is required")
	case cfg.Passphrase == nil:
		return nil, errors.New("no passphrase source configured")
	}
	if !cfg.Keys.HasAccount(cfg.Address) {
		return nil, fmt.Errorf("%w: %s", wallet.ErrAccountNotFound, cfg.Address.Hex())
	}
	return &Keystore{cfg: cfg}, nil
}

// Login implements Provider by unlocking the key.
func (k *Keystore) Login(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.signer != nil {
		return nil
	}
	pass, err := k.cfg.Passphrase(ctx)
	if err != nil {
		return fmt.Errorf("collect passphrase: %w", err)
	}
	signer, err := k.cfg.Keys.GetSigner(k.cfg.Address, pass)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	k.signer = signer
	k.wallet, k.handler = localWallet(signer, k.cfg.Chain, k.cfg.RPC)
	slog.Info("keystore unlocked", "wallet", k.cfg.Address.Hex())
	return nil
}

// Logout implements Provider. The key is zeroed and the wallet's provider
// answers 4900 from then on.
func (k *Keystore) Logout(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.signer == nil {
		return nil
	}
	k.handler.disconnect()
	k.signer.Lock()
	k.signer = nil
	k.handler = nil
	k.wallet = ConnectedWallet{}
	slog.Info("keystore locked", "wallet", k.cfg.Address.Hex())
	return nil
}

// Authenticated implements Provider.
func (k *Keystore) Authenticated() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.signer != nil
}

// Wallets implements Provider.
func (k *Keystore) Wallets() []ConnectedWallet {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.signer == nil {
		return nil
	}
	return []ConnectedWallet{k.wallet}
}
