// Package identity signs users in and hands out the wallets they control.
package identity

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Provider is an identity provider session.
type Provider interface {
	// Login authenticates a user. It is a no-op when already authenticated.
	Login(ctx context.Context) error
	// Logout ends the session. Providers handed out earlier stop serving.
	Logout(ctx context.Context) error
	Authenticated() bool
	// Wallets lists the wallets of the signed-in user; nil when signed out.
	Wallets() []ConnectedWallet
}

// ConnectedWallet is a wallet attached to the signed-in user.
type ConnectedWallet struct {
	ClientType wallet.ClientType
	Address    common.Address
	provider   func(ctx context.Context) (wallet.Provider, error)
}

// NewConnectedWallet describes a wallet whose EIP-1193 provider is produced by fn.
func NewConnectedWallet(clientType wallet.ClientType, address common.Address, fn func(ctx context.Context) (wallet.Provider, error)) ConnectedWallet {
	return ConnectedWallet{ClientType: clientType, Address: address, provider: fn}
}

// EthereumProvider returns the wallet's EIP-1193 request interface.
func (w ConnectedWallet) EthereumProvider(ctx context.Context) (wallet.Provider, error) {
	if w.provider == nil {
		return nil, &wallet.ProviderError{Code: wallet.CodeDisconnected, Message: "wallet has no provider"}
	}
	return w.provider(ctx)
}

// EmbeddedWallet picks the provider-custodied wallet out of wallets.
func EmbeddedWallet(wallets []ConnectedWallet) (ConnectedWallet, bool) {
	return FindWallet(wallets, wallet.ClientTypeEmbedded)
}

// FindWallet returns the first wallet of the given client type.
func FindWallet(wallets []ConnectedWallet, clientType wallet.ClientType) (ConnectedWallet, bool) {
	for _, w := range wallets {
		if w.ClientType == clientType {
			return w, true
		}
	}
	return ConnectedWallet{}, false
}
