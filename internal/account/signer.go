package account

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

// Signer is the owner key of a smart account.
type Signer interface {
	Address() common.Address
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
}

type walletClientSigner struct {
	client  *wallet.Client
	address common.Address
}

// FromWalletClient adapts a wallet client into an owner signer. Signing goes
// through the client's EIP-1193 transport.
func FromWalletClient(client *wallet.Client) (Signer, error) {
	if client == nil {
		return nil, fmt.Errorf("adapt signer: %w", wallet.ErrNoAccount)
	}
	address, ok := client.Account()
	if !ok {
		return nil, fmt.Errorf("adapt signer: %w", wallet.ErrNoAccount)
	}
	return &walletClientSigner{client: client, address: address}, nil
}

func (s *walletClientSigner) Address() common.Address { return s.address }

func (s *walletClientSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return s.client.SignMessage(ctx, message)
}

func (s *walletClientSigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	return s.client.SignTypedData(ctx, typedData)
}

type localSigner struct {
	signer wallet.Signer
}

// FromLocalSigner adapts a key held in-process.
func FromLocalSigner(signer wallet.Signer) Signer {
	return &localSigner{signer: signer}
}

func (s *localSigner) Address() common.Address { return s.signer.Address() }

func (s *localSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.signer.SignMessage(message)
}

func (s *localSigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.signer.SignTypedData(typedData)
}
