// Package smartclient sends transactions from a smart account as sponsored
// user operations.
package smartclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yolodolo42/aaflow/internal/account"
	"github.com/yolodolo42/aaflow/internal/bundler"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/paymaster"
	"github.com/yolodolo42/aaflow/internal/userop"
)

var (
	ErrInvalidConfig = errors.New("invalid smart account client config")
	ErrSponsorFailed = errors.New("sponsorship failed")
)

// Call is a single call from the smart account.
type Call = account.Call

// Account is the smart account a client sends from.
type Account interface {
	Address() common.Address
	EntryPoint() common.Address
	Nonce(ctx context.Context) (*big.Int, error)
	FactoryArgs(ctx context.Context) (*common.Address, []byte, error)
	EncodeCallData(calls ...account.Call) ([]byte, error)
	DummySignature() []byte
	SignUserOperation(ctx context.Context, op *userop.UserOperation) ([]byte, error)
}

// Bundler submits user operations.
type Bundler interface {
	SendUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (common.Hash, error)
	EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*userop.GasEstimate, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*bundler.Receipt, error)
}

// Chain provides default fee estimates.
type Chain interface {
	EstimateFeesPerGas(ctx context.Context) (chain.Fees, error)
}

// SponsorFunc attaches a paymaster to an operation. *paymaster.Client's
// SponsorUserOperation method has this shape.
type SponsorFunc func(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*paymaster.Sponsorship, error)

// GasPriceFunc overrides chain fee estimation.
type GasPriceFunc func(ctx context.Context) (chain.Fees, error)

// Middleware hooks into operation preparation.
type Middleware struct {
	SponsorUserOperation SponsorFunc
	GasPrice             GasPriceFunc
}

// Config binds a client to its account, chain and bundler.
type Config struct {
	Account    Account
	Chain      Chain
	Bundler    Bundler
	Middleware Middleware
}

// Result is the outcome of a submitted operation.
type Result struct {
	UserOpHash common.Hash
	TxHash     common.Hash
	Receipt    *bundler.Receipt
}

// Client sends calls from a smart account through a bundler.
type Client struct {
	account    Account
	chain      Chain
	bundler    Bundler
	middleware Middleware
}

// New builds a client. Account, Chain and Bundler are required.
func New(cfg Config) (*Client, error) {
	switch {
	case cfg.Account == nil:
		return nil, fmt.Errorf("%w: account is required", ErrInvalidConfig)
	case cfg.Chain == nil:
		return nil, fmt.Errorf("%w: chain is required", ErrInvalidConfig)
	case cfg.Bundler == nil:
		return nil, fmt.Errorf("%w: bundler is required", ErrInvalidConfig)
	}
	return &Client{
		account:    cfg.Account,
		chain:      cfg.Chain,
		bundler:    cfg.Bundler,
		middleware: cfg.Middleware,
	}, nil
}

// Address is the smart account address.
func (c *Client) Address() common.Address {
	return c.account.Address()
}

// Sponsored reports whether a paymaster middleware is configured.
func (c *Client) Sponsored() bool {
	return c.middleware.SponsorUserOperation != nil
}

// SendTransaction submits call and waits for inclusion. The returned hash is
// the bundle transaction that included the operation.
func (c *Client) SendTransaction(ctx context.Context, call Call) (common.Hash, error) {
	res, err := c.Send(ctx, call)
	if err != nil {
		return common.Hash{}, err
	}
	return res.TxHash, nil
}

// Send submits calls as one user operation and waits for inclusion.
func (c *Client) Send(ctx context.Context, calls ...Call) (*Result, error) {
	op, err := c.PrepareUserOperation(ctx, calls...)
	if err != nil {
		return nil, err
	}

	sig, err := c.account.SignUserOperation(ctx, op)
	if err != nil {
		return nil, err
	}
	op.Signature = sig

	entryPoint := c.account.EntryPoint()
	hash, err := c.bundler.SendUserOperation(ctx, op, entryPoint)
	if err != nil {
		return nil, err
	}
	slog.Info("user operation submitted", "sender", op.Sender.Hex(), "userOpHash", hash.Hex(), "sponsored", op.HasPaymaster())

	receipt, err := c.bundler.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("wait for user operation %s: %w", hash.Hex(), err)
	}
	slog.Info("user operation included", "userOpHash", hash.Hex(), "txHash", receipt.Receipt.TransactionHash.Hex())

	return &Result{
		UserOpHash: hash,
		TxHash:     receipt.Receipt.TransactionHash,
		Receipt:    receipt,
	}, nil
}

// PrepareUserOperation builds an unsigned operation for calls with nonce,
// deployment args, fees and gas limits filled in. When a sponsor is
// configured the paymaster fields are attached.
func (c *Client) PrepareUserOperation(ctx context.Context, calls ...Call) (*userop.UserOperation, error) {
	callData, err := c.account.EncodeCallData(calls...)
	if err != nil {
		return nil, fmt.Errorf("encode call data: %w", err)
	}
	nonce, err := c.account.Nonce(ctx)
	if err != nil {
		return nil, err
	}
	factory, factoryData, err := c.account.FactoryArgs(ctx)
	if err != nil {
		return nil, err
	}
	fees, err := c.fees(ctx)
	if err != nil {
		return nil, err
	}

	op := &userop.UserOperation{
		Sender:               c.account.Address(),
		Nonce:                nonce,
		Factory:              factory,
		FactoryData:          factoryData,
		CallData:             callData,
		MaxFeePerGas:         fees.MaxFeePerGas,
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas,
		Signature:            c.account.DummySignature(),
	}

	entryPoint := c.account.EntryPoint()
	if sponsor := c.middleware.SponsorUserOperation; sponsor != nil {
		sponsorship, err := sponsor(ctx, op.Copy(), entryPoint)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSponsorFailed, err)
		}
		sponsorship.Apply(op)
		slog.Debug("user operation sponsored", "sender", op.Sender.Hex(), "paymaster", sponsorship.Paymaster.Hex())
		return op, nil
	}

	estimate, err := c.bundler.EstimateUserOperationGas(ctx, op, entryPoint)
	if err != nil {
		return nil, err
	}
	estimate.Apply(op)
	return op, nil
}

func (c *Client) fees(ctx context.Context) (chain.Fees, error) {
	if c.middleware.GasPrice != nil {
		fees, err := c.middleware.GasPrice(ctx)
		if err != nil {
			return chain.Fees{}, fmt.Errorf("gas price middleware: %w", err)
		}
		return fees, nil
	}
	fees, err := c.chain.EstimateFeesPerGas(ctx)
	if err != nil {
		return chain.Fees{}, fmt.Errorf("estimate fees: %w", err)
	}
	return fees, nil
}

// GasPriceSource is a bundler that quotes user operation gas prices.
type GasPriceSource interface {
	GetUserOperationGasPrice(ctx context.Context) (*bundler.GasPrices, error)
}

// FastGasPrice uses the bundler's fast tier as the gas price middleware.
func FastGasPrice(src GasPriceSource) GasPriceFunc {
	return func(ctx context.Context) (chain.Fees, error) {
		prices, err := src.GetUserOperationGasPrice(ctx)
		if err != nil {
			return chain.Fees{}, err
		}
		return chain.Fees{
			MaxFeePerGas:         prices.Fast.MaxFeePerGas.ToInt(),
			MaxPriorityFeePerGas: prices.Fast.MaxPriorityFeePerGas.ToInt(),
		}, nil
	}
}
