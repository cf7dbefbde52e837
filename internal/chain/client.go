package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is the read-only public client for a single chain. It is the chain
// state source smart-account derivation and fee estimation run against.
type Client struct {
	config *ChainConfig
	eth    *ethclient.Client
}

// Dial connects to the first RPC URL of config that answers with the expected
// chain ID.
func Dial(ctx context.Context, config *ChainConfig) (*Client, error) {
	var lastErr error
	for _, rpcURL := range config.RPCURLs {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		eth, err := ethclient.DialContext(dialCtx, rpcURL)
		cancel()

		if err != nil {
			lastErr = err
			continue
		}

		client, err := verify(ctx, config, eth)
		if err != nil {
			eth.Close()
			lastErr = err
			continue
		}
		return client, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no RPC URLs configured")
	}
	return nil, fmt.Errorf("failed to connect to %s: %w", config.Name, lastErr)
}

// NewClient wraps an existing RPC connection after checking its chain ID.
func NewClient(ctx context.Context, config *ChainConfig, rc *rpc.Client) (*Client, error) {
	return verify(ctx, config, ethclient.NewClient(rc))
}

func verify(ctx context.Context, config *ChainConfig, eth *ethclient.Client) (*Client, error) {
	idCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	chainID, err := eth.ChainID(idCtx)
	if err != nil {
		return nil, err
	}
	if chainID.Cmp(config.ChainID) != 0 {
		return nil, fmt.Errorf("chain ID mismatch: expected %s, got %s", config.ChainID.String(), chainID.String())
	}
	return &Client{config: config, eth: eth}, nil
}

// Config returns the chain configuration the client was dialed with.
func (c *Client) Config() *ChainConfig {
	return c.config
}

// ChainID returns the verified chain ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.config.ChainID)
}

// RPC exposes the raw JSON-RPC connection for request forwarding.
func (c *Client) RPC() *rpc.Client {
	return c.eth.Client()
}

// BalanceAt returns the native balance of an address at the latest block
func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, address, nil)
}

// CodeAt returns the deployed code at an address
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return c.eth.CodeAt(ctx, address, nil)
}

// CallContract executes a read-only contract call against the latest block
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, nil)
}

// HeaderByNumber returns a block header; nil number means latest.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, number)
}

// SuggestGasTipCap returns the suggested gas tip cap for EIP-1559 transactions
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasTipCap(ctx)
}

// SuggestGasPrice returns the suggested legacy gas price
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// Close closes the underlying connection
func (c *Client) Close() {
	c.eth.Close()
}
