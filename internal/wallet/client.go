package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/yolodolo42/aaflow/internal/chain"
)

// ErrNoAccount is returned when an operation needs a bound account.
var ErrNoAccount = errors.New("wallet client has no account")

// Client is a wallet client: an account and chain bound to an EIP-1193
// transport. Signing requests are delegated to whoever holds the key behind
// the transport.
type Client struct {
	account   *common.Address
	chain     *chain.ChainConfig
	transport Provider
}

// NewClient binds transport to account on chainCfg. account may be nil for a
// client that only reads.
func NewClient(transport Provider, account *common.Address, chainCfg *chain.ChainConfig) *Client {
	return &Client{
		account:   account,
		chain:     chainCfg,
		transport: transport,
	}
}

// Account returns the bound account, if any.
func (c *Client) Account() (common.Address, bool) {
	if c.account == nil {
		return common.Address{}, false
	}
	return *c.account, true
}

// Chain returns the chain the client targets.
func (c *Client) Chain() *chain.ChainConfig {
	return c.chain
}

// Transport returns the underlying EIP-1193 provider.
func (c *Client) Transport() Provider {
	return c.transport
}

// RequestAddresses asks the provider for its accounts.
func (c *Client) RequestAddresses(ctx context.Context) ([]common.Address, error) {
	raw, err := c.transport.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, err
	}
	var out []common.Address
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return out, nil
}

// ChainID returns the chain ID the provider reports.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	raw, err := c.transport.Request(ctx, "eth_chainId")
	if err != nil {
		return nil, err
	}
	var id hexutil.Big
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("decode chain id: %w", err)
	}
	return id.ToInt(), nil
}

// SignMessage requests an EIP-191 personal signature over message.
func (c *Client) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	account, ok := c.Account()
	if !ok {
		return nil, ErrNoAccount
	}
	raw, err := c.transport.Request(ctx, "personal_sign", hexutil.Bytes(message), account)
	if err != nil {
		return nil, err
	}
	return decodeSignature(raw)
}

// SignTypedData requests an EIP-712 signature.
func (c *Client) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	account, ok := c.Account()
	if !ok {
		return nil, ErrNoAccount
	}
	payload, err := json.Marshal(typedData)
	if err != nil {
		return nil, fmt.Errorf("encode typed data: %w", err)
	}
	raw, err := c.transport.Request(ctx, "eth_signTypedData_v4", account, string(payload))
	if err != nil {
		return nil, err
	}
	return decodeSignature(raw)
}

func decodeSignature(raw json.RawMessage) ([]byte, error) {
	var sig hexutil.Bytes
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	return sig, nil
}
