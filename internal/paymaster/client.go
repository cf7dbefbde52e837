// Package paymaster requests sponsorship for user operations.
package paymaster

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/yolodolo42/aaflow/internal/userop"
)

// ErrNoPaymaster is returned when a sponsorship answer names no paymaster.
var ErrNoPaymaster = errors.New("sponsorship returned no paymaster")

// Sponsorship is the result of pm_sponsorUserOperation for v0.7.
type Sponsorship struct {
	userop.GasEstimate
	Paymaster     common.Address `json:"paymaster"`
	PaymasterData hexutil.Bytes  `json:"paymasterData"`
}

// Apply writes the paymaster fields and sponsor gas limits onto op.
func (s *Sponsorship) Apply(op *userop.UserOperation) {
	s.GasEstimate.Apply(op)
	paymaster := s.Paymaster
	op.Paymaster = &paymaster
	op.PaymasterData = append([]byte(nil), s.PaymasterData...)
}

// Client is a paymaster JSON-RPC client.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the paymaster at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	if url == "" {
		return nil, errors.New("paymaster RPC URL is required")
	}
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial paymaster: %w", err)
	}
	return NewClient(rc), nil
}

// NewClient wraps an existing RPC connection.
func NewClient(rc *rpc.Client) *Client {
	return &Client{rpc: rc}
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// SponsorUserOperation asks the paymaster to sponsor op. The operation is not
// modified; apply the result to attach the sponsorship.
func (c *Client) SponsorUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*Sponsorship, error) {
	var out Sponsorship
	if err := c.rpc.CallContext(ctx, &out, "pm_sponsorUserOperation", op, entryPoint); err != nil {
		return nil, fmt.Errorf("pm_sponsorUserOperation: %w", err)
	}
	if out.Paymaster == (common.Address{}) {
		return nil, ErrNoPaymaster
	}
	return &out, nil
}
