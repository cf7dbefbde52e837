package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeBalance represents a native token balance
type NativeBalance struct {
	Chain    string   `json:"chain"`
	Symbol   string   `json:"symbol"`
	Balance  *big.Int `json:"balance"`
	Decimals uint8    `json:"decimals"` // Always 18 for native tokens
}

// GetNativeBalance returns the native token balance for an address
func (c *Client) GetNativeBalance(ctx context.Context, address common.Address) (*NativeBalance, error) {
	balance, err := c.BalanceAt(ctx, address)
	if err != nil {
		return nil, err
	}

	return &NativeBalance{
		Chain:    c.config.Name,
		Symbol:   c.config.NativeCurrency,
		Balance:  balance,
		Decimals: 18,
	}, nil
}

// String renders the balance with its symbol.
func (b *NativeBalance) String() string {
	return FormatBalance(b.Balance, b.Decimals) + " " + b.Symbol
}

// FormatBalance formats a balance with decimals as a human-readable string
func FormatBalance(balance *big.Int, decimals uint8) string {
	if balance == nil {
		return "0"
	}

	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	balFloat := new(big.Float).SetInt(balance)
	result := new(big.Float).Quo(balFloat, divisor)

	if decimals > 6 {
		return result.Text('f', 6)
	}
	return result.Text('f', int(decimals))
}
