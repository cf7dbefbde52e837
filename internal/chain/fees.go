package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// Fees is an EIP-1559 fee pair.
type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// feeSource is the subset of Client fee estimation needs.
type feeSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// EstimateFeesPerGas returns fees with 20% headroom on the latest base fee.
func (c *Client) EstimateFeesPerGas(ctx context.Context) (Fees, error) {
	return estimateFees(ctx, c)
}

func estimateFees(ctx context.Context, src feeSource) (Fees, error) {
	header, err := src.HeaderByNumber(ctx, nil)
	if err != nil {
		return Fees{}, fmt.Errorf("fetch latest header: %w", err)
	}

	if header.BaseFee == nil {
		// Pre-London chain: a single gas price covers both fields.
		price, err := src.SuggestGasPrice(ctx)
		if err != nil {
			return Fees{}, fmt.Errorf("suggest gas price: %w", err)
		}
		return Fees{MaxFeePerGas: price, MaxPriorityFeePerGas: new(big.Int).Set(price)}, nil
	}

	tip, err := src.SuggestGasTipCap(ctx)
	if err != nil {
		return Fees{}, fmt.Errorf("suggest gas tip cap: %w", err)
	}

	maxFee := new(big.Int).Mul(header.BaseFee, big.NewInt(12))
	maxFee.Div(maxFee, big.NewInt(10))
	maxFee.Add(maxFee, tip)

	return Fees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}
