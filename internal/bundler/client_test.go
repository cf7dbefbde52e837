package bundler

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/aaflow/internal/testutil"
	"github.com/yolodolo42/aaflow/internal/userop"
)

// fakeBundler serves the eth_ user operation methods.
type fakeBundler struct {
	mu           sync.Mutex
	sent         []userop.UserOperation
	sentTo       []common.Address
	sendErr      error
	pendingPolls int
	polls        int
	reverted     bool
}

func (b *fakeBundler) SendUserOperation(op userop.UserOperation, entryPoint common.Address) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return common.Hash{}, b.sendErr
	}
	b.sent = append(b.sent, op)
	b.sentTo = append(b.sentTo, entryPoint)
	return crypto.Keccak256Hash(op.CallData), nil
}

func (b *fakeBundler) EstimateUserOperationGas(op userop.UserOperation, entryPoint common.Address) *userop.GasEstimate {
	return &userop.GasEstimate{
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(50_000)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(300_000)),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(20_000)),
	}
}

func (b *fakeBundler) GetUserOperationReceipt(hash common.Hash) *Receipt {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.polls <= b.pendingPolls {
		return nil
	}
	r := &Receipt{
		UserOpHash: hash,
		Success:    !b.reverted,
		Receipt: TxReceipt{
			TransactionHash: common.HexToHash("0xbeef"),
			BlockNumber:     (*hexutil.Big)(big.NewInt(100)),
		},
	}
	if b.reverted {
		r.Reason = "AA23 reverted"
	}
	return r
}

func (b *fakeBundler) SupportedEntryPoints() []common.Address {
	return []common.Address{userop.EntryPointV07}
}

type fakePimlico struct {
	missingFast bool
}

func (p *fakePimlico) GetUserOperationGasPrice() GasPrices {
	tier := func(fee, tip int64) GasPrice {
		return GasPrice{
			MaxFeePerGas:         (*hexutil.Big)(big.NewInt(fee)),
			MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(tip)),
		}
	}
	out := GasPrices{Slow: tier(10, 1), Standard: tier(20, 2), Fast: tier(30, 3)}
	if p.missingFast {
		out.Fast = GasPrice{}
	}
	return out
}

func newTestClient(t *testing.T, b *fakeBundler, p *fakePimlico) *Client {
	t.Helper()
	rc := testutil.InProcRPC(t,
		testutil.RPCService{Namespace: "eth", Receiver: b},
		testutil.RPCService{Namespace: "pimlico", Receiver: p},
	)
	return NewClient(rc, WithPollInterval(5*time.Millisecond))
}

func testOp() *userop.UserOperation {
	return &userop.UserOperation{
		Sender:   common.HexToAddress("0x5a6b47F4131bf1feAFA56A05573314BcF44C9149"),
		Nonce:    big.NewInt(1),
		CallData: []byte{0xb6, 0x1d, 0x27, 0xf6},
	}
}

func TestClient_SendUserOperation(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the bundler hash", func(t *testing.T) {
		b := &fakeBundler{}
		c := newTestClient(t, b, &fakePimlico{})
		op := testOp()

		hash, err := c.SendUserOperation(ctx, op, userop.EntryPointV07)
		require.NoError(t, err)
		assert.Equal(t, crypto.Keccak256Hash(op.CallData), hash)

		require.Len(t, b.sent, 1)
		assert.Equal(t, op.Sender, b.sent[0].Sender)
		assert.Equal(t, userop.EntryPointV07, b.sentTo[0])
	})

	t.Run("propagates rejection", func(t *testing.T) {
		c := newTestClient(t, &fakeBundler{sendErr: errors.New("AA21 didn't pay prefund")}, &fakePimlico{})
		_, err := c.SendUserOperation(ctx, testOp(), userop.EntryPointV07)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AA21")
	})
}

func TestClient_EstimateUserOperationGas(t *testing.T) {
	c := newTestClient(t, &fakeBundler{}, &fakePimlico{})
	est, err := c.EstimateUserOperationGas(context.Background(), testOp(), userop.EntryPointV07)
	require.NoError(t, err)

	op := testOp()
	est.Apply(op)
	assert.Equal(t, int64(50_000), op.PreVerificationGas.Int64())
	assert.Equal(t, int64(300_000), op.VerificationGasLimit.Int64())
	assert.Equal(t, int64(20_000), op.CallGasLimit.Int64())
	assert.Nil(t, op.PaymasterPostOpGasLimit)
}

func TestClient_SupportedEntryPoints(t *testing.T) {
	c := newTestClient(t, &fakeBundler{}, &fakePimlico{})
	eps, err := c.SupportedEntryPoints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{userop.EntryPointV07}, eps)
}

func TestClient_GetUserOperationGasPrice(t *testing.T) {
	t.Run("returns tiers", func(t *testing.T) {
		c := newTestClient(t, &fakeBundler{}, &fakePimlico{})
		prices, err := c.GetUserOperationGasPrice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(30), prices.Fast.MaxFeePerGas.ToInt().Int64())
		assert.Equal(t, int64(3), prices.Fast.MaxPriorityFeePerGas.ToInt().Int64())
		assert.Equal(t, int64(10), prices.Slow.MaxFeePerGas.ToInt().Int64())
	})

	t.Run("rejects missing fast tier", func(t *testing.T) {
		c := newTestClient(t, &fakeBundler{}, &fakePimlico{missingFast: true})
		_, err := c.GetUserOperationGasPrice(context.Background())
		require.Error(t, err)
	})
}

func TestClient_WaitForReceipt(t *testing.T) {
	hash := common.HexToHash("0x01")

	t.Run("polls until included", func(t *testing.T) {
		b := &fakeBundler{pendingPolls: 2}
		c := newTestClient(t, b, &fakePimlico{})

		receipt, err := c.WaitForReceipt(context.Background(), hash)
		require.NoError(t, err)
		assert.Equal(t, common.HexToHash("0xbeef"), receipt.Receipt.TransactionHash)
		assert.Equal(t, 3, b.polls)
	})

	t.Run("reverted operation", func(t *testing.T) {
		c := newTestClient(t, &fakeBundler{reverted: true}, &fakePimlico{})
		receipt, err := c.WaitForReceipt(context.Background(), hash)
		assert.ErrorIs(t, err, ErrUserOperationFailed)
		require.NotNil(t, receipt)
		assert.Contains(t, err.Error(), "AA23")
	})

	t.Run("stops when context ends", func(t *testing.T) {
		c := newTestClient(t, &fakeBundler{pendingPolls: 1 << 30}, &fakePimlico{})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := c.WaitForReceipt(ctx, hash)
		require.Error(t, err)
	})
}

func TestDial_RequiresURL(t *testing.T) {
	_, err := Dial(context.Background(), "")
	require.Error(t, err)
}
