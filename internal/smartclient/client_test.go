package smartclient

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/aaflow/internal/account"
	"github.com/yolodolo42/aaflow/internal/bundler"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/paymaster"
	"github.com/yolodolo42/aaflow/internal/userop"
)

var (
	testSender    = common.HexToAddress("0x5a6b47F4131bf1feAFA56A05573314BcF44C9149")
	testFactory   = common.HexToAddress("0x91E60e0613810449d098b0b5Ec8b51A0FE8c8985")
	testPaymaster = common.HexToAddress("0x00000000000000fB866DaAA79352cC568a005D96")
	testUserOp    = common.HexToHash("0xaa")
	testTx        = common.HexToHash("0xbb")
)

type fakeAccount struct {
	deployed bool
	signErr  error
	calls    []account.Call
	signed   *userop.UserOperation
}

func (a *fakeAccount) Address() common.Address    { return testSender }
func (a *fakeAccount) EntryPoint() common.Address { return userop.EntryPointV07 }

func (a *fakeAccount) Nonce(ctx context.Context) (*big.Int, error) { return big.NewInt(4), nil }

func (a *fakeAccount) FactoryArgs(ctx context.Context) (*common.Address, []byte, error) {
	if a.deployed {
		return nil, nil, nil
	}
	f := testFactory
	return &f, []byte{0x5f, 0xbf, 0xb9, 0xcf}, nil
}

func (a *fakeAccount) EncodeCallData(calls ...account.Call) ([]byte, error) {
	a.calls = calls
	return []byte{0xb6, 0x1d, 0x27, 0xf6}, nil
}

func (a *fakeAccount) DummySignature() []byte { return []byte{0xff} }

func (a *fakeAccount) SignUserOperation(ctx context.Context, op *userop.UserOperation) ([]byte, error) {
	if a.signErr != nil {
		return nil, a.signErr
	}
	a.signed = op.Copy()
	return []byte{0x51}, nil
}

type fakeBundler struct {
	sent      *userop.UserOperation
	estimated int
	sendErr   error
	waitErr   error
}

func (b *fakeBundler) SendUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (common.Hash, error) {
	if b.sendErr != nil {
		return common.Hash{}, b.sendErr
	}
	b.sent = op.Copy()
	return testUserOp, nil
}

func (b *fakeBundler) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*userop.GasEstimate, error) {
	b.estimated++
	return &userop.GasEstimate{
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(1)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(2)),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(3)),
	}, nil
}

func (b *fakeBundler) WaitForReceipt(ctx context.Context, hash common.Hash) (*bundler.Receipt, error) {
	if b.waitErr != nil {
		return nil, b.waitErr
	}
	return &bundler.Receipt{UserOpHash: hash, Success: true, Receipt: bundler.TxReceipt{TransactionHash: testTx}}, nil
}

type fakeChain struct{ calls int }

func (c *fakeChain) EstimateFeesPerGas(ctx context.Context) (chain.Fees, error) {
	c.calls++
	return chain.Fees{MaxFeePerGas: big.NewInt(100), MaxPriorityFeePerGas: big.NewInt(10)}, nil
}

func sponsorOK(calls *int) SponsorFunc {
	return func(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*paymaster.Sponsorship, error) {
		*calls++
		return &paymaster.Sponsorship{
			GasEstimate: userop.GasEstimate{
				PreVerificationGas:            (*hexutil.Big)(big.NewInt(11)),
				VerificationGasLimit:          (*hexutil.Big)(big.NewInt(22)),
				CallGasLimit:                  (*hexutil.Big)(big.NewInt(33)),
				PaymasterVerificationGasLimit: (*hexutil.Big)(big.NewInt(44)),
				PaymasterPostOpGasLimit:       (*hexutil.Big)(big.NewInt(55)),
			},
			Paymaster:     testPaymaster,
			PaymasterData: hexutil.Bytes{0x01},
		}, nil
	}
}

func zeroCall() Call {
	return Call{To: common.Address{}, Value: big.NewInt(0), Data: []byte{}}
}

func TestNew(t *testing.T) {
	_, err := New(Config{Chain: &fakeChain{}, Bundler: &fakeBundler{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Config{Account: &fakeAccount{}, Bundler: &fakeBundler{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Config{Account: &fakeAccount{}, Chain: &fakeChain{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, err := New(Config{Account: &fakeAccount{}, Chain: &fakeChain{}, Bundler: &fakeBundler{}})
	require.NoError(t, err)
	assert.Equal(t, testSender, c.Address())
	assert.False(t, c.Sponsored())
}

func TestClient_SendTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("sponsored operation returns bundle tx hash", func(t *testing.T) {
		acct := &fakeAccount{}
		b := &fakeBundler{}
		sponsorCalls := 0
		c, err := New(Config{
			Account:    acct,
			Chain:      &fakeChain{},
			Bundler:    b,
			Middleware: Middleware{SponsorUserOperation: sponsorOK(&sponsorCalls)},
		})
		require.NoError(t, err)
		assert.True(t, c.Sponsored())

		hash, err := c.SendTransaction(ctx, zeroCall())
		require.NoError(t, err)
		assert.Equal(t, testTx, hash)
		assert.Equal(t, 1, sponsorCalls)
		assert.Equal(t, 0, b.estimated, "sponsor supplies gas limits")

		require.Len(t, acct.calls, 1)
		assert.Equal(t, common.Address{}, acct.calls[0].To)

		require.NotNil(t, b.sent)
		assert.Equal(t, []byte{0x51}, b.sent.Signature)
		require.True(t, b.sent.HasPaymaster())
		assert.Equal(t, testPaymaster, *b.sent.Paymaster)
		assert.Equal(t, int64(44), b.sent.PaymasterVerificationGasLimit.Int64())
		assert.Equal(t, testFactory, *b.sent.Factory)
		assert.Equal(t, int64(4), b.sent.Nonce.Int64())
		assert.Equal(t, int64(100), b.sent.MaxFeePerGas.Int64())

		// The account signs the fully prepared operation.
		require.NotNil(t, acct.signed)
		assert.Equal(t, int64(33), acct.signed.CallGasLimit.Int64())
	})

	t.Run("without sponsor the bundler estimates", func(t *testing.T) {
		b := &fakeBundler{}
		c, err := New(Config{Account: &fakeAccount{deployed: true}, Chain: &fakeChain{}, Bundler: b})
		require.NoError(t, err)

		_, err = c.SendTransaction(ctx, zeroCall())
		require.NoError(t, err)
		assert.Equal(t, 1, b.estimated)
		assert.False(t, b.sent.HasPaymaster())
		assert.Nil(t, b.sent.Factory)
		assert.Equal(t, int64(3), b.sent.CallGasLimit.Int64())
	})

	t.Run("sponsor failure is distinguishable", func(t *testing.T) {
		denied := errors.New("policy rejected")
		b := &fakeBundler{}
		c, err := New(Config{
			Account: &fakeAccount{},
			Chain:   &fakeChain{},
			Bundler: b,
			Middleware: Middleware{SponsorUserOperation: func(ctx context.Context, op *userop.UserOperation, ep common.Address) (*paymaster.Sponsorship, error) {
				return nil, denied
			}},
		})
		require.NoError(t, err)

		_, err = c.SendTransaction(ctx, zeroCall())
		assert.ErrorIs(t, err, ErrSponsorFailed)
		assert.ErrorIs(t, err, denied)
		assert.Nil(t, b.sent, "nothing is submitted")
	})

	t.Run("gas price middleware overrides chain", func(t *testing.T) {
		ch := &fakeChain{}
		b := &fakeBundler{}
		c, err := New(Config{
			Account: &fakeAccount{},
			Chain:   ch,
			Bundler: b,
			Middleware: Middleware{GasPrice: func(ctx context.Context) (chain.Fees, error) {
				return chain.Fees{MaxFeePerGas: big.NewInt(7), MaxPriorityFeePerGas: big.NewInt(1)}, nil
			}},
		})
		require.NoError(t, err)

		_, err = c.SendTransaction(ctx, zeroCall())
		require.NoError(t, err)
		assert.Equal(t, 0, ch.calls)
		assert.Equal(t, int64(7), b.sent.MaxFeePerGas.Int64())
	})

	t.Run("bundler and inclusion errors propagate", func(t *testing.T) {
		rejected := errors.New("AA25 invalid account nonce")
		c, err := New(Config{Account: &fakeAccount{}, Chain: &fakeChain{}, Bundler: &fakeBundler{sendErr: rejected}})
		require.NoError(t, err)
		_, err = c.SendTransaction(ctx, zeroCall())
		assert.ErrorIs(t, err, rejected)

		c, err = New(Config{Account: &fakeAccount{}, Chain: &fakeChain{}, Bundler: &fakeBundler{waitErr: bundler.ErrUserOperationFailed}})
		require.NoError(t, err)
		_, err = c.SendTransaction(ctx, zeroCall())
		assert.ErrorIs(t, err, bundler.ErrUserOperationFailed)
	})

	t.Run("signing error propagates", func(t *testing.T) {
		locked := errors.New("locked")
		b := &fakeBundler{}
		c, err := New(Config{Account: &fakeAccount{signErr: locked}, Chain: &fakeChain{}, Bundler: b})
		require.NoError(t, err)
		_, err = c.SendTransaction(ctx, zeroCall())
		assert.ErrorIs(t, err, locked)
		assert.Nil(t, b.sent)
	})
}

func TestClient_Send(t *testing.T) {
	c, err := New(Config{Account: &fakeAccount{}, Chain: &fakeChain{}, Bundler: &fakeBundler{}})
	require.NoError(t, err)

	res, err := c.Send(context.Background(), zeroCall())
	require.NoError(t, err)
	assert.Equal(t, testUserOp, res.UserOpHash)
	assert.Equal(t, testTx, res.TxHash)
	assert.True(t, res.Receipt.Success)
}

type fakePrices struct{}

func (fakePrices) GetUserOperationGasPrice(ctx context.Context) (*bundler.GasPrices, error) {
	return &bundler.GasPrices{Fast: bundler.GasPrice{
		MaxFeePerGas:         (*hexutil.Big)(big.NewInt(9)),
		MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(2)),
	}}, nil
}

func TestFastGasPrice(t *testing.T) {
	fees, err := FastGasPrice(fakePrices{})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), fees.MaxFeePerGas.Int64())
	assert.Equal(t, int64(2), fees.MaxPriorityFeePerGas.Int64())
}
