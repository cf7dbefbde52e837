package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *KeystoreSigner {
	t.Helper()
	km := newTestManager(t)
	account, err := km.ImportKey(testPrivateKey, "testpassword")
	require.NoError(t, err)
	signer, err := km.GetSigner(account.Address, "testpassword")
	require.NoError(t, err)
	return signer
}

func testTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Greeting": {
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Greeting",
		Domain: apitypes.TypedDataDomain{
			Name:    "aaflow",
			ChainId: math.NewHexOrDecimal256(84532),
		},
		Message: apitypes.TypedDataMessage{"contents": "hello"},
	}
}

// recoverSigner undoes the 27/28 V shift and recovers the address.
func recoverSigner(t *testing.T, hash, sig []byte) string {
	t.Helper()
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	pub, err := crypto.SigToPub(hash, raw)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub).Hex()
}

func TestKeystoreSigner_SignTransaction(t *testing.T) {
	t.Run("signs transaction successfully", func(t *testing.T) {
		signer := newTestSigner(t)
		tx := types.NewTransaction(0, signer.Address(), big.NewInt(1000), 21000, big.NewInt(1000000000), nil)

		signedTx, err := signer.SignTransaction(tx, big.NewInt(84532))
		require.NoError(t, err)

		from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(84532)), signedTx)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), from)
	})

	t.Run("returns error when locked", func(t *testing.T) {
		signer := newTestSigner(t)
		signer.Lock()

		tx := types.NewTransaction(0, signer.Address(), big.NewInt(1000), 21000, big.NewInt(1000000000), nil)
		_, err := signer.SignTransaction(tx, big.NewInt(1))
		assert.ErrorIs(t, err, ErrAccountLocked)
	})
}

func TestKeystoreSigner_SignMessage(t *testing.T) {
	t.Run("signs message with EIP-191 prefix", func(t *testing.T) {
		signer := newTestSigner(t)
		message := []byte("Hello, Ethereum!")

		sig, err := signer.SignMessage(message)
		require.NoError(t, err)
		require.Len(t, sig, 65)
		assert.True(t, sig[64] == 27 || sig[64] == 28)
		assert.Equal(t, signer.Address().Hex(), recoverSigner(t, accounts.TextHash(message), sig))
	})

	t.Run("signs empty message", func(t *testing.T) {
		sig, err := newTestSigner(t).SignMessage([]byte{})
		require.NoError(t, err)
		require.Len(t, sig, 65)
	})
}

func TestKeystoreSigner_SignTypedData(t *testing.T) {
	t.Run("signs EIP-712 digest", func(t *testing.T) {
		signer := newTestSigner(t)
		td := testTypedData()

		sig, err := signer.SignTypedData(td)
		require.NoError(t, err)

		hash, _, err := apitypes.TypedDataAndHash(td)
		require.NoError(t, err)
		assert.Equal(t, signer.Address().Hex(), recoverSigner(t, hash, sig))
	})

	t.Run("rejects malformed typed data", func(t *testing.T) {
		td := testTypedData()
		td.PrimaryType = "Missing"
		_, err := newTestSigner(t).SignTypedData(td)
		require.Error(t, err)
	})
}

func TestKeystoreSigner_Lock(t *testing.T) {
	t.Run("blocks signing after lock", func(t *testing.T) {
		signer := newTestSigner(t)
		_, err := signer.SignMessage([]byte("test"))
		require.NoError(t, err)

		signer.Lock()
		assert.True(t, signer.Locked())

		_, err = signer.SignMessage([]byte("test"))
		assert.ErrorIs(t, err, ErrAccountLocked)
		_, err = signer.SignTypedData(testTypedData())
		assert.ErrorIs(t, err, ErrAccountLocked)
	})

	t.Run("can be called multiple times", func(t *testing.T) {
		signer := newTestSigner(t)
		signer.Lock()
		signer.Lock()
		signer.Lock()
	})
}
