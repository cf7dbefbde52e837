package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Packed is the on-chain PackedUserOperation layout of EntryPoint v0.7.
type Packed struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	innerArgs = abi.Arguments{
		{Type: addressT}, // sender
		{Type: uint256T}, // nonce
		{Type: bytes32T}, // keccak(initCode)
		{Type: bytes32T}, // keccak(callData)
		{Type: bytes32T}, // accountGasLimits
		{Type: uint256T}, // preVerificationGas
		{Type: bytes32T}, // gasFees
		{Type: bytes32T}, // keccak(paymasterAndData)
	}
	outerArgs = abi.Arguments{
		{Type: bytes32T}, // inner hash
		{Type: addressT}, // entry point
		{Type: uint256T}, // chain id
	}
)

// Pack converts op into the EntryPoint v0.7 packed layout.
func (op *UserOperation) Pack() (*Packed, error) {
	accountGasLimits, err := packUint128Pair(op.VerificationGasLimit, op.CallGasLimit)
	if err != nil {
		return nil, fmt.Errorf("account gas limits: %w", err)
	}
	gasFees, err := packUint128Pair(op.MaxPriorityFeePerGas, op.MaxFeePerGas)
	if err != nil {
		return nil, fmt.Errorf("gas fees: %w", err)
	}

	var initCode []byte
	if op.Factory != nil {
		initCode = append(op.Factory.Bytes(), op.FactoryData...)
	}

	var paymasterAndData []byte
	if op.Paymaster != nil {
		limits, err := packUint128Pair(op.PaymasterVerificationGasLimit, op.PaymasterPostOpGasLimit)
		if err != nil {
			return nil, fmt.Errorf("paymaster gas limits: %w", err)
		}
		paymasterAndData = append(paymasterAndData, op.Paymaster.Bytes()...)
		paymasterAndData = append(paymasterAndData, limits[:]...)
		paymasterAndData = append(paymasterAndData, op.PaymasterData...)
	}

	return &Packed{
		Sender:             op.Sender,
		Nonce:              orZero(op.Nonce),
		InitCode:           initCode,
		CallData:           op.CallData,
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: orZero(op.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
		Signature:          op.Signature,
	}, nil
}

// Hash computes the user operation hash the account signs:
// keccak256(abi.encode(keccak256(packed without signature), entryPoint, chainId)).
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.Pack()
	if err != nil {
		return common.Hash{}, err
	}

	inner, err := innerArgs.Pack(
		packed.Sender,
		packed.Nonce,
		crypto.Keccak256Hash(packed.InitCode),
		crypto.Keccak256Hash(packed.CallData),
		packed.AccountGasLimits,
		packed.PreVerificationGas,
		packed.GasFees,
		crypto.Keccak256Hash(packed.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode user operation: %w", err)
	}

	outer, err := outerArgs.Pack(crypto.Keccak256Hash(inner), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(outer), nil
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// packUint128Pair places hi in the upper and lo in the lower 16 bytes.
func packUint128Pair(hi, lo *big.Int) ([32]byte, error) {
	var out [32]byte
	hi, lo = orZero(hi), orZero(lo)
	if hi.Sign() < 0 || hi.Cmp(maxUint128) > 0 || lo.Sign() < 0 || lo.Cmp(maxUint128) > 0 {
		return out, fmt.Errorf("value out of uint128 range")
	}
	hi.FillBytes(out[:16])
	lo.FillBytes(out[16:])
	return out, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
