// Package userop models ERC-4337 v0.7 user operations in the unpacked form
// bundlers and paymasters exchange over JSON-RPC.
package userop

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EntryPointV07 is the canonical EntryPoint v0.7 deployment address.
var EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// UserOperation is an unpacked v0.7 user operation. Optional factory and
// paymaster fields are nil when unused.
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// rpcUserOperation is the hex-encoded wire form.
type rpcUserOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

// MarshalJSON encodes the operation with hex quantities. Unset gas fields are
// sent as 0x0 so that estimation endpoints accept the payload.
func (op *UserOperation) MarshalJSON() ([]byte, error) {
	out := rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		Factory:              op.Factory,
		CallData:             hexutil.Bytes(nonNilBytes(op.CallData)),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Paymaster:            op.Paymaster,
		Signature:            hexutil.Bytes(nonNilBytes(op.Signature)),
	}
	if op.Factory != nil {
		out.FactoryData = hexutil.Bytes(nonNilBytes(op.FactoryData))
	}
	if op.Paymaster != nil {
		out.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		out.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		out.PaymasterData = hexutil.Bytes(nonNilBytes(op.PaymasterData))
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the hex wire form.
func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var in rpcUserOperation
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:                        in.Sender,
		Nonce:                         (*big.Int)(in.Nonce),
		Factory:                       in.Factory,
		FactoryData:                   in.FactoryData,
		CallData:                      in.CallData,
		CallGasLimit:                  (*big.Int)(in.CallGasLimit),
		VerificationGasLimit:          (*big.Int)(in.VerificationGasLimit),
		PreVerificationGas:            (*big.Int)(in.PreVerificationGas),
		MaxFeePerGas:                  (*big.Int)(in.MaxFeePerGas),
		MaxPriorityFeePerGas:          (*big.Int)(in.MaxPriorityFeePerGas),
		Paymaster:                     in.Paymaster,
		PaymasterVerificationGasLimit: (*big.Int)(in.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       (*big.Int)(in.PaymasterPostOpGasLimit),
		PaymasterData:                 in.PaymasterData,
		Signature:                     in.Signature,
	}
	return nil
}

// HasPaymaster reports whether a sponsor has been attached.
func (op *UserOperation) HasPaymaster() bool {
	return op.Paymaster != nil && *op.Paymaster != (common.Address{})
}

// Copy returns a deep-enough copy for mutation by middleware.
func (op *UserOperation) Copy() *UserOperation {
	cp := *op
	cp.FactoryData = append([]byte(nil), op.FactoryData...)
	cp.CallData = append([]byte(nil), op.CallData...)
	cp.PaymasterData = append([]byte(nil), op.PaymasterData...)
	cp.Signature = append([]byte(nil), op.Signature...)
	return &cp
}

// GasEstimate is the gas portion of an estimation or sponsorship answer.
type GasEstimate struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

// Apply copies the non-nil estimate fields onto op.
func (g *GasEstimate) Apply(op *UserOperation) {
	if g.PreVerificationGas != nil {
		op.PreVerificationGas = g.PreVerificationGas.ToInt()
	}
	if g.VerificationGasLimit != nil {
		op.VerificationGasLimit = g.VerificationGasLimit.ToInt()
	}
	if g.CallGasLimit != nil {
		op.CallGasLimit = g.CallGasLimit.ToInt()
	}
	if g.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = g.PaymasterVerificationGasLimit.ToInt()
	}
	if g.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = g.PaymasterPostOpGasLimit.ToInt()
	}
}

func hexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(big.Int))
	}
	return (*hexutil.Big)(v)
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
