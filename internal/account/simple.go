// Package account derives SimpleAccount smart accounts for an owner key.
package account

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/yolodolo42/aaflow/internal/userop"
)

var (
	ErrUnsupportedEntryPoint = errors.New("unsupported entry point")
	ErrNoFactory             = errors.New("factory address is required")
	ErrNoSigner              = errors.New("signer is required")
	ErrNoCalls               = errors.New("at least one call is required")
)

// dummySignature is a well-formed ECDSA signature used for gas estimation.
var dummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// ChainReader is the read access derivation needs.
type ChainReader interface {
	ChainID() *big.Int
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Call is a single call executed by the smart account.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Params selects which SimpleAccount to derive.
type Params struct {
	EntryPoint     common.Address
	Signer         Signer
	FactoryAddress common.Address
	Index          *big.Int // salt; nil means 0
}

// SimpleAccount is a counterfactual SimpleAccount owned by a single signer.
type SimpleAccount struct {
	address    common.Address
	entryPoint common.Address
	factory    common.Address
	index      *big.Int
	chainID    *big.Int
	owner      Signer
	reader     ChainReader

	mu       sync.Mutex
	deployed bool
}

// ToSimpleSmartAccount derives the SimpleAccount for p.Signer. The address
// comes from the factory, so the account need not be deployed yet.
func ToSimpleSmartAccount(ctx context.Context, reader ChainReader, p Params) (*SimpleAccount, error) {
	if p.EntryPoint != userop.EntryPointV07 {
		return nil, fmt.Errorf("%w: %s (only v0.7 %s)", ErrUnsupportedEntryPoint, p.EntryPoint.Hex(), userop.EntryPointV07.Hex())
	}
	if p.FactoryAddress == (common.Address{}) {
		return nil, ErrNoFactory
	}
	if p.Signer == nil {
		return nil, ErrNoSigner
	}
	index := new(big.Int)
	if p.Index != nil {
		index.Set(p.Index)
	}

	owner := p.Signer.Address()
	input, err := factoryABI.Pack("getAddress", owner, index)
	if err != nil {
		return nil, fmt.Errorf("encode getAddress: %w", err)
	}
	factory := p.FactoryAddress
	out, err := reader.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: input})
	if err != nil {
		return nil, fmt.Errorf("factory getAddress: %w", err)
	}
	values, err := factoryABI.Unpack("getAddress", out)
	if err != nil {
		return nil, fmt.Errorf("decode getAddress: %w", err)
	}
	address, ok := values[0].(common.Address)
	if !ok || address == (common.Address{}) {
		return nil, fmt.Errorf("factory %s returned no account address", factory.Hex())
	}

	return &SimpleAccount{
		address:    address,
		entryPoint: p.EntryPoint,
		factory:    factory,
		index:      index,
		chainID:    new(big.Int).Set(reader.ChainID()),
		owner:      p.Signer,
		reader:     reader,
	}, nil
}

// Address is the smart account address.
func (a *SimpleAccount) Address() common.Address { return a.address }

// EntryPoint is the entry point the account is bound to.
func (a *SimpleAccount) EntryPoint() common.Address { return a.entryPoint }

// Owner is the address of the signing key.
func (a *SimpleAccount) Owner() common.Address { return a.owner.Address() }

// ChainID is the chain the account was derived on.
func (a *SimpleAccount) ChainID() *big.Int { return new(big.Int).Set(a.chainID) }

// IsDeployed reports whether the account has code. Once seen deployed it is
// not queried again.
func (a *SimpleAccount) IsDeployed(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.deployed {
		return true, nil
	}
	code, err := a.reader.CodeAt(ctx, a.address)
	if err != nil {
		return false, fmt.Errorf("get code: %w", err)
	}
	a.deployed = len(code) > 0
	return a.deployed, nil
}

// FactoryArgs returns the factory and createAccount call data while the
// account is undeployed, and nil afterwards.
func (a *SimpleAccount) FactoryArgs(ctx context.Context) (*common.Address, []byte, error) {
	deployed, err := a.IsDeployed(ctx)
	if err != nil {
		return nil, nil, err
	}
	if deployed {
		return nil, nil, nil
	}
	data, err := factoryABI.Pack("createAccount", a.owner.Address(), a.index)
	if err != nil {
		return nil, nil, fmt.Errorf("encode createAccount: %w", err)
	}
	factory := a.factory
	return &factory, data, nil
}

// Nonce reads the account's nonce for key 0 from the entry point.
func (a *SimpleAccount) Nonce(ctx context.Context) (*big.Int, error) {
	input, err := epABI.Pack("getNonce", a.address, new(big.Int))
	if err != nil {
		return nil, fmt.Errorf("encode getNonce: %w", err)
	}
	ep := a.entryPoint
	out, err := a.reader.CallContract(ctx, ethereum.CallMsg{To: &ep, Data: input})
	if err != nil {
		return nil, fmt.Errorf("entry point getNonce: %w", err)
	}
	values, err := epABI.Unpack("getNonce", out)
	if err != nil {
		return nil, fmt.Errorf("decode getNonce: %w", err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.New("decode getNonce: unexpected type")
	}
	return nonce, nil
}

// EncodeCallData encodes calls as execute, or executeBatch for more than one.
func (a *SimpleAccount) EncodeCallData(calls ...Call) ([]byte, error) {
	switch len(calls) {
	case 0:
		return nil, ErrNoCalls
	case 1:
		c := calls[0]
		return accountABI.Pack("execute", c.To, valueOrZero(c.Value), bytesOrEmpty(c.Data))
	}

	dests := make([]common.Address, len(calls))
	values := make([]*big.Int, len(calls))
	datas := make([][]byte, len(calls))
	for i, c := range calls {
		dests[i] = c.To
		values[i] = valueOrZero(c.Value)
		datas[i] = bytesOrEmpty(c.Data)
	}
	return accountABI.Pack("executeBatch", dests, values, datas)
}

// DummySignature is used in place of a real signature during estimation.
func (a *SimpleAccount) DummySignature() []byte {
	return append([]byte(nil), dummySignature...)
}

// SignUserOperation signs the operation hash with the owner key (EIP-191).
func (a *SimpleAccount) SignUserOperation(ctx context.Context, op *userop.UserOperation) ([]byte, error) {
	hash, err := op.Hash(a.entryPoint, a.chainID)
	if err != nil {
		return nil, fmt.Errorf("hash user operation: %w", err)
	}
	sig, err := a.owner.SignMessage(ctx, hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("sign user operation: %w", err)
	}
	return sig, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func bytesOrEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
