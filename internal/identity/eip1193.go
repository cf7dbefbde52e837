package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

// keySigner is what the EIP-1193 handler needs from a key holder.
type keySigner interface {
	Address() common.Address
	SignMessage(message []byte) ([]byte, error)
	SignTypedData(typedData apitypes.TypedData) ([]byte, error)
}

// requestHandler serves EIP-1193 requests for one key. Signing methods are
// answered locally; everything else goes to the chain RPC if one is attached.
type requestHandler struct {
	mu           sync.RWMutex
	signer       keySigner
	chainID      *big.Int
	rpc          *rpc.Client
	disconnected bool
}

func newRequestHandler(signer keySigner, chainID *big.Int, rc *rpc.Client) *requestHandler {
	return &requestHandler{
		signer:  signer,
		chainID: new(big.Int).Set(chainID),
		rpc:     rc,
	}
}

func (h *requestHandler) disconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = true
}

// Request implements wallet.Provider.
func (h *requestHandler) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.disconnected {
		return nil, &wallet.ProviderError{Code: wallet.CodeDisconnected, Message: "provider is disconnected"}
	}

	args, err := encodeParams(params)
	if err != nil {
		return nil, err
	}

	switch method {
	case "eth_accounts", "eth_requestAccounts":
		return json.Marshal([]common.Address{h.signer.Address()})
	case "eth_chainId":
		return json.Marshal((*hexutil.Big)(h.chainID))
	case "personal_sign":
		if len(args) < 2 {
			return nil, invalidParams(method)
		}
		return h.signMessage(args[0], args[1])
	case "eth_sign":
		if len(args) < 2 {
			return nil, invalidParams(method)
		}
		return h.signMessage(args[1], args[0])
	case "eth_signTypedData_v4":
		if len(args) < 2 {
			return nil, invalidParams(method)
		}
		return h.signTypedData(args[0], args[1])
	case "eth_sendTransaction", "eth_signTransaction":
		return nil, unsupported(method)
	}

	if h.rpc == nil {
		return nil, unsupported(method)
	}
	var out json.RawMessage
	if err := h.rpc.CallContext(ctx, &out, method, params...); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *requestHandler) signMessage(data, address json.RawMessage) (json.RawMessage, error) {
	if err := h.checkAddress(address); err != nil {
		return nil, err
	}
	var message hexutil.Bytes
	if err := json.Unmarshal(data, &message); err != nil {
		// Plain strings are signed as UTF-8.
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, invalidParams("personal_sign")
		}
		message = []byte(text)
	}
	sig, err := h.signer.SignMessage(message)
	if err != nil {
		return nil, signError(err)
	}
	return json.Marshal(hexutil.Bytes(sig))
}

func (h *requestHandler) signTypedData(address, data json.RawMessage) (json.RawMessage, error) {
	if err := h.checkAddress(address); err != nil {
		return nil, err
	}
	// v4 carries the typed data as a JSON string; accept an object too.
	payload := []byte(data)
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		payload = []byte(encoded)
	}
	var typedData apitypes.TypedData
	if err := json.Unmarshal(payload, &typedData); err != nil {
		return nil, invalidParams("eth_signTypedData_v4")
	}
	sig, err := h.signer.SignTypedData(typedData)
	if err != nil {
		return nil, signError(err)
	}
	return json.Marshal(hexutil.Bytes(sig))
}

func (h *requestHandler) checkAddress(raw json.RawMessage) error {
	var addr common.Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		return &wallet.ProviderError{Code: wallet.CodeUnauthorized, Message: "invalid account"}
	}
	if addr != h.signer.Address() {
		return &wallet.ProviderError{Code: wallet.CodeUnauthorized, Message: fmt.Sprintf("account %s is not authorized", addr.Hex())}
	}
	return nil
}

func encodeParams(params []any) ([]json.RawMessage, error) {
	if len(params) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return args, nil
}

func signError(err error) error {
	if errors.Is(err, wallet.ErrAccountLocked) {
		return &wallet.ProviderError{Code: wallet.CodeDisconnected, Message: err.Error()}
	}
	return err
}

func unsupported(method string) error {
	return &wallet.ProviderError{Code: wallet.CodeUnsupportedMethod, Message: fmt.Sprintf("method %s is not supported", method)}
}

func invalidParams(method string) error {
	return fmt.Errorf("invalid params for %s", method)
}
