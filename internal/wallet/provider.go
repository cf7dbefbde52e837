package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Provider is an EIP-1193 request interface. Params are JSON-encoded as a
// positional array; the raw JSON result is returned undecoded.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
)

// ProviderError is an EIP-1193 ProviderRpcError.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode satisfies go-ethereum's rpc.Error so forwarded errors keep their code.
func (e *ProviderError) ErrorCode() int {
	return e.Code
}

// IsProviderError reports whether err carries the given EIP-1193 code.
func IsProviderError(err error, code int) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
}
