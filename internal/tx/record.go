// Package tx describes the transactions the demo submits.
package tx

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/yolodolo42/aaflow/internal/account"
)

// Status is where a record is in its lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusIncluded Status = "included"
	StatusFailed   Status = "failed"
)

// Record is one demo transaction submission.
type Record struct {
	ID        string
	Chain     string
	Sender    common.Address // smart account
	Recipient common.Address
	Value     *big.Int
	Data      []byte
	Hash      common.Hash // zero until included
	Status    Status
	Error     string
	CreatedAt time.Time
}

// DemoCall is the no-op call the demo sends: nothing to the zero address.
func DemoCall() account.Call {
	return account.Call{
		To:    common.Address{},
		Value: new(big.Int),
		Data:  []byte{},
	}
}

// NewRecord starts a pending record for call.
func NewRecord(chain string, sender common.Address, call account.Call) *Record {
	value := new(big.Int)
	if call.Value != nil {
		value.Set(call.Value)
	}
	return &Record{
		ID:        uuid.NewString(),
		Chain:     chain,
		Sender:    sender,
		Recipient: call.To,
		Value:     value,
		Data:      append([]byte{}, call.Data...),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Complete marks the record included under hash.
func (r *Record) Complete(hash common.Hash) {
	r.Hash = hash
	r.Status = StatusIncluded
	r.Error = ""
}

// Fail marks the record failed.
func (r *Record) Fail(err error) {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
}

// Terminal reports whether the record will not change again.
func (r *Record) Terminal() bool {
	return r.Status == StatusIncluded || r.Status == StatusFailed
}

func (r *Record) String() string {
	switch r.Status {
	case StatusIncluded:
		return fmt.Sprintf("%s %s included in %s", r.ID, r.Chain, r.Hash.Hex())
	case StatusFailed:
		return fmt.Sprintf("%s %s failed: %s", r.ID, r.Chain, r.Error)
	default:
		return fmt.Sprintf("%s %s pending", r.ID, r.Chain)
	}
}
