package flow

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseDisconnected, "disconnected"},
		{PhaseConnecting, "connecting"},
		{PhaseReady, "ready"},
		{PhasePending, "pending"},
		{PhaseResult, "ready-with-result"},
		{Phase(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.phase.String())
		})
	}
}

func TestState_Ready(t *testing.T) {
	assert.False(t, State{Phase: PhaseDisconnected}.Ready())
	assert.False(t, State{Phase: PhaseConnecting}.Ready())
	assert.False(t, State{Phase: PhasePending}.Ready())
	assert.True(t, State{Phase: PhaseReady}.Ready())
	assert.True(t, State{Phase: PhaseResult}.Ready())

	assert.False(t, State{}.HasResult())
	assert.True(t, State{TxHash: common.HexToHash("0x01")}.HasResult())
}
