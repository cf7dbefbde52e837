package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/smartclient"
	"github.com/yolodolo42/aaflow/internal/tx"
	"github.com/yolodolo42/aaflow/internal/userop"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		identity: &fakeIdentity{wallet: ownerAddr},
		deriver:  &fakeDeriver{},
		client:   &fakeTxClient{hash: txHash},
		observer: &fakeObserver{},
		recorder: &memRecorder{},
		public:   &fakePublic{},
	}
	h.factory = &fakeFactory{client: h.client}

	ctrl, err := New(Config{
		Identity:       h.identity,
		Chain:          chain.DefaultChains()[chain.DefaultChain],
		Public:         h.public,
		Bundler:        &fakeBundler{},
		FactoryAddress: factoryAddr,
		EntryPoint:     userop.EntryPointV07,
		Derive:         h.deriver.derive,
		NewClient:      h.factory.build,
		Observer:       h.observer,
		Recorder:       h.recorder,
		OnChange: func(s State) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.phases = append(h.phases, s.Phase)
		},
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func countPhase(phases []Phase, p Phase) int {
	n := 0
	for _, got := range phases {
		if got == p {
			n++
		}
	}
	return n
}

func TestNew_RequiresDependencies(t *testing.T) {
	cfg := Config{
		Identity: &fakeIdentity{},
		Chain:    chain.DefaultChains()[chain.DefaultChain],
		Public:   &fakePublic{},
		Bundler:  &fakeBundler{},
	}
	_, err := New(cfg)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*Config){
		"identity": func(c *Config) { c.Identity = nil },
		"chain":    func(c *Config) { c.Chain = nil },
		"public":   func(c *Config) { c.Public = nil },
		"bundler":  func(c *Config) { c.Bundler = nil },
	} {
		t.Run(name, func(t *testing.T) {
			c := cfg
			mutate(&c)
			_, err := New(c)
			require.Error(t, err)
		})
	}
}

func TestController_InitialState(t *testing.T) {
	h := newHarness(t)
	s := h.ctrl.State()
	assert.Equal(t, PhaseDisconnected, s.Phase)
	assert.False(t, s.Connected)
	assert.False(t, s.Ready())
	assert.False(t, s.HasResult())
}

func TestController_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("transitions to connecting exactly once then ready", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignIn(ctx))

		phases := h.transitions()
		assert.Equal(t, 1, countPhase(phases, PhaseConnecting))
		assert.Equal(t, []Phase{PhaseConnecting, PhaseReady}, phases)

		s := h.ctrl.State()
		assert.Equal(t, PhaseReady, s.Phase)
		assert.True(t, s.Connected)
		assert.False(t, s.Loading)
		assert.Equal(t, ownerAddr, s.WalletAddress)
		assert.Equal(t, accountAddr, s.AccountAddress)
		assert.Equal(t, []string{"ok"}, h.observer.signIns)
		assert.Equal(t, []string{"ok"}, h.observer.derivations)
		assert.True(t, h.observer.ready)
	})

	t.Run("derives once with configured factory and entry point", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignIn(ctx))

		require.Equal(t, 1, h.deriver.count())
		p := h.deriver.calls[0]
		assert.Equal(t, factoryAddr, p.FactoryAddress)
		assert.Equal(t, userop.EntryPointV07, p.EntryPoint)
		require.NotNil(t, p.Signer)
		assert.Equal(t, ownerAddr, p.Signer.Address())

		require.Equal(t, 1, h.factory.count())
		cfg := h.factory.configs[0]
		assert.Equal(t, accountAddr, cfg.Account.Address())
		assert.NotNil(t, cfg.Bundler)
	})

	t.Run("unchanged dependencies do not re-derive", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignIn(ctx))
		require.NoError(t, h.ctrl.Sync(ctx))
		require.NoError(t, h.ctrl.Sync(ctx))
		require.NoError(t, h.ctrl.SignIn(ctx))

		assert.Equal(t, 1, h.deriver.count())
		assert.Equal(t, 1, h.factory.count())
		assert.Equal(t, 1, h.identity.loginCalls)
	})

	t.Run("changed wallet re-derives", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignIn(ctx))

		h.identity.mu.Lock()
		h.identity.wallet = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
		h.identity.mu.Unlock()
		require.NoError(t, h.ctrl.Sync(ctx))

		assert.Equal(t, 2, h.deriver.count())
	})

	t.Run("login failure constructs no client", func(t *testing.T) {
		h := newHarness(t)
		h.identity.loginErr = errors.New("user closed the modal")

		err := h.ctrl.SignIn(ctx)
		assert.ErrorIs(t, err, ErrConnectionFailed)
		assert.ErrorIs(t, err, h.identity.loginErr)

		s := h.ctrl.State()
		assert.Equal(t, PhaseDisconnected, s.Phase)
		assert.False(t, s.Loading)
		assert.ErrorIs(t, s.Err, ErrConnectionFailed)
		assert.Equal(t, 0, h.deriver.count())
		assert.Equal(t, 0, h.factory.count())
		assert.Equal(t, []string{"failed"}, h.observer.signIns)
	})

	t.Run("derivation failure returns to disconnected", func(t *testing.T) {
		h := newHarness(t)
		h.deriver.err = errors.New("factory reverted")

		err := h.ctrl.SignIn(ctx)
		assert.ErrorIs(t, err, ErrDerivationFailed)
		assert.ErrorIs(t, err, h.deriver.err)

		s := h.ctrl.State()
		assert.Equal(t, PhaseDisconnected, s.Phase)
		assert.False(t, s.Ready())
		assert.Equal(t, common.Address{}, s.AccountAddress)
		assert.Equal(t, 0, h.factory.count())
		assert.Equal(t, []string{"failed"}, h.observer.derivations)

		// No retry happens on its own.
		assert.Equal(t, 1, h.deriver.count())

		// Submitting afterwards never reaches a client.
		_, err = h.ctrl.SendTransaction(ctx)
		assert.ErrorIs(t, err, ErrNotReady)
	})
}

func TestController_Sync_NotConnected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Sync(context.Background()))

	assert.Equal(t, 0, h.deriver.count())
	assert.Equal(t, 0, h.factory.count())
	assert.Equal(t, PhaseDisconnected, h.ctrl.State().Phase)
}

func TestController_SendTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("before ready does not touch the client", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.ctrl.SendTransaction(ctx)
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Equal(t, 0, h.client.sendCount())
		assert.Empty(t, h.recorder.all())
		assert.Equal(t, []string{"not_ready"}, h.observer.submissions)
	})

	t.Run("displayed hash equals returned hash", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignIn(ctx))

		hash, err := h.ctrl.SendTransaction(ctx)
		require.NoError(t, err)
		assert.Equal(t, txHash, hash)

		s := h.ctrl.State()
		assert.Equal(t, PhaseResult, s.Phase)
		assert.Equal(t, hash, s.TxHash)
		assert.True(t, s.Ready())

		require.Equal(t, 1, h.client.sendCount())
		call := h.client.sends[0]
		assert.Equal(t, common.Address{}, call.To)
		assert.Equal(t, 0, call.Value.Sign())
		assert.Empty(t, call.Data)

		phases := h.transitions()
		assert.Equal(t, []Phase{PhaseConnecting, PhaseReady, PhasePending, PhaseResult}, phases)
		assert.Equal(t, []string{"included"}, h.observer.submissions)
		assert.Len(t, h.observer.observed, 1)

		records := h.recorder.all()
		require.Len(t, records, 1)
		assert.Equal(t, tx.StatusIncluded, records[0].Status)
		assert.Equal(t, hash, records[0].Hash)
		assert.Equal(t, accountAddr, records[0].Sender)
	})

	t.Run("can submit again from result", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignIn(ctx))
		_, err := h.ctrl.SendTransaction(ctx)
		require.NoError(t, err)
		_, err = h.ctrl.SendTransaction(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, h.client.sendCount())
	})

	t.Run("sponsorship denial is reported as such", func(t *testing.T) {
		h := newHarness(t)
		h.client.err = errors.Join(smartclient.ErrSponsorFailed, errors.New("policy rejected"))
		require.NoError(t, h.ctrl.SignIn(ctx))

		_, err := h.ctrl.SendTransaction(ctx)
		assert.ErrorIs(t, err, ErrSponsorshipDenied)

		s := h.ctrl.State()
		assert.Equal(t, PhaseReady, s.Phase)
		assert.False(t, s.HasResult())
		assert.ErrorIs(t, s.Err, ErrSponsorshipDenied)
		assert.Equal(t, []string{"sponsorship_denied"}, h.observer.submissions)

		records := h.recorder.all()
		require.Len(t, records, 1)
		assert.Equal(t, tx.StatusFailed, records[0].Status)
	})

	t.Run("other failures are submission failures", func(t *testing.T) {
		h := newHarness(t)
		h.client.err = errors.New("AA25 invalid account nonce")
		require.NoError(t, h.ctrl.SignIn(ctx))

		_, err := h.ctrl.SendTransaction(ctx)
		assert.ErrorIs(t, err, ErrSubmissionFailed)
		assert.NotErrorIs(t, err, ErrSponsorshipDenied)
		assert.Equal(t, 1, h.client.sendCount(), "no retry")
	})
}

func TestController_SignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("clears hash and client", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignIn(ctx))
		_, err := h.ctrl.SendTransaction(ctx)
		require.NoError(t, err)

		require.NoError(t, h.ctrl.SignOut(ctx))
		s := h.ctrl.State()
		assert.Equal(t, PhaseDisconnected, s.Phase)
		assert.False(t, s.HasResult())
		assert.Equal(t, common.Address{}, s.AccountAddress)
		assert.False(t, s.Connected)
		assert.False(t, h.observer.ready)
		assert.Equal(t, 1, h.identity.logoutCalls)

		_, err = h.ctrl.SendTransaction(ctx)
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Equal(t, 1, h.client.sendCount())
	})

	t.Run("signing in again re-derives", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignIn(ctx))
		require.NoError(t, h.ctrl.SignOut(ctx))
		require.NoError(t, h.ctrl.SignIn(ctx))
		assert.Equal(t, 2, h.deriver.count())
		assert.Equal(t, PhaseReady, h.ctrl.State().Phase)
	})

	t.Run("sign-out while signed out is harmless", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignOut(ctx))
		assert.Equal(t, PhaseDisconnected, h.ctrl.State().Phase)
	})
}

func TestController_StaleCompletions(t *testing.T) {
	ctx := context.Background()

	t.Run("derivation finishing after sign-out is discarded", func(t *testing.T) {
		h := newHarness(t)
		h.deriver.gate = make(chan struct{})
		h.deriver.entered = make(chan struct{})

		done := make(chan error, 1)
		go func() { done <- h.ctrl.SignIn(ctx) }()

		<-h.deriver.entered
		require.NoError(t, h.ctrl.SignOut(ctx))
		close(h.deriver.gate)

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrSessionEnded)
		case <-time.After(2 * time.Second):
			t.Fatal("sign-in did not return")
		}

		s := h.ctrl.State()
		assert.Equal(t, PhaseDisconnected, s.Phase)
		assert.Equal(t, common.Address{}, s.AccountAddress)
		assert.False(t, s.Ready())
	})

	t.Run("submission finishing after sign-out is discarded", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SignIn(ctx))
		h.client.gate = make(chan struct{})
		h.client.entered = make(chan struct{})

		done := make(chan error, 1)
		go func() {
			_, err := h.ctrl.SendTransaction(ctx)
			done <- err
		}()

		<-h.client.entered
		assert.Equal(t, PhasePending, h.ctrl.State().Phase)
		require.NoError(t, h.ctrl.SignOut(ctx))
		close(h.client.gate)

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrSessionEnded)
		case <-time.After(2 * time.Second):
			t.Fatal("submission did not return")
		}

		s := h.ctrl.State()
		assert.Equal(t, PhaseDisconnected, s.Phase)
		assert.False(t, s.HasResult())
	})
}

func TestController_WalletType(t *testing.T) {
	deriver := &fakeDeriver{}
	ctrl, err := New(Config{
		Identity:   &fakeIdentity{wallet: ownerAddr},
		Chain:      chain.DefaultChains()[chain.DefaultChain],
		Public:     &fakePublic{},
		Bundler:    &fakeBundler{},
		EntryPoint: userop.EntryPointV07,
		WalletType: wallet.ClientTypeKeystore,
		Derive:     deriver.derive,
		NewClient:  (&fakeFactory{client: &fakeTxClient{hash: txHash}}).build,
	})
	require.NoError(t, err)

	require.NoError(t, ctrl.SignIn(context.Background()))

	s := ctrl.State()
	assert.True(t, s.Connected)
	assert.False(t, s.Ready(), "an embedded wallet does not satisfy a keystore flow")
	assert.Zero(t, deriver.count())
}
