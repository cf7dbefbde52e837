// Package flow drives sign-in, smart account derivation and the demo
// transaction for one user session.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yolodolo42/aaflow/internal/account"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/identity"
	"github.com/yolodolo42/aaflow/internal/smartclient"
	"github.com/yolodolo42/aaflow/internal/tx"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

// PublicClient is the chain access derivation and fee estimation use.
type PublicClient interface {
	account.ChainReader
	smartclient.Chain
}

// TransactionClient sends calls from the derived smart account.
type TransactionClient interface {
	Address() common.Address
	SendTransaction(ctx context.Context, call account.Call) (common.Hash, error)
}

// Deriver derives the smart account for a signer.
type Deriver func(ctx context.Context, reader account.ChainReader, p account.Params) (smartclient.Account, error)

// ClientFactory builds a transaction client.
type ClientFactory func(cfg smartclient.Config) (TransactionClient, error)

// Observer receives flow metrics. *metrics.Registry implements it.
type Observer interface {
	IncSignIn(result string)
	IncDerivation(result string)
	IncSubmission(result string)
	ObserveSubmission(d time.Duration)
	SetReady(ready bool)
}

// Recorder persists submitted transactions. *history.Store implements it.
type Recorder interface {
	Put(r *tx.Record) error
}

// Config wires a controller.
type Config struct {
	Identity       identity.Provider
	Chain          *chain.ChainConfig
	Public         PublicClient
	Bundler        smartclient.Bundler
	Sponsor        smartclient.SponsorFunc  // optional
	GasPrice       smartclient.GasPriceFunc // optional
	FactoryAddress common.Address
	EntryPoint     common.Address
	WalletType     wallet.ClientType // defaults to embedded

	Derive    Deriver       // defaults to SimpleAccount derivation
	NewClient ClientFactory // defaults to smartclient.New
	Observer  Observer      // optional
	Recorder  Recorder      // optional
	OnChange  func(State)   // optional; called after every transition
}

// depKey is what derivation depends on. Derivation re-runs only when it changes.
type depKey struct {
	connected bool
	wallet    common.Address
	public    PublicClient
}

// Controller owns the session state and the smart account client. All
// methods are safe for concurrent use.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    State
	client   TransactionClient
	gen      uint64 // bumped on sign-out
	derived  *depKey
	deriving *depKey
}

// New validates cfg and returns a disconnected controller.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Identity == nil:
		return nil, errors.New("identity provider is required")
	case cfg.Chain == nil:
		return nil, errors.New("chain is required")
	case cfg.Public == nil:
		return nil, errors.New("public client is required")
	case cfg.Bundler == nil:
		return nil, errors.New("bundler is required")
	}
	if cfg.WalletType == "" {
		cfg.WalletType = wallet.ClientTypeEmbedded
	}
	if cfg.Derive == nil {
		cfg.Derive = DeriveSimpleAccount
	}
	if cfg.NewClient == nil {
		cfg.NewClient = NewSmartClient
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Controller{cfg: cfg}, nil
}

// DeriveSimpleAccount is the default Deriver.
func DeriveSimpleAccount(ctx context.Context, reader account.ChainReader, p account.Params) (smartclient.Account, error) {
	acct, err := account.ToSimpleSmartAccount(ctx, reader, p)
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// NewSmartClient is the default ClientFactory.
func NewSmartClient(cfg smartclient.Config) (TransactionClient, error) {
	c, err := smartclient.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SignIn logs the user in and derives their smart account. Calling it while
// connecting or connected only re-runs the derivation effect.
func (c *Controller) SignIn(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase != PhaseDisconnected {
		c.mu.Unlock()
		return c.Sync(ctx)
	}
	c.state.Phase = PhaseConnecting
	c.state.Loading = true
	c.state.Err = nil
	gen := c.gen
	snap := c.state
	c.mu.Unlock()
	c.notify(snap)

	if err := c.cfg.Identity.Login(ctx); err != nil {
		c.cfg.Observer.IncSignIn("failed")
		err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		c.update(gen, func(s *State) {
			s.Phase = PhaseDisconnected
			s.Loading = false
			s.Err = err
		})
		slog.Warn("sign-in failed", "error", err)
		return err
	}
	c.cfg.Observer.IncSignIn("ok")

	return c.Sync(ctx)
}

// Sync runs the derivation effect: when the identity is connected with a
// wallet of the configured type and the dependencies differ from the last successful run,
// the smart account is derived and a transaction client built. With
// unchanged dependencies it does nothing.
func (c *Controller) Sync(ctx context.Context) error {
	connected := c.cfg.Identity.Authenticated()
	w, hasWallet := identity.FindWallet(c.cfg.Identity.Wallets(), c.cfg.WalletType)

	c.mu.Lock()
	c.state.Connected = connected
	if !connected || !hasWallet {
		c.mu.Unlock()
		return nil
	}
	key := depKey{connected: connected, wallet: w.Address, public: c.cfg.Public}
	if (c.derived != nil && *c.derived == key) || (c.deriving != nil && *c.deriving == key) {
		c.mu.Unlock()
		return nil
	}
	c.deriving = &key
	changed := c.state.Phase != PhaseConnecting
	c.state.Phase = PhaseConnecting
	c.state.Loading = true
	c.state.WalletAddress = w.Address
	c.state.Err = nil
	gen := c.gen
	snap := c.state
	c.mu.Unlock()
	if changed {
		c.notify(snap)
	}

	client, err := c.build(ctx, w)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		slog.Info("discarding derivation from ended session", "wallet", w.Address.Hex())
		return ErrSessionEnded
	}
	c.deriving = nil
	if err != nil {
		c.client = nil
		c.state.Phase = PhaseDisconnected
		c.state.Loading = false
		c.state.AccountAddress = common.Address{}
		c.state.Err = err
		snap = c.state
		c.mu.Unlock()
		c.cfg.Observer.IncDerivation("failed")
		c.cfg.Observer.SetReady(false)
		c.notify(snap)
		slog.Warn("smart account setup failed", "wallet", w.Address.Hex(), "error", err)
		return err
	}
	c.client = client
	c.derived = &key
	c.state.Phase = PhaseReady
	c.state.Loading = false
	c.state.AccountAddress = client.Address()
	c.state.TxHash = common.Hash{}
	snap = c.state
	c.mu.Unlock()

	c.cfg.Observer.IncDerivation("ok")
	c.cfg.Observer.SetReady(true)
	c.notify(snap)
	slog.Info("smart account ready", "wallet", w.Address.Hex(), "account", snap.AccountAddress.Hex())
	return nil
}

// build runs provider → wallet client → signer → account → client.
func (c *Controller) build(ctx context.Context, w identity.ConnectedWallet) (TransactionClient, error) {
	provider, err := w.EthereumProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	owner := w.Address
	walletClient := wallet.NewClient(provider, &owner, c.cfg.Chain)

	signer, err := account.FromWalletClient(walletClient)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}

	acct, err := c.cfg.Derive(ctx, c.cfg.Public, account.Params{
		EntryPoint:     c.cfg.EntryPoint,
		Signer:         signer,
		FactoryAddress: c.cfg.FactoryAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}

	client, err := c.cfg.NewClient(smartclient.Config{
		Account: acct,
		Chain:   c.cfg.Public,
		Bundler: c.cfg.Bundler,
		Middleware: smartclient.Middleware{
			SponsorUserOperation: c.cfg.Sponsor,
			GasPrice:             c.cfg.GasPrice,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return client, nil
}

// SendTransaction submits the demo call and returns the transaction hash
// unchanged. Before the client is ready it returns ErrNotReady without
// touching the client.
func (c *Controller) SendTransaction(ctx context.Context) (common.Hash, error) {
	c.mu.Lock()
	if c.client == nil || !c.state.Ready() {
		c.mu.Unlock()
		c.cfg.Observer.IncSubmission("not_ready")
		return common.Hash{}, ErrNotReady
	}
	client := c.client
	prev := c.state.Phase
	c.state.Phase = PhasePending
	c.state.Loading = true
	c.state.Err = nil
	gen := c.gen
	snap := c.state
	c.mu.Unlock()
	c.notify(snap)

	call := tx.DemoCall()
	record := tx.NewRecord(c.cfg.Chain.Name, client.Address(), call)
	c.record(record)

	start := time.Now()
	hash, err := client.SendTransaction(ctx, call)
	if err != nil {
		kind := ErrSubmissionFailed
		if errors.Is(err, smartclient.ErrSponsorFailed) {
			kind = ErrSponsorshipDenied
		}
		err = fmt.Errorf("%w: %w", kind, err)
		record.Fail(err)
	} else {
		record.Complete(hash)
	}
	c.record(record)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.cfg.Observer.IncSubmission("discarded")
		slog.Info("discarding submission from ended session", "record", record.ID)
		return common.Hash{}, ErrSessionEnded
	}
	c.state.Loading = false
	if err != nil {
		c.state.Phase = prev
		c.state.Err = err
	} else {
		c.state.Phase = PhaseResult
		c.state.TxHash = hash
	}
	snap = c.state
	c.mu.Unlock()
	c.notify(snap)

	if err != nil {
		if errors.Is(err, ErrSponsorshipDenied) {
			c.cfg.Observer.IncSubmission("sponsorship_denied")
		} else {
			c.cfg.Observer.IncSubmission("failed")
		}
		slog.Warn("demo transaction failed", "record", record.ID, "error", err)
		return common.Hash{}, err
	}
	c.cfg.Observer.IncSubmission("included")
	c.cfg.Observer.ObserveSubmission(time.Since(start))
	slog.Info("demo transaction included", "record", record.ID, "txHash", hash.Hex())
	return hash, nil
}

// SignOut ends the session: the client and displayed hash are cleared and any
// in-flight derivation or submission is discarded when it completes.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	c.client = nil
	c.derived = nil
	c.deriving = nil
	c.state = State{Phase: PhaseDisconnected}
	snap := c.state
	c.mu.Unlock()

	c.cfg.Observer.SetReady(false)
	c.notify(snap)

	if err := c.cfg.Identity.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *Controller) update(gen uint64, fn func(*State)) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	fn(&c.state)
	snap := c.state
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Controller) notify(s State) {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(s)
	}
}

func (c *Controller) record(r *tx.Record) {
	if c.cfg.Recorder == nil {
		return
	}
	if err := c.cfg.Recorder.Put(r); err != nil {
		slog.Warn("failed to record transaction", "record", r.ID, "error", err)
	}
}

type nopObserver struct{}

func (nopObserver) IncSignIn(string)                {}
func (nopObserver) IncDerivation(string)            {}
func (nopObserver) IncSubmission(string)            {}
func (nopObserver) ObserveSubmission(time.Duration) {}
func (nopObserver) SetReady(bool)                   {}
