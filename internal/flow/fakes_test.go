package flow

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/yolodolo42/aaflow/internal/account"
	"github.com/yolodolo42/aaflow/internal/bundler"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/identity"
	"github.com/yolodolo42/aaflow/internal/smartclient"
	"github.com/yolodolo42/aaflow/internal/tx"
	"github.com/yolodolo42/aaflow/internal/userop"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

var (
	ownerAddr   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	accountAddr = common.HexToAddress("0x5a6b47F4131bf1feAFA56A05573314BcF44C9149")
	factoryAddr = common.HexToAddress("0x91E60e0613810449d098b0b5Ec8b51A0FE8c8985")
	txHash      = common.HexToHash("0x6b6f4e0dbc3c8a4b3e1a8d0c9d2f7e5a4b3c2d1e0f9a8b7c6d5e4f3a2b1c0d9e")
)

type fakeIdentity struct {
	mu          sync.Mutex
	loginErr    error
	authed      bool
	wallet      common.Address
	loginCalls  int
	logoutCalls int
}

func (f *fakeIdentity) Login(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.loginErr != nil {
		return f.loginErr
	}
	f.authed = true
	return nil
}

func (f *fakeIdentity) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	f.authed = false
	return nil
}

func (f *fakeIdentity) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeIdentity) Wallets() []identity.ConnectedWallet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authed {
		return nil
	}
	return []identity.ConnectedWallet{
		identity.NewConnectedWallet(wallet.ClientTypeEmbedded, f.wallet, func(ctx context.Context) (wallet.Provider, error) {
			return nopProvider{}, nil
		}),
	}
}

type nopProvider struct{}

func (nopProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	return nil, &wallet.ProviderError{Code: wallet.CodeUnsupportedMethod, Message: method}
}

type fakePublic struct{}

func (*fakePublic) ChainID() *big.Int { return big.NewInt(84532) }
func (*fakePublic) CodeAt(ctx context.Context, a common.Address) ([]byte, error) {
	return nil, nil
}
func (*fakePublic) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return nil, nil
}
func (*fakePublic) EstimateFeesPerGas(ctx context.Context) (chain.Fees, error) {
	return chain.Fees{MaxFeePerGas: big.NewInt(1), MaxPriorityFeePerGas: big.NewInt(1)}, nil
}

type fakeBundler struct{}

func (*fakeBundler) SendUserOperation(ctx context.Context, op *userop.UserOperation, ep common.Address) (common.Hash, error) {
	return common.Hash{}, nil
}
func (*fakeBundler) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, ep common.Address) (*userop.GasEstimate, error) {
	return &userop.GasEstimate{}, nil
}
func (*fakeBundler) WaitForReceipt(ctx context.Context, h common.Hash) (*bundler.Receipt, error) {
	return &bundler.Receipt{Success: true}, nil
}

type fakeAccount struct{}

func (fakeAccount) Address() common.Address    { return accountAddr }
func (fakeAccount) EntryPoint() common.Address { return userop.EntryPointV07 }
func (fakeAccount) Nonce(ctx context.Context) (*big.Int, error) {
	return new(big.Int), nil
}
func (fakeAccount) FactoryArgs(ctx context.Context) (*common.Address, []byte, error) {
	return nil, nil, nil
}
func (fakeAccount) EncodeCallData(calls ...account.Call) ([]byte, error) { return nil, nil }
func (fakeAccount) DummySignature() []byte                               { return nil }
func (fakeAccount) SignUserOperation(ctx context.Context, op *userop.UserOperation) ([]byte, error) {
	return nil, nil
}

// fakeDeriver records each derivation. When gate is set it blocks until the
// gate is closed.
type fakeDeriver struct {
	mu      sync.Mutex
	calls   []account.Params
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (d *fakeDeriver) derive(ctx context.Context, reader account.ChainReader, p account.Params) (smartclient.Account, error) {
	d.mu.Lock()
	d.calls = append(d.calls, p)
	gate, entered, err := d.gate, d.entered, d.err
	d.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return fakeAccount{}, nil
}

func (d *fakeDeriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fakeTxClient struct {
	mu      sync.Mutex
	sends   []account.Call
	hash    common.Hash
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (c *fakeTxClient) Address() common.Address { return accountAddr }

func (c *fakeTxClient) SendTransaction(ctx context.Context, call account.Call) (common.Hash, error) {
	c.mu.Lock()
	c.sends = append(c.sends, call)
	gate, entered := c.gate, c.entered
	c.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
	return c.hash, c.err
}

func (c *fakeTxClient) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

type fakeFactory struct {
	mu      sync.Mutex
	configs []smartclient.Config
	client  *fakeTxClient
}

func (f *fakeFactory) build(cfg smartclient.Config) (TransactionClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	return f.client, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configs)
}

type fakeObserver struct {
	mu          sync.Mutex
	signIns     []string
	derivations []string
	submissions []string
	ready       bool
	observed    []time.Duration
}

func (o *fakeObserver) IncSignIn(r string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signIns = append(o.signIns, r)
}

func (o *fakeObserver) IncDerivation(r string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.derivations = append(o.derivations, r)
}

func (o *fakeObserver) IncSubmission(r string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submissions = append(o.submissions, r)
}

func (o *fakeObserver) ObserveSubmission(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observed = append(o.observed, d)
}

func (o *fakeObserver) SetReady(ready bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ready = ready
}

type memRecorder struct {
	mu      sync.Mutex
	records map[string]tx.Record
}

func (m *memRecorder) Put(r *tx.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]tx.Record)
	}
	m.records[r.ID] = *r
	return nil
}

func (m *memRecorder) all() []tx.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tx.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out
}

// harness bundles a controller with its fakes.
type harness struct {
	ctrl     *Controller
	identity *fakeIdentity
	deriver  *fakeDeriver
	factory  *fakeFactory
	client   *fakeTxClient
	observer *fakeObserver
	recorder *memRecorder
	public   *fakePublic

	mu     sync.Mutex
	phases []Phase
}

func (h *harness) transitions() []Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Phase(nil), h.phases...)
}
