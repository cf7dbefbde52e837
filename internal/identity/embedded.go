package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

// ErrMissingAppID is returned when no app identifier is configured.
var ErrMissingAppID = errors.New("app id is required")

// Credentials are what the "email" login method collects.
type Credentials struct {
	Email      string
	Passphrase string
}

// CredentialsFunc collects credentials from the user. It is called once per Login.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// EmbeddedConfig configures an embedded wallet provider.
type EmbeddedConfig struct {
	AppID       string
	DataDir     string
	Chain       *chain.ChainConfig
	RPC         *rpc.Client // optional; non-signing requests are forwarded here
	Credentials CredentialsFunc

	// Key derivation cost; zero means keystore.StandardScryptN/P.
	ScryptN int
	ScryptP int
}

// Session is the signed-in state of an embedded provider.
type Session struct {
	ID        string
	User      User
	StartedAt time.Time

	signer  *wallet.KeystoreSigner
	handler *requestHandler
}

// Embedded is an identity provider whose users each get an embedded wallet
// on first login. Keys are kept in an encrypted keystore scoped to the app.
type Embedded struct {
	cfg   EmbeddedConfig
	store *Store
	keys  *wallet.KeystoreManager

	mu      sync.Mutex
	session *Session
}

// AppDir is where an app's users and keys live.
func AppDir(dataDir, appID string) string {
	return filepath.Join(dataDir, "apps", appID)
}

// NewEmbedded opens the embedded provider for cfg.AppID.
func NewEmbedded(cfg EmbeddedConfig) (*Embedded, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, ErrMissingAppID
	}
	if filepath.Base(cfg.AppID) != cfg.AppID || cfg.AppID == "." || cfg.AppID == ".." {
		return nil, fmt.Errorf("invalid app id %q", cfg.AppID)
	}
	if cfg.Chain == nil {
		return nil, errors.New("chain is required")
	}
	if cfg.ScryptN == 0 {
		cfg.ScryptN = keystore.StandardScryptN
	}
	if cfg.ScryptP == 0 {
		cfg.ScryptP = keystore.StandardScryptP
	}

	dir := AppDir(cfg.DataDir, cfg.AppID)
	store, err := NewStore(dir, cfg.AppID)
	if err != nil {
		return nil, err
	}
	keys, err := wallet.NewKeystoreManager(filepath.Join(dir, "keys"), cfg.ScryptN, cfg.ScryptP)
	if err != nil {
		return nil, err
	}

	return &Embedded{cfg: cfg, store: store, keys: keys}, nil
}

// Login implements Provider. A first login for an email creates the user and
// its embedded wallet; later logins unlock the existing key.
func (e *Embedded) Login(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return nil
	}
	if e.cfg.Credentials == nil {
		return errors.New("no credential source configured")
	}

	creds, err := e.cfg.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("collect credentials: %w", err)
	}
	if !strings.Contains(creds.Email, "@") {
		return fmt.Errorf("%w: email %q", ErrInvalidCredentials, creds.Email)
	}
	if creds.Passphrase == "" {
		return fmt.Errorf("%w: empty passphrase", ErrInvalidCredentials)
	}

	user, err := e.store.GetUser(creds.Email)
	if errors.Is(err, ErrUserNotFound) {
		user, err = e.createUser(creds)
	}
	if err != nil {
		return err
	}

	signer, err := e.keys.GetSigner(user.Wallet, creds.Passphrase)
	if err != nil {
		if errors.Is(err, wallet.ErrAccountNotFound) {
			return fmt.Errorf("embedded wallet for %s is missing: %w", user.Email, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	e.session = &Session{
		ID:        uuid.NewString(),
		User:      user,
		StartedAt: time.Now(),
		signer:    signer,
		handler:   newRequestHandler(signer, e.cfg.Chain.ChainID, e.cfg.RPC),
	}
	slog.Info("identity login", "app", e.cfg.AppID, "user", user.ID, "session", e.session.ID)
	return nil
}

func (e *Embedded) createUser(creds Credentials) (User, error) {
	account, err := e.keys.CreateAccount(creds.Passphrase)
	if err != nil {
		return User{}, fmt.Errorf("create embedded wallet: %w", err)
	}
	user, err := e.store.CreateUser(creds.Email, account.Address)
	if err != nil {
		return User{}, err
	}
	slog.Info("identity user created", "app", e.cfg.AppID, "user", user.ID, "wallet", account.Address.Hex())
	return user, nil
}

// Logout implements Provider. The key is zeroed and any provider handed out
// for the session answers 4900 from then on.
func (e *Embedded) Logout(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	e.session.handler.disconnect()
	e.session.signer.Lock()
	slog.Info("identity logout", "app", e.cfg.AppID, "session", e.session.ID)
	e.session = nil
	return nil
}

// Authenticated implements Provider.
func (e *Embedded) Authenticated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Session returns a copy of the current session.
func (e *Embedded) Session() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Session{}, false
	}
	return *e.session, true
}

// Wallets implements Provider.
func (e *Embedded) Wallets() []ConnectedWallet {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	handler := e.session.handler
	return []ConnectedWallet{
		NewConnectedWallet(wallet.ClientTypeEmbedded, e.session.User.Wallet, func(ctx context.Context) (wallet.Provider, error) {
			return handler, nil
		}),
	}
}

// Users lists the app's registered users.
func (e *Embedded) Users() []User {
	return e.store.ListUsers()
}

// LocalWallet exposes an unlocked keystore signer as a connected wallet.
func LocalWallet(signer *wallet.KeystoreSigner, chainCfg *chain.ChainConfig, rc *rpc.Client) ConnectedWallet {
	w, _ := localWallet(signer, chainCfg, rc)
	return w
}

func localWallet(signer *wallet.KeystoreSigner, chainCfg *chain.ChainConfig, rc *rpc.Client) (ConnectedWallet, *requestHandler) {
	handler := newRequestHandler(signer, chainCfg.ChainID, rc)
	return NewConnectedWallet(wallet.ClientTypeKeystore, signer.Address(), func(ctx context.Context) (wallet.Provider, error) {
		return handler, nil
	}), handler
}
