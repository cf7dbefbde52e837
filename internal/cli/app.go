package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yolodolo42/aaflow/internal/bundler"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/config"
	"github.com/yolodolo42/aaflow/internal/flow"
	"github.com/yolodolo42/aaflow/internal/history"
	"github.com/yolodolo42/aaflow/internal/identity"
	"github.com/yolodolo42/aaflow/internal/metrics"
	"github.com/yolodolo42/aaflow/internal/paymaster"
	"github.com/yolodolo42/aaflow/internal/smartclient"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

// app holds the connections one command run needs.
type app struct {
	cfg       *config.Config
	chainCfg  *chain.ChainConfig
	public    *chain.Client
	bundler   *bundler.Client
	paymaster *paymaster.Client // nil when unsponsored
	history   *history.Store
	metrics   *metrics.Registry
}

// openApp dials the chain, bundler and paymaster and opens the history DB.
func openApp(ctx context.Context, cfg *config.Config, reg *metrics.Registry) (a *app, err error) {
	if err := cfg.RequireFlow(); err != nil {
		return nil, err
	}
	chainCfg, err := cfg.ChainConfig()
	if err != nil {
		return nil, err
	}

	a = &app{cfg: cfg, chainCfg: chainCfg, metrics: reg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.public, err = chain.Dial(ctx, chainCfg); err != nil {
		return nil, err
	}
	if a.bundler, err = bundler.Dial(ctx, cfg.BundlerRPC); err != nil {
		return nil, err
	}
	if err = checkEntryPoint(ctx, a.bundler, cfg.EntryPointAddress()); err != nil {
		return nil, err
	}
	if cfg.Sponsored() {
		if a.paymaster, err = paymaster.Dial(ctx, cfg.PaymasterRPC); err != nil {
			return nil, err
		}
	}
	if a.history, err = history.Open(cfg.DataDir); err != nil {
		return nil, err
	}

	slog.Info("connected",
		"chain", chainCfg.Name,
		"bundler", config.RedactURL(cfg.BundlerRPC),
		"paymaster", config.RedactURL(cfg.PaymasterRPC),
	)
	return a, nil
}

// ErrEntryPointUnsupported means the bundler would reject every operation.
var ErrEntryPointUnsupported = errors.New("bundler does not support entry point")

// entryPointLister is the part of the bundler checkEntryPoint needs.
type entryPointLister interface {
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
}

// checkEntryPoint fails when the bundler positively does not serve ep. A
// bundler that cannot answer is only logged.
func checkEntryPoint(ctx context.Context, b entryPointLister, ep common.Address) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	supported, err := b.SupportedEntryPoints(ctx)
	if err != nil {
		slog.Warn("could not list bundler entry points", "error", err)
		return nil
	}
	if !slices.Contains(supported, ep) {
		return fmt.Errorf("%w %s", ErrEntryPointUnsupported, ep.Hex())
	}
	return nil
}

// Close releases everything that was opened.
func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			slog.Warn("failed to close history", "error", err)
		}
	}
	if a.paymaster != nil {
		a.paymaster.Close()
	}
	if a.bundler != nil {
		a.bundler.Close()
	}
	if a.public != nil {
		a.public.Close()
	}
}

// embedded opens the app's embedded wallet provider. Non-signing wallet
// requests are forwarded to the chain RPC.
func (a *app) embedded(creds identity.CredentialsFunc) (*identity.Embedded, error) {
	return identity.NewEmbedded(identity.EmbeddedConfig{
		AppID:       a.cfg.AppID,
		DataDir:     a.cfg.DataDir,
		Chain:       a.chainCfg,
		RPC:         a.public.RPC(),
		Credentials: creds,
	})
}

// controller wires a flow controller for provider's wallets of walletType.
func (a *app) controller(provider identity.Provider, walletType wallet.ClientType, onChange func(flow.State)) (*flow.Controller, error) {
	fc := flow.Config{
		Identity:       provider,
		Chain:          a.chainCfg,
		Public:         a.public,
		Bundler:        a.bundler,
		FactoryAddress: a.cfg.Factory(),
		EntryPoint:     a.cfg.EntryPointAddress(),
		WalletType:     walletType,
		Recorder:       a.history,
		OnChange:       onChange,
	}
	if a.metrics != nil {
		fc.Observer = a.metrics
	}
	if a.paymaster != nil {
		fc.Sponsor = a.paymaster.SponsorUserOperation
	}
	if a.cfg.GasPrice == config.GasPriceBundler {
		fc.GasPrice = smartclient.FastGasPrice(a.bundler)
	}
	return flow.New(fc)
}
