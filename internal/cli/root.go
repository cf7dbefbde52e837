package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yolodolo42/aaflow/internal/config"
	"github.com/yolodolo42/aaflow/internal/logging"
	"github.com/yolodolo42/aaflow/internal/metrics"
	"github.com/yolodolo42/aaflow/internal/setup"
	"github.com/yolodolo42/aaflow/internal/tui"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

var (
	cfgFile string
	cfg     *config.Config
	reg     *metrics.Registry
	logFile io.Closer

	rootCmd = &cobra.Command{
		Use:   "aaflow",
		Short: "Smart account sign-in and sponsored transaction demo",
		Long: `aaflow signs you in with an embedded wallet, derives an ERC-4337
smart account owned by that wallet, and sends a trivial transaction from
it through a bundler, optionally sponsored by a paymaster.

Run without arguments for the interactive terminal UI.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
		RunE:              runInteractive,
	}
)

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.aaflow/config.yaml)")
	rootCmd.PersistentFlags().String("chain", "", "chain preset (default base-sepolia)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	_ = viper.BindPFlag("chain", rootCmd.PersistentFlags().Lookup("chain"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("metrics_addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
}

func initConfig() {
	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	v := viper.GetViper()
	config.SetDefaults(v, home)
	config.BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		configDir := config.DefaultDataDir(home)
		if err := os.MkdirAll(configDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config directory: %v\n", err)
		}

		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	// A missing config file is fine; env vars may carry everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: could not read config: %v\n", err)
		}
	}
}

// loadConfig resolves the configuration and starts logging and metrics. A
// missing app id stops every command here, before any UI is drawn.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(viper.GetViper())
	if err != nil {
		if errors.Is(err, config.ErrMissingAppID) {
			setup.PrintEnvInstructions(os.Stderr)
		}
		return err
	}
	cfg = c

	closer, err := logging.Setup(cfg.LogPath(), cfg.LogLevel)
	if err != nil {
		return err
	}
	logFile = closer

	reg = metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := reg.Serve(cmd.Context(), cfg.MetricsAddr); err != nil {
				slog.Error("metrics server stopped", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	slog.Debug("config loaded", "command", cmd.CommandPath(), "chain", cfg.Chain, "sponsored", cfg.Sponsored())
	return nil
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !setup.IsInteractive() {
		return errors.New("the interactive UI needs a terminal; use 'aaflow demo' instead")
	}
	if status := setup.Detect(cfg); !status.IsComplete {
		setup.PrintEnvInstructions(os.Stderr)
		return fmt.Errorf("%w: missing %s", config.ErrIncomplete, strings.Join(status.Missing(), ", "))
	}

	a, err := openApp(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	creds := tui.NewCredentialSource()
	provider, err := a.embedded(creds.Func())
	if err != nil {
		return err
	}

	bridge := &tui.Bridge{}
	ctrl, err := a.controller(provider, wallet.ClientTypeEmbedded, bridge.OnChange)
	if err != nil {
		return err
	}

	runErr := tui.Run(ctx, ctrl, bridge, tui.Options{
		Chain:       a.chainCfg,
		ExplorerURL: cfg.ExplorerURL,
		Credentials: creds,
		Sponsored:   cfg.Sponsored(),
	})

	// Lock the key even when the UI exits signed in.
	if err := ctrl.SignOut(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("sign-out on exit failed", "error", err)
	}
	return runErr
}
