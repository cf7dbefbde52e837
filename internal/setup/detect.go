// Package setup reports what an aaflow installation still needs before the
// flow can run.
package setup

import (
	"fmt"
	"io"
	"os"

	"github.com/yolodolo42/aaflow/internal/config"
	"github.com/yolodolo42/aaflow/internal/wallet"
	"golang.org/x/term"
)

// Status is the current setup state
type Status struct {
	HasAppID         bool
	HasBundler       bool
	HasFactory       bool
	Sponsored        bool
	KeystoreAccounts int
	IsComplete       bool
}

// Missing lists the settings the flow cannot run without.
func (s *Status) Missing() []string {
	var missing []string
	if !s.HasAppID {
		missing = append(missing, "app_id")
	}
	if !s.HasBundler {
		missing = append(missing, "bundler_rpc")
	}
	if !s.HasFactory {
		missing = append(missing, "factory_address")
	}
	return missing
}

// Detect checks cfg and the local keystore.
func Detect(cfg *config.Config) *Status {
	status := &Status{
		HasAppID:   cfg.AppID != "",
		HasBundler: cfg.BundlerRPC != "",
		HasFactory: cfg.FactoryAddress != "",
		Sponsored:  cfg.Sponsored(),
	}

	// Count keystore files without unlocking or parsing them.
	if entries, err := os.ReadDir(wallet.DefaultKeystoreDir(cfg.DataDir)); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && entry.Name()[0] != '.' {
				status.KeystoreAccounts++
			}
		}
	}

	status.IsComplete = len(status.Missing()) == 0
	return status
}

// PrintEnvInstructions explains how to configure aaflow without a config file.
func PrintEnvInstructions(w io.Writer) {
	fmt.Fprintln(w, "aaflow needs an app id, a bundler and a SimpleAccount factory.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Set them in $HOME/.aaflow/config.yaml or export:")
	fmt.Fprintln(w, "  AAFLOW_APP_ID=...")
	fmt.Fprintln(w, "  AAFLOW_BUNDLER_RPC=https://...")
	fmt.Fprintln(w, "  AAFLOW_FACTORY_ADDRESS=0x...")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Optional:")
	fmt.Fprintln(w, "  AAFLOW_PAYMASTER_RPC=https://...   sponsor gas with a paymaster")
	fmt.Fprintln(w, "  AAFLOW_CHAIN=base-sepolia          chain preset")
	fmt.Fprintln(w, "  AAFLOW_RPC_URL=https://...         override the chain RPC")
}

// IsInteractive returns true if running in a terminal
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
