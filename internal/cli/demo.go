package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/yolodolo42/aaflow/internal/identity"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Sign in and send the demo transaction without the UI",
	Long: `Sign in, derive the smart account and send one empty call to the zero
address as a user operation. Prints the transaction hash and explorer link.

By default the owner is your embedded wallet (--email). With --keystore the
owner is an account from 'aaflow keystore' instead.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().String("email", "", "email to sign in with (prompted if empty)")
	demoCmd.Flags().String("keystore", "", "use this keystore account as the owner instead of the embedded wallet")
	demoCmd.Flags().Bool("open", false, "open the transaction in a browser")
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	email, _ := cmd.Flags().GetString("email")
	keystoreAddr, _ := cmd.Flags().GetString("keystore")
	open, _ := cmd.Flags().GetBool("open")

	a, err := openApp(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		provider   identity.Provider
		walletType = wallet.ClientTypeEmbedded
	)
	if keystoreAddr != "" {
		if !common.IsHexAddress(keystoreAddr) {
			return fmt.Errorf("invalid address: %s", keystoreAddr)
		}
		km, err := wallet.NewKeystoreManager(wallet.DefaultKeystoreDir(cfg.DataDir), keystore.StandardScryptN, keystore.StandardScryptP)
		if err != nil {
			return fmt.Errorf("failed to initialize keystore: %w", err)
		}
		provider, err = identity.NewKeystore(identity.KeystoreConfig{
			Keys:       km,
			Address:    common.HexToAddress(keystoreAddr),
			Chain:      a.chainCfg,
			RPC:        a.public.RPC(),
			Passphrase: promptPassphrase("Keystore password: "),
		})
		if err != nil {
			return err
		}
		walletType = wallet.ClientTypeKeystore
	} else {
		provider, err = a.embedded(promptCredentials(email))
		if err != nil {
			return err
		}
	}

	ctrl, err := a.controller(provider, walletType, nil)
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.SignOut(ctx) }()

	if err := ctrl.SignIn(ctx); err != nil {
		return err
	}
	state := ctrl.State()
	if !state.Ready() {
		return fmt.Errorf("signed in but no %s wallet is available", walletType)
	}

	fmt.Printf("Wallet:        %s\n", state.WalletAddress.Hex())
	fmt.Printf("Smart account: %s\n", state.AccountAddress.Hex())
	if cfg.Sponsored() {
		fmt.Println("Gas:           sponsored by paymaster")
	} else {
		fmt.Println("Gas:           self-paid")
	}
	fmt.Println("\nSubmitting user operation...")

	hash, err := ctrl.SendTransaction(ctx)
	if err != nil {
		return err
	}

	url := a.chainCfg.TxURL(cfg.ExplorerURL, hash)
	fmt.Println("\nTransaction included!")
	fmt.Printf("Hash:     %s\n", hash.Hex())
	fmt.Printf("Explorer: %s\n", url)

	if open {
		if err := browser.OpenURL(url); err != nil {
			fmt.Printf("Could not open browser: %v\n", err)
		}
	}
	return nil
}
