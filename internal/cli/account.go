package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/yolodolo42/aaflow/internal/account"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/identity"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the smart account owned by a wallet",
	Long: `Derive the SimpleAccount owned by your embedded wallet (or a keystore
account with --keystore) and print its address, deployment status and
balance. Only the chain RPC is contacted.`,
	RunE: runAccount,
}

func init() {
	rootCmd.AddCommand(accountCmd)

	accountCmd.Flags().String("email", "", "email of the embedded wallet user (prompted if empty)")
	accountCmd.Flags().String("keystore", "", "derive for this keystore account instead")
}

func runAccount(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	email, _ := cmd.Flags().GetString("email")
	keystoreAddr, _ := cmd.Flags().GetString("keystore")

	if cfg.FactoryAddress == "" {
		return errors.New("factory_address is not set")
	}
	chainCfg, err := cfg.ChainConfig()
	if err != nil {
		return err
	}
	public, err := chain.Dial(ctx, chainCfg)
	if err != nil {
		return err
	}
	defer public.Close()

	var signer account.Signer
	if keystoreAddr != "" {
		s, done, err := keystoreOwner(keystoreAddr)
		if err != nil {
			return err
		}
		defer done()
		signer = s
	} else {
		s, done, err := embeddedOwner(ctx, email, chainCfg, public)
		if err != nil {
			return err
		}
		defer done()
		signer = s
	}

	acct, err := account.ToSimpleSmartAccount(ctx, public, account.Params{
		EntryPoint:     cfg.EntryPointAddress(),
		Signer:         signer,
		FactoryAddress: cfg.Factory(),
	})
	if err != nil {
		return err
	}

	deployed, err := acct.IsDeployed(ctx)
	if err != nil {
		return err
	}
	balance, err := public.GetNativeBalance(ctx, acct.Address())
	if err != nil {
		return err
	}

	status := "not deployed (created with the first user operation)"
	if deployed {
		status = "deployed"
	}
	fmt.Printf("Chain:         %s\n", chainCfg.Name)
	fmt.Printf("Owner:         %s\n", acct.Owner().Hex())
	fmt.Printf("Smart account: %s\n", acct.Address().Hex())
	fmt.Printf("Status:        %s\n", status)
	fmt.Printf("Balance:       %s\n", balance)
	return nil
}

// keystoreOwner unlocks a keystore account as the owner key.
func keystoreOwner(addressHex string) (account.Signer, func(), error) {
	if !common.IsHexAddress(addressHex) {
		return nil, nil, fmt.Errorf("invalid address: %s", addressHex)
	}
	km, err := wallet.NewKeystoreManager(wallet.DefaultKeystoreDir(cfg.DataDir), keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}
	password, err := readPassword("Keystore password: ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read password: %w", err)
	}
	ks, err := km.GetSigner(common.HexToAddress(addressHex), password)
	if err != nil {
		return nil, nil, err
	}
	return account.FromLocalSigner(ks), ks.Lock, nil
}

// embeddedOwner signs in and adapts the embedded wallet's provider.
func embeddedOwner(ctx context.Context, email string, chainCfg *chain.ChainConfig, public *chain.Client) (account.Signer, func(), error) {
	provider, err := identity.NewEmbedded(identity.EmbeddedConfig{
		AppID:       cfg.AppID,
		DataDir:     cfg.DataDir,
		Chain:       chainCfg,
		RPC:         public.RPC(),
		Credentials: promptCredentials(email),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := provider.Login(ctx); err != nil {
		return nil, nil, err
	}
	done := func() { _ = provider.Logout(context.WithoutCancel(ctx)) }

	w, ok := identity.EmbeddedWallet(provider.Wallets())
	if !ok {
		done()
		return nil, nil, errors.New("signed in but no embedded wallet is available")
	}
	ethProvider, err := w.EthereumProvider(ctx)
	if err != nil {
		done()
		return nil, nil, err
	}
	signer, err := account.FromWalletClient(wallet.NewClient(ethProvider, &w.Address, chainCfg))
	if err != nil {
		done()
		return nil, nil, err
	}
	return signer, done, nil
}
