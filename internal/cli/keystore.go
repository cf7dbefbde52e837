package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yolodolo42/aaflow/internal/wallet"
)

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "Manage local keystore accounts",
	Long: `Create, import and list accounts in your own encrypted keystore.

A keystore account can own a smart account instead of the embedded wallet:
pass its address to 'aaflow demo --keystore' or 'aaflow account --keystore'.`,
	// Keystore management only needs data_dir.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var keystoreCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new keystore account",
	RunE:  runKeystoreCreate,
}

var keystoreImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a keystore account from a private key",
	RunE:  runKeystoreImport,
}

var keystoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keystore accounts",
	RunE:  runKeystoreList,
}

func init() {
	rootCmd.AddCommand(keystoreCmd)
	keystoreCmd.AddCommand(keystoreCreateCmd)
	keystoreCmd.AddCommand(keystoreImportCmd)
	keystoreCmd.AddCommand(keystoreListCmd)

	keystoreImportCmd.Flags().String("key", "", "Private key to import (hex, with or without 0x prefix)")
}

func keystoreDir() string {
	return wallet.DefaultKeystoreDir(viper.GetString("data_dir"))
}

func openKeystore() (*wallet.KeystoreManager, error) {
	km, err := wallet.NewKeystoreManager(keystoreDir(), keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}
	return km, nil
}

// readNewPassword asks for a password twice.
func readNewPassword(prompt string) (string, error) {
	password, err := readPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}

	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func runKeystoreCreate(cmd *cobra.Command, args []string) error {
	km, err := openKeystore()
	if err != nil {
		return err
	}

	password, err := readNewPassword("Enter password for new account: ")
	if err != nil {
		return err
	}

	account, err := km.CreateAccount(password)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Println("\nAccount created.")
	fmt.Printf("Address:  %s\n", account.Address.Hex())
	fmt.Printf("Keystore: %s\n", filepath.Clean(account.URL.Path))
	fmt.Println("\nBack up the keystore file and remember the password.")
	return nil
}

func runKeystoreImport(cmd *cobra.Command, args []string) error {
	privateKey, _ := cmd.Flags().GetString("key")
	if privateKey == "" {
		privateKey = readLine("Enter private key (hex): ")
	}
	if privateKey == "" {
		return errors.New("private key is required")
	}

	km, err := openKeystore()
	if err != nil {
		return err
	}

	password, err := readNewPassword("Enter password to encrypt account: ")
	if err != nil {
		return err
	}

	account, err := km.ImportKey(privateKey, password)
	if err != nil {
		return fmt.Errorf("failed to import key: %w", err)
	}

	fmt.Println("\nAccount imported.")
	fmt.Printf("Address:  %s\n", account.Address.Hex())
	fmt.Printf("Keystore: %s\n", filepath.Clean(account.URL.Path))
	return nil
}

func runKeystoreList(cmd *cobra.Command, args []string) error {
	km, err := openKeystore()
	if err != nil {
		return err
	}

	accounts := km.ListAccounts()
	if len(accounts) == 0 {
		fmt.Println("No keystore accounts found.")
		fmt.Println("Use 'aaflow keystore create' to create one.")
		return nil
	}

	fmt.Printf("Found %d account(s):\n\n", len(accounts))
	for i, acc := range accounts {
		fmt.Printf("%d. %s\n", i+1, acc.Address.Hex())
	}
	return nil
}
