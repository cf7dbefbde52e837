package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yolodolo42/aaflow/internal/setup"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration with RPC credentials redacted",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# %s\n", used)
	} else {
		fmt.Println("# no config file; defaults and AAFLOW_* environment only")
	}
	for _, kv := range cfg.Display() {
		value := kv[1]
		if value == "" {
			value = "-"
		}
		fmt.Printf("%-16s %s\n", kv[0], value)
	}

	status := setup.Detect(cfg)
	fmt.Printf("\nkeystore accounts: %d\n", status.KeystoreAccounts)
	if !status.IsComplete {
		fmt.Printf("missing: %s\n", strings.Join(status.Missing(), ", "))
	}
	return nil
}
