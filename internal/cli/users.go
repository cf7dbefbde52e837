package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/aaflow/internal/identity"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users registered with the embedded wallet provider",
	RunE:  runUsers,
}

func init() {
	rootCmd.AddCommand(usersCmd)
}

func runUsers(cmd *cobra.Command, args []string) error {
	chainCfg, err := cfg.ChainConfig()
	if err != nil {
		return err
	}
	provider, err := identity.NewEmbedded(identity.EmbeddedConfig{
		AppID:   cfg.AppID,
		DataDir: cfg.DataDir,
		Chain:   chainCfg,
	})
	if err != nil {
		return err
	}

	users := provider.Users()
	if len(users) == 0 {
		fmt.Printf("No users for app %s yet. Sign in once to create one.\n", cfg.AppID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tWALLET\tCREATED\tID")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Email, u.Wallet.Hex(), u.CreatedAt.Local().Format("2006-01-02"), u.ID)
	}
	return w.Flush()
}
