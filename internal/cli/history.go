package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/aaflow/internal/history"
	"github.com/yolodolo42/aaflow/internal/tx"
)

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "List submitted demo transactions",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 20, "Maximum number of records to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		record, err := store.Get(args[0])
		if err != nil {
			return err
		}
		printRecord(record)
		return nil
	}

	records, err := store.List(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No transactions yet. Run 'aaflow demo' or 'aaflow' to send one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tCHAIN\tSTATUS\tSENDER\tHASH")
	for _, r := range records {
		hash := "-"
		if r.Status == tx.StatusIncluded {
			hash = r.Hash.Hex()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Chain, r.Status, r.Sender.Hex(), hash)
	}
	return w.Flush()
}

func printRecord(r *tx.Record) {
	fmt.Printf("ID:        %s\n", r.ID)
	fmt.Printf("Chain:     %s\n", r.Chain)
	fmt.Printf("Status:    %s\n", r.Status)
	fmt.Printf("Sender:    %s\n", r.Sender.Hex())
	fmt.Printf("Recipient: %s\n", r.Recipient.Hex())
	fmt.Printf("Value:     %s wei\n", r.Value)
	fmt.Printf("Created:   %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if r.Status == tx.StatusIncluded {
		fmt.Printf("Hash:      %s\n", r.Hash.Hex())
	}
	if r.Error != "" {
		fmt.Printf("Error:     %s\n", r.Error)
	}
}
