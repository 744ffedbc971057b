package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shayo/flysto-sync/internal/config"
	"github.com/shayo/flysto-sync/internal/ledger"
)

// The sync engine never removes a ledger key on its own; these commands are
// the sanctioned external edit for inspecting the ledgers and forcing a
// file to be processed again.
func newLedgerCmd(cfgPath *string) *cobra.Command {
	var uploads bool

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and edit the dedup ledgers",
	}
	cmd.PersistentFlags().BoolVar(&uploads, "uploads", false,
		"operate on the upload ledger instead of the download ledger")

	openLedger := func() (*ledger.Ledger, error) {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return nil, err
		}
		path := cfg.LocalDBPath
		if uploads {
			path = cfg.FlystoDBPath
		}
		return ledger.Open(path)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded files",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			for _, name := range l.Names() {
				e, _ := l.Get(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\t%s\n",
					name, e.Size, e.SyncedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d recorded\n", l.Len())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget <filename>",
		Short: "Remove a file from the ledger so it is processed again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			if err := l.Forget(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	})

	return cmd
}
