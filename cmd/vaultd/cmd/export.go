package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/b-harvest/gravity-vault/schema"
	"github.com/b-harvest/gravity-vault/service/store"
)

var exportHeader = []string{"sequence", "id", "kind", "caller", "counterparty", "amount", "timestamp"}

// WriteJournalCSV writes every entry yielded by it as a CSV row.
func WriteJournalCSV(ctx context.Context, w io.Writer, it store.EntryIterator) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}
	n := 0
	if err := it.IterateEntries(ctx, func(e schema.JournalEntry) (stop bool, err error) {
		n++
		return false, cw.Write([]string{
			strconv.FormatInt(e.Sequence, 10),
			e.ID,
			e.Kind,
			e.Caller,
			e.Counterparty,
			e.Amount,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}); err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

func ExportCmd(configPath *string) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "export the journal as csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadServerConfig(*configPath)
			if err != nil {
				return err
			}

			mc, err := connectMongo(context.Background(), cfg.MongoDB)
			if err != nil {
				return err
			}
			defer mc.Disconnect(context.Background())

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			n, err := WriteJournalCSV(context.Background(), w, store.NewService(cfg.MongoDB, mc))
			if err != nil {
				return fmt.Errorf("export journal: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
