package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refset/account-health/internal/ingest"
	"github.com/refset/account-health/internal/store"
)

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file.csv>",
		Short: "Load accounts from a CSV export into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			parsed, err := ingest.ReadCSV(in)
			if err != nil {
				return err
			}
			for _, rowErr := range parsed.Errors {
				a.logger.Warn("rejected CSV row",
					zap.Int("line", rowErr.Line),
					zap.String("account_id", rowErr.AccountID),
					zap.Error(rowErr.Err),
				)
			}

			s, err := store.Open(ctx, a.cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Migrate(ctx); err != nil {
				return err
			}

			n, err := s.UpsertAccounts(ctx, parsed.Records)
			if err != nil {
				return err
			}
			a.logger.Info("loaded accounts", zap.Int("count", n), zap.Int("rejected", len(parsed.Errors)))
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d accounts (%d rows rejected)\n", n, len(parsed.Errors))
			return nil
		},
	}
}
