package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refset/account-health/internal/crm"
	"github.com/refset/account-health/internal/store"
)

func (a *app) syncCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull accounts from the CRM into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client := crm.NewClient(a.cfg.CRM.BaseURL, a.cfg.CRM.Username, a.cfg.CRM.Password)
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("failed to connect to CRM: %w", err)
			}
			poller := crm.NewPoller(client, a.cfg.CRM.PageSize, a.logger)
			if since != "" {
				t, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				poller.SetCheckpoint(t)
			}

			records, rejected, err := poller.Poll(ctx)
			if err != nil {
				return err
			}
			for _, r := range rejected {
				a.logger.Warn("rejected CRM account",
					zap.String("account_id", r.AccountID),
					zap.String("field", r.Field),
					zap.String("reason", r.Reason),
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
			n, err := s.UpsertAccounts(ctx, records)
			if err != nil {
				return err
			}
			poller.Commit()

			a.logger.Info("synced accounts from CRM", zap.Int("count", n), zap.Timep("checkpoint", poller.GetCheckpoint()))
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d accounts, rejected %d\n", n, len(rejected))
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only pull accounts updated after this date (YYYY-MM-DD)")
	return cmd
}
