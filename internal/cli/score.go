package cli

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refset/account-health/internal/ingest"
	"github.com/refset/account-health/internal/pipeline"
	"github.com/refset/account-health/internal/scoring"
)

func (a *app) scoreCmd() *cobra.Command {
	var (
		asOf    string
		asJSON  bool
		clamp   bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "score [file.csv]",
		Short: "Score accounts from a CSV export and print the portfolio report",
		Long: `Score reads accounts from a CSV file (or stdin when the file is "-" or
omitted), scores them and prints the per-account results and the portfolio
report. Nothing is persisted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			if asOf != "" {
				cfg.Pipeline.AsOf = asOf
			}
			if clamp {
				cfg.Scoring.Policy = scoring.PolicyClamp
			}
			if cmd.Flags().Changed("workers") {
				cfg.Scoring.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			date, err := cfg.EvaluationDate(a.now())
			if err != nil {
				return err
			}

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			in, err := openInput(cmd, path)
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
					zap.String("column", rowErr.Column),
					zap.Error(rowErr.Err),
				)
			}

			snap, err := pipeline.Compute(cmd.Context(), &cfg, parsed.Records, parsed.Rejections(), date, uuid.NewString(), a.now())
			if err != nil {
				return err
			}
			a.logger.Debug("scored accounts",
				zap.String("run_id", snap.RunID),
				zap.Int("scored", len(snap.Results)),
				zap.Int("skipped", len(snap.Report.Skipped)),
				zap.Int("rejected", len(snap.Report.Rejected)),
			)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return writeReport(out, snap)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "evaluation date YYYY-MM-DD (default today, UTC)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	cmd.Flags().BoolVar(&clamp, "clamp", false, "clamp out-of-range pillar scores instead of rejecting the record")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel scoring workers")
	return cmd
}
