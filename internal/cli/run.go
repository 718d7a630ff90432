package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refset/account-health/internal/cache"
	"github.com/refset/account-health/internal/crm"
	"github.com/refset/account-health/internal/kafka"
	"github.com/refset/account-health/internal/pipeline"
	"github.com/refset/account-health/internal/store"
)

func (a *app) runCmd() *cobra.Command {
	var (
		once   bool
		noSync bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scoring pipeline on an interval",
		Long: `Run scores every stored account on the configured interval. Each cycle
optionally syncs from the CRM first, then saves the run to Postgres,
publishes results and the report to Kafka and caches the snapshot in Redis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.signalContext(cmd.Context())
			defer cancel()

			s, err := store.Open(ctx, a.cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Migrate(ctx); err != nil {
				return err
			}

			var opts []pipeline.Option
			if !noSync && a.cfg.CRM.BaseURL != "" {
				client := crm.NewClient(a.cfg.CRM.BaseURL, a.cfg.CRM.Username, a.cfg.CRM.Password)
				if err := client.Ping(ctx); err != nil {
					return fmt.Errorf("failed to connect to CRM: %w", err)
				}
				opts = append(opts, pipeline.WithSync(crm.NewPoller(client, a.cfg.CRM.PageSize, a.logger), s))
			}
			if a.cfg.Kafka.Enabled() {
				producer := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.ResultsTopic, a.cfg.Kafka.ReportsTopic, a.logger)
				defer producer.Close()
				opts = append(opts, pipeline.WithPublisher(producer))
			}
			if c, closeCache := a.openCache(ctx); c != nil {
				defer closeCache()
				opts = append(opts, pipeline.WithCache(c))
			}

			p, err := pipeline.New(a.cfg, a.logger, s, s, opts...)
			if err != nil {
				return err
			}
			if once {
				_, err := p.RunOnce(ctx)
				return err
			}
			return p.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "score stored accounts without pulling from the CRM")
	return cmd
}

// openCache connects to Redis. It returns nil when Redis is not configured
// or not reachable; the snapshot is then served from Postgres only.
func (a *app) openCache(ctx context.Context) (*cache.SnapshotCache, func()) {
	if a.cfg.Redis.Addr == "" {
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		a.logger.Warn("redis unavailable, snapshot cache disabled", zap.String("addr", a.cfg.Redis.Addr), zap.Error(err))
		client.Close()
		return nil, func() {}
	}
	return cache.New(client, a.cfg.Redis.Key, a.cfg.Redis.TTL), func() { client.Close() }
}
