package sourcesync

import (
	"context"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/internal/httpserver"
	"github.com/Mythidas/MSPByte-sub000/pkg/internal/postgres"
	"github.com/Mythidas/MSPByte-sub000/pkg/provider/sophos"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/db"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/orchestrator"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/runner"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/transform"
	"github.com/Mythidas/MSPByte-sub000/pkg/tokencache"
	"github.com/kaytu-io/kaytu-util/pkg/koanf"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func Command() *cobra.Command {
	cnf := koanf.Provide("sync", SyncConfig{
		Postgres: koanf.Postgres{
			Host:     "localhost",
			Port:     "5432",
			Username: "postgres",
			DB:       "postgres",
		},
		Database: DatabaseConfig{
			LogLevel:            "warn",
			SlowThresholdMillis: 500,
		},
		Http: koanf.HttpServer{
			Address: "localhost:8000",
		},
		Runner: RunnerConfig{
			MaxEstDuration:         runner.DefaultMaxEstDuration,
			IntervalSeconds:        60,
			RequeueIntervalSeconds: 300,
			RetryCeiling:           runner.DefaultRetryCeiling,
		},
		Graph: GraphConfig{
			Workers:       8,
			RatePerSecond: 20,
			Burst:         20,
		},
		Sophos: SophosConfig{
			AuthURL:        sophos.DefaultAuthURL,
			APIURL:         sophos.DefaultAPIURL,
			TimeoutSeconds: 30,
		},
	})

	var once bool
	cmd := &cobra.Command{
		Use:   "sync-service",
		Short: "Synchronize MSP sites with their vendor sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			logger = logger.Named("sync")

			cmd.SilenceUsage = true

			orm, err := postgres.NewClient(&postgres.Config{
				Host:   cnf.Postgres.Host,
				Port:   cnf.Postgres.Port,
				User:   cnf.Postgres.Username,
				Passwd: cnf.Postgres.Password,
				DB:     cnf.Postgres.DB,

				LogLevel:      cnf.Database.LogLevel,
				SlowThreshold: time.Duration(cnf.Database.SlowThresholdMillis) * time.Millisecond,
			}, logger)
			if err != nil {
				return err
			}

			database := db.New(orm, logger)
			if err := database.Initialize(); err != nil {
				logger.Error("failed to initialize database", zap.Error(err))
				return err
			}
			tables := database.Tables()

			var cacheOpts []tokencache.Option
			if cnf.Redis.Address != "" {
				rdb := redis.NewClient(&redis.Options{
					Addr:     cnf.Redis.Address,
					Password: cnf.Redis.Password,
					DB:       cnf.Redis.DB,
				})
				defer rdb.Close()
				cacheOpts = append(cacheOpts, tokencache.WithLocker(tokencache.NewRedisLocker(rdb)))
				logger.Info("using redis token refresh lock", zap.String("address", cnf.Redis.Address))
			}
			tokens := tokencache.New(logger, tokencache.NewIntegrationStore(tables.Integrations), cacheOpts...)

			orch := orchestrator.New(logger, orchestrator.Deps{
				Tables: tables,
				Tokens: tokens,
				Sophos: sophos.NewClient(logger, sophos.Config{
					AuthURL: cnf.Sophos.AuthURL,
					APIURL:  cnf.Sophos.APIURL,
					Timeout: time.Duration(cnf.Sophos.TimeoutSeconds) * time.Second,
				}),
			}, transform.PoolOptions{
				Workers:       cnf.Graph.Workers,
				RatePerSecond: cnf.Graph.RatePerSecond,
				Burst:         cnf.Graph.Burst,
			})

			jobRunner := runner.New(logger, database.Store(), tables.Jobs, orch.Sync)
			if cnf.Runner.MaxEstDuration > 0 {
				jobRunner.MaxEstDuration = cnf.Runner.MaxEstDuration
			}
			requeuer := runner.NewRequeuer(logger, tables.Jobs, cnf.Runner.RetryCeiling)

			if once {
				summary, err := jobRunner.Process(ctx)
				if err != nil {
					return err
				}
				logger.Info("batch finished",
					zap.Int("claimed", summary.Claimed),
					zap.Int("completed", summary.Completed),
					zap.Int("failed", summary.Failed),
				)
				return nil
			}

			if cnf.Runner.IntervalSeconds > 0 {
				go every(ctx, logger, "process", time.Duration(cnf.Runner.IntervalSeconds)*time.Second, func(ctx context.Context) error {
					_, err := jobRunner.Process(ctx)
					return err
				})
				if cnf.Runner.RequeueIntervalSeconds > 0 {
					go every(ctx, logger, "requeue", time.Duration(cnf.Runner.RequeueIntervalSeconds)*time.Second, func(ctx context.Context) error {
						_, err := requeuer.Requeue(ctx)
						return err
					})
				}
			}

			return httpserver.RegisterAndStart(ctx, logger, cnf.Http.Address, NewHttpHandler(logger, jobRunner, tables.Jobs))
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process one batch of due jobs and exit")

	return cmd
}

// every runs fn on each tick until ctx is done.
func every(ctx context.Context, logger *zap.Logger, name string, interval time.Duration, fn func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.Error("scheduled run failed", zap.String("loop", name), zap.Error(err))
			}
		}
	}
}
