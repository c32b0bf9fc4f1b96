package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carvexyz/tree-node/internal/config"
	"github.com/carvexyz/tree-node/internal/events"
	"github.com/carvexyz/tree-node/internal/observability"
)

func newStartCmd(v *viper.Viper) *cobra.Command {
	var subscribeExpr string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the carving store node",
		Long:  "Opens the state backend, serves metrics and health, and logs store events until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			obs, err := observability.New(ctx, observability.ObsConfig{
				LogLevel:       cfg.Observability.LogLevel,
				LogFormat:      cfg.Observability.LogFormat,
				OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
				OTLPProtocol:   cfg.Observability.OTLPProtocol,
				ServiceName:    cfg.Observability.ServiceName,
				ServiceVersion: cfg.Observability.ServiceVersion,
			}, os.Stderr)
			if err != nil {
				return err
			}

			emitter, closeJournal, err := defaultEmitter(cfg)
			if err != nil {
				return err
			}
			obs.Shutdown.Register("journal", func(context.Context) error {
				return closeJournal()
			})

			chain := events.Multi{emitter}
			if subscribeExpr != "" {
				subscriber, err := events.NewSubscriber()
				if err != nil {
					return err
				}
				sub, err := subscriber.Subscribe(subscribeExpr, 64)
				if err != nil {
					return err
				}
				go func() {
					for ev := range sub.Events() {
						slog.Info("subscription matched",
							"event", string(ev.Kind),
							"id", ev.ID.Hex(),
							"actor", string(ev.Actor),
						)
					}
				}()
				chain = append(chain, subscriber)
			}

			store, err := openStore(ctx, cfg, obs.Metrics, chain)
			if err != nil {
				return err
			}
			obs.Shutdown.Register("store", func(context.Context) error {
				return store.Close()
			})

			obs.ServeMetrics(ctx, cfg.Observability.MetricsAddr)
			slog.Info("node started",
				"data_dir", cfg.DataDir,
				"backend", cfg.State.Backend,
				"officiants", len(store.Officiants()),
			)

			<-ctx.Done()
			slog.Info("signal received, shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return obs.Close(shutdownCtx)
		},
	}

	config.BindServeFlags(cmd, v)
	cmd.Flags().StringVar(&subscribeExpr, "subscribe", "", "CEL filter for logged events (e.g. 'kind == \"carving.stored\"')")
	return cmd
}
