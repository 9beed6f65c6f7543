package main

import (
	"context"
	"log/slog"
	"os"

	"rssauth/config"
	"rssauth/internal/delivery"
	"rssauth/internal/delivery/api"
	"rssauth/internal/delivery/api/middleware"
	"rssauth/internal/delivery/api/router/handler"
	"rssauth/internal/delivery/api/validator"
	"rssauth/internal/infra/auth"
	logs "rssauth/internal/infra/log"
	"rssauth/internal/infra/metrics"
	"rssauth/internal/infra/persistence"
	"rssauth/internal/usecase/impl"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	app := fx.New(
		injectInfra(),
		injectRepo(),
		injectService(),
		injectUsecase(),
		injectDelivery(),
		injectMiddleware(),
		injectHandler(),
		fx.Invoke(
			startServer,
		),
	)
	if err := app.Err(); err != nil {
		return err
	}

	app.Run()

	return nil
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		logs.New,
		context.Background,
		newMetricsRecorder,
	)
}

// newMetricsRecorder returns nil when metrics are disabled; every consumer accepts a nil recorder.
func newMetricsRecorder(cfg *config.Config) *metrics.Recorder {
	if cfg.Metrics == nil || !cfg.Metrics.Enabled {
		return nil
	}

	return metrics.NewRecorder()
}

func injectRepo() fx.Option {
	return fx.Options(
		fx.Provide(
			persistence.NewUserRepository,
		),
	)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			auth.NewPasswordHasher,
			auth.NewJWTService,
			validator.NewInputValidator,
		),
	)
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewAuthService,
		),
	)
}

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			middleware.NewAuthMiddleware,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewAuthHandler,
			handler.NewHealthHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				api.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

// startServer serves every delivery once the store hooks have run, so requests
// never reach an unmigrated schema.
func startServer(ctx context.Context, params startServerParams) {
	params.Append(fx.Hook{
		OnStart: func(context.Context) error {
			for _, delivery := range params.Deliveries {
				go func() {
					if err := delivery.Serve(ctx); err != nil {
						slog.Error("Failed to start server", slog.Any("error", err))
						os.Exit(1)
					}
				}()
			}

			return nil
		},
	})
}
