package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danthegoodman1/Provisio/gologger"
	"github.com/danthegoodman1/Provisio/internal"
	"github.com/danthegoodman1/Provisio/tracing"
	"github.com/danthegoodman1/Provisio/utils"
	"golang.org/x/sync/errgroup"
)

var (
	logger = gologger.NewLogger()
)

func main() {
	logger.Info().Msg("starting Provisio")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("error initializing tracing")
	}

	err = serve(ctx, func(ctx context.Context) error {
		tokens, err := tokenProviderFromEnv()
		if err != nil {
			return err
		}
		st, err := storeFromEnv()
		if err != nil {
			return err
		}
		_, err = run(ctx, configFromEnv(), tokens, st)
		return err
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*time.Duration(utils.Env_ShutdownTimeoutSeconds))
	defer cancel()
	if tErr := shutdownTracer(shutdownCtx); tErr != nil {
		logger.Error().Err(tErr).Msg("error shutting down tracer")
	}

	if err != nil {
		logger.Error().Err(err).Msg("device provisioning failed")
		os.Exit(1)
	}
	logger.Info().Msg("device provisioned")
}

// serve runs the metrics server next to workflow and returns once both have stopped. The
// metrics server goes down as soon as workflow returns, whether or not it failed.
func serve(ctx context.Context, workflow func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msg("starting internal metrics server")
		return internal.StartMetricsServer(gctx)
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*time.Duration(utils.Env_ShutdownTimeoutSeconds))
			defer cancel()
			if err := internal.Shutdown(shutdownCtx); err != nil && !errors.Is(err, internal.ErrNoServer) {
				logger.Error().Err(err).Msg("error shutting down internal server")
			}
		}()
		return workflow(gctx)
	})
	return g.Wait()
}
