package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/danthegoodman1/Provisio/gologger"
	"github.com/danthegoodman1/Provisio/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	serverMu   sync.Mutex
	httpServer *http.Server
	// stopped is set by Shutdown, a server started after that never listens
	stopped bool

	logger = gologger.NewLogger()

	Env_InternalPort = utils.EnvOrDefault("INTERNAL_PORT", "8091")

	ErrNoServer = errors.New("server not started")
)

// StartMetricsServer serves /metrics until ctx is done or Shutdown is called.
func StartMetricsServer(ctx context.Context) error {
	serverMu.Lock()
	if stopped {
		serverMu.Unlock()
		logger.Debug().Msg("internal server shut down before it started")
		return nil
	}
	logger.Debug().Msgf("Starting internal http server on port %s", Env_InternalPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", Env_InternalPort),
		Handler: mux,
	}
	httpServer = srv
	serverMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		srv.Close()
	})
	defer stop()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func Shutdown(ctx context.Context) error {
	serverMu.Lock()
	stopped = true
	srv := httpServer
	serverMu.Unlock()

	if srv == nil {
		return ErrNoServer
	}
	logger.Debug().Msg("Shutting down internal server")
	return srv.Shutdown(ctx)
}
