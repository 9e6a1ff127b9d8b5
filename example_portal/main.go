package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danthegoodman1/Provisio/gologger"
	"github.com/danthegoodman1/Provisio/portal"
	"github.com/danthegoodman1/Provisio/utils"
	"github.com/samber/lo"
)

var (
	logger = gologger.NewLogger()

	Addr       = utils.EnvOrDefault("PORTAL_ADDR", "127.0.0.1:8443")
	HTTP3      = utils.EnvBool("PORTAL_HTTP3")
	CAFile     = utils.EnvOrDefault("PORTAL_CA_FILE", "portal-ca.pem")
	CANames    = utils.SplitNonEmpty(utils.EnvOrDefault("PORTAL_CAS", "Provisio Dev CA"), ",")
	MaxDays    = utils.MustEnvOrDefaultInt64("PORTAL_MAX_VALIDITY_DAYS", 30)
	FailFirstN = utils.MustEnvOrDefaultInt64("PORTAL_FAIL_FIRST", 0)
)

func main() {
	authorities := lo.Map(CANames, func(name string, _ int) portal.Authority {
		return portal.Authority{
			CAID:                       utils.GenKSortedID("ca_"),
			TemplateID:                 utils.GenKSortedID("tmpl_"),
			CAFriendlyName:             name,
			CAType:                     "SSL",
			MaxCertificateValidityDays: int(MaxDays),
		}
	})
	p, err := portal.New(authorities...)
	if err != nil {
		logger.Fatal().Err(err).Msg("error creating portal")
	}
	if FailFirstN > 0 {
		p.FailNext(int(FailFirstN), 503)
	}

	err = os.WriteFile(CAFile, p.CACertificatePEM(), 0o644)
	if err != nil {
		logger.Fatal().Err(err).Msg("error writing CA certificate to disk")
	}

	s := &portal.Server{Portal: p}
	err = s.Start(Addr, HTTP3)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting portal")
	}
	logger.Info().Str("addr", Addr).Str("caFile", CAFile).Strs("cas", CANames).Msg("example portal started, point PORTAL_URL at it with INSECURE_SKIP_VERIFY=1")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info().Msg("stopping example portal")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("error shutting down portal")
	}
}
