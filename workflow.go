package main

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/danthegoodman1/Provisio/auth"
	"github.com/danthegoodman1/Provisio/ezca"
	"github.com/danthegoodman1/Provisio/policy"
	"github.com/danthegoodman1/Provisio/store"
	"github.com/danthegoodman1/Provisio/transport"
	"github.com/danthegoodman1/Provisio/utils"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type workflowConfig struct {
	PortalURL          string
	CAName             string
	DeviceID           string
	ValidityDays       int
	HTTPTimeout        time.Duration
	InsecureSkipVerify bool
	HTTP3              bool
	AllowedDomains     []string
}

func configFromEnv() workflowConfig {
	return workflowConfig{
		PortalURL:          utils.Env_PortalURL,
		CAName:             utils.Env_CAName,
		DeviceID:           utils.Env_DeviceID,
		ValidityDays:       int(utils.Env_CertValidityDays),
		HTTPTimeout:        time.Second * time.Duration(utils.Env_HTTPTimeoutSec),
		InsecureSkipVerify: utils.Env_InsecureSkipVerify,
		HTTP3:              utils.Env_HTTP3,
		AllowedDomains:     utils.Env_AllowedDomains,
	}
}

func tokenProviderFromEnv() (*auth.Provider, error) {
	var src auth.TokenSource
	switch {
	case utils.Env_StaticToken != "":
		logger.Warn().Msg("using STATIC_TOKEN, it will not be refreshed")
		src = &auth.StaticSource{Token: utils.Env_StaticToken}
	case utils.Env_TokenURL != "" && utils.Env_ClientID != "":
		src = &auth.ClientCredentialsSource{
			TokenURL:     utils.Env_TokenURL,
			ClientID:     utils.Env_ClientID,
			ClientSecret: utils.Env_ClientSecret,
			Scopes:       []string{utils.Env_TokenScope},
		}
	default:
		return nil, fmt.Errorf("%w: set STATIC_TOKEN, or TOKEN_URL and CLIENT_ID", ezca.ErrInvalidArgument)
	}
	return auth.NewProvider(src, auth.ProviderOptions{}), nil
}

func storeFromEnv() (store.Store, error) {
	if utils.Env_RedisURL != "" {
		rs, err := store.NewRedisStore(utils.Env_RedisURL)
		if err != nil {
			return nil, fmt.Errorf("error in NewRedisStore: %w", err)
		}
		return rs, nil
	}
	return &store.FileStore{Dir: utils.Env_CertDir}, nil
}

// run provisions one device: pick a CA, register the device id as a domain, get a
// certificate for it and store it.
func run(ctx context.Context, cfg workflowConfig, tokens ezca.TokenProvider, st store.Store) (*ezca.IssuedCertificate, error) {
	log := logger.With().Str("workflowID", utils.GenKSortedID("wf_")).Logger()
	ctx = log.WithContext(ctx)

	pol, err := policy.New(cfg.AllowedDomains...)
	if err != nil {
		return nil, fmt.Errorf("error in policy.New: %w", err)
	}
	tr := transport.New(transport.Options{
		Timeout:            cfg.HTTPTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		HTTP3:              cfg.HTTP3,
	})
	client, err := ezca.New(cfg.PortalURL, tokens, tr, ezca.Options{Policy: pol})
	if err != nil {
		return nil, fmt.Errorf("error in ezca.New: %w", err)
	}
	defer client.Close()

	log.Info().Msg("getting available CAs")
	cas, err := client.ListAvailableCAs(ctx)
	if err != nil {
		return nil, fmt.Errorf("error in ListAvailableCAs: %w", err)
	}
	ca, err := ezca.SelectCA(cas, cfg.CAName)
	if err != nil {
		return nil, fmt.Errorf("error in SelectCA: %w", err)
	}
	log.Info().Str("ca", ca.CAFriendlyName).Int("available", len(cas)).Msg("selected CA")

	deviceID := lo.Ternary(cfg.DeviceID != "", cfg.DeviceID, uuid.NewString())
	log = log.With().Str("deviceID", deviceID).Logger()
	ctx = log.WithContext(ctx)

	log.Info().Msg("registering device")
	reg, err := client.RegisterDomain(ctx, ca, deviceID)
	if err != nil {
		return nil, fmt.Errorf("error in RegisterDomain: %w", err)
	}
	if !reg.Success {
		return nil, fmt.Errorf("could not register device %s: %s: %w", deviceID, reg.Message, reg.Err)
	}

	validity := lo.Ternary(cfg.ValidityDays > 0, cfg.ValidityDays, ezca.DefaultValidityDays)
	log.Info().Int("validityDays", validity).Msg("requesting device certificate")
	res, err := client.RequestCertificate(ctx, ca, deviceID, validity)
	if err != nil {
		return nil, fmt.Errorf("error in RequestCertificate: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("could not create device certificate (%s): %s: %w", res.State, res.Message, res.Err)
	}

	if err := st.Save(ctx, deviceID, res.Certificate); err != nil {
		return nil, fmt.Errorf("error saving certificate: %w", err)
	}

	leaf := res.Certificate.Leaf
	thumbprint := sha1.Sum(leaf.Raw)
	log.Info().
		Str("subject", leaf.Subject.String()).
		Str("thumbprint", hex.EncodeToString(thumbprint[:])).
		Time("notAfter", leaf.NotAfter).
		Msg("device certificate ready")
	return res.Certificate, nil
}
