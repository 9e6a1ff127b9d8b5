package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danthegoodman1/Provisio/gologger"
	"github.com/danthegoodman1/Provisio/internal"
	"github.com/danthegoodman1/Provisio/tracing"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	logger = gologger.NewLogger()

	ErrAuth = errors.New("authentication failure")
)

const (
	DefaultRefreshSkew    = 30 * time.Second
	DefaultAcquireTimeout = 30 * time.Second

	flightKey = "token"
)

type (
	// Credential is a bearer token and the instant it stops being accepted.
	Credential struct {
		Token     string
		ExpiresAt time.Time
	}

	// TokenSource fetches a new credential from an identity backend.
	TokenSource interface {
		FetchToken(ctx context.Context) (Credential, error)
	}

	ProviderOptions struct {
		// RefreshSkew renews the token this long before it expires.
		RefreshSkew time.Duration
		// AcquireTimeout bounds a single fetch from the TokenSource.
		AcquireTimeout time.Duration
	}

	// Provider caches a credential and shares a single in-flight refresh between all callers.
	Provider struct {
		source         TokenSource
		skew           time.Duration
		acquireTimeout time.Duration
		now            func() time.Time

		mu    sync.RWMutex
		cred  *Credential
		group singleflight.Group
	}
)

func NewProvider(source TokenSource, opts ProviderOptions) *Provider {
	p := &Provider{
		source:         source,
		skew:           opts.RefreshSkew,
		acquireTimeout: opts.AcquireTimeout,
		now:            time.Now,
	}
	if p.skew == 0 {
		p.skew = DefaultRefreshSkew
	}
	if p.acquireTimeout == 0 {
		p.acquireTimeout = DefaultAcquireTimeout
	}
	return p
}

// Token returns a valid bearer token, fetching one if the cached credential is missing or
// about to expire. A caller giving up only stops its own wait, the shared fetch carries on.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("error waiting for token: %w", err)
	}
	if tok, ok := p.cached(); ok {
		internal.Metric_TokenCacheHits.Inc()
		return tok, nil
	}

	ch := p.group.DoChan(flightKey, func() (interface{}, error) {
		// Another flight may have finished between our cache check and this one starting
		if tok, ok := p.cached(); ok {
			return tok, nil
		}
		return p.acquire(ctx)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("error waiting for token: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached credential so the next Token call fetches a fresh one.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cred = nil
}

func (p *Provider) cached() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cred == nil || !p.now().Before(p.cred.ExpiresAt.Add(-p.skew)) {
		return "", false
	}
	return p.cred.Token, true
}

func (p *Provider) acquire(callerCtx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), p.acquireTimeout)
	defer cancel()
	ctx, span := tracing.Tracer.Start(ctx, "auth.acquire")
	defer span.End()

	internal.Metric_TokenAcquisitions.Inc()
	cred, err := p.source.FetchToken(ctx)
	if err != nil {
		zerolog.Ctx(callerCtx).Error().Err(err).Msg("error fetching token")
		return "", fmt.Errorf("%w: error in FetchToken: %w", ErrAuth, err)
	}
	if cred.Token == "" {
		return "", fmt.Errorf("%w: token source returned an empty token", ErrAuth)
	}

	p.mu.Lock()
	p.cred = &cred
	p.mu.Unlock()

	logger.Debug().Time("expiresAt", cred.ExpiresAt).Msg("acquired new token")
	return cred.Token, nil
}
