package ezca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danthegoodman1/Provisio/auth"
	"github.com/danthegoodman1/Provisio/csr"
	"github.com/danthegoodman1/Provisio/gologger"
	"github.com/danthegoodman1/Provisio/internal"
	"github.com/danthegoodman1/Provisio/policy"
	"github.com/danthegoodman1/Provisio/tracing"
	"github.com/danthegoodman1/Provisio/transport"
	"github.com/goccy/go-json"
	"github.com/mailgun/groupcache/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	PathListCAs         = "api/CA/GetAvailableSSLCAs"
	PathRegisterDomain  = "api/CA/RegisterNewDomain"
	PathRequestCert     = "api/CA/RequestSSLCertificate"
	DefaultValidityDays = 10
)

var logger = gologger.NewLogger()

type (
	TokenProvider interface {
		Token(ctx context.Context) (string, error)
		// Invalidate drops a token the portal refused.
		Invalidate()
	}

	Transport interface {
		Send(ctx context.Context, method, url, token string, body []byte) (*transport.Response, error)
	}

	Options struct {
		// KeyType of the key generated per request, RSA 4096 when empty.
		KeyType csr.KeyType
		// Policy is checked before any request for a domain goes out, nil allows all.
		Policy *policy.Policy
		// CACacheTTL caches the CA list in process when > 0.
		CACacheTTL time.Duration
	}

	// Client talks to the issuance portal. It is safe for concurrent use, the only shared
	// state is inside the TokenProvider.
	Client struct {
		baseURL   string
		tokens    TokenProvider
		transport Transport
		opts      Options
		caGroup   *groupcache.Group
		// caGroupName is unique per client, groupcache group names are process global
		caGroupName string
	}
)

func New(baseURL string, tokens TokenProvider, tr Transport, opts Options) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: portal url %q", ErrInvalidArgument, baseURL)
	}
	if tokens == nil || tr == nil {
		return nil, fmt.Errorf("%w: token provider and transport are required", ErrInvalidArgument)
	}
	if !opts.KeyType.Supported() {
		return nil, fmt.Errorf("%w: %w %q", ErrInvalidArgument, csr.ErrUnsupportedKey, opts.KeyType)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	c := &Client{
		baseURL:   baseURL,
		tokens:    tokens,
		transport: tr,
		opts:      opts,
	}
	if opts.CACacheTTL > 0 {
		c.caGroup = newCAGroup(c)
	}
	logger.Debug().Str("portal", baseURL).Strs("allowedDomains", opts.Policy.Patterns()).Msg("created issuance client")
	return c, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

// call sends one request through the transport, and on a 401 drops the token and tries once
// more with a fresh one.
func (c *Client) call(ctx context.Context, method, path string, body []byte) (*transport.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting token: %w", err)
	}
	res, err := c.transport.Send(ctx, method, c.endpoint(path), token, body)
	if err != nil {
		return nil, fmt.Errorf("error in transport.Send: %w", err)
	}
	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}

	zerolog.Ctx(ctx).Warn().Str("path", path).Msg("portal rejected token, refreshing and retrying once")
	c.tokens.Invalidate()
	token, err = c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting token after 401: %w", err)
	}
	res, err = c.transport.Send(ctx, method, c.endpoint(path), token, body)
	if err != nil {
		return nil, fmt.Errorf("error in transport.Send: %w", err)
	}
	return res, nil
}

// ListAvailableCAs returns the CAs the caller may request SSL certificates from. Failures are
// logged before they are returned.
func (c *Client) ListAvailableCAs(ctx context.Context) ([]CertificateAuthority, error) {
	ctx, span := tracing.Tracer.Start(ctx, "ezca.ListAvailableCAs")
	defer span.End()
	log := zerolog.Ctx(ctx)

	var (
		cas []CertificateAuthority
		err error
	)
	if c.caGroup != nil {
		cas, err = c.cachedCAs(ctx)
	} else {
		cas, err = c.fetchCAs(ctx)
	}
	if err != nil {
		log.Error().Err(err).Msg("error getting available CAs")
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("cas", len(cas)))
	return cas, nil
}

func (c *Client) fetchCAs(ctx context.Context) ([]CertificateAuthority, error) {
	res, err := c.call(ctx, http.MethodGet, PathListCAs, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, &ServiceError{StatusCode: res.StatusCode, Message: string(res.Body)}
	}
	var cas []CertificateAuthority
	if err := json.Unmarshal(res.Body, &cas); err != nil {
		return nil, fmt.Errorf("error in unmarshaling CA list: %w", &ServiceError{StatusCode: res.StatusCode, Message: "malformed CA list: " + err.Error()})
	}
	return cas, nil
}

func (c *Client) validate(ca *CertificateAuthority, domain string) error {
	if ca == nil || strings.TrimSpace(ca.CAID) == "" {
		return fmt.Errorf("%w: certificate authority is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(domain) == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalidArgument)
	}
	if !c.opts.Policy.Allows(domain) {
		return fmt.Errorf("%w: domain %s is not allowed by policy %v", ErrInvalidArgument, domain, c.opts.Policy.Patterns())
	}
	return nil
}

// RegisterDomain registers domain under ca with the token's identity as owner and requester.
// The error is only set for invalid arguments, remote failures are in the result.
func (c *Client) RegisterDomain(ctx context.Context, ca *CertificateAuthority, domain string) (OperationResult, error) {
	if err := c.validate(ca, domain); err != nil {
		return OperationResult{}, err
	}
	domain = strings.TrimSpace(domain)

	ctx, span := tracing.Tracer.Start(ctx, "ezca.RegisterDomain")
	defer span.End()
	span.SetAttributes(attribute.String("domain", domain), attribute.String("ca", ca.CAID))
	log := zerolog.Ctx(ctx).With().Str("domain", domain).Str("caID", ca.CAID).Logger()

	result := c.registerDomain(ctx, ca, domain)
	internal.Metric_DomainRegistrations.WithLabelValues(strconv.FormatBool(result.Success)).Inc()
	if !result.Success {
		log.Error().Err(result.Err).Msg(result.Message)
		span.RecordError(result.Err)
		return result, nil
	}
	log.Info().Msg(result.Message)
	return result, nil
}

func (c *Client) registerDomain(ctx context.Context, ca *CertificateAuthority, domain string) OperationResult {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return failed("error getting token", err)
	}
	identity, err := auth.IdentityFromToken(token)
	if err != nil {
		return failed("error reading identity from token", err)
	}

	// The registering identity owns and requests the domain
	principals := []auth.Identity{identity}
	body, err := json.Marshal(registerDomainRequest{
		CAID:       ca.CAID,
		TemplateID: ca.TemplateID,
		Domain:     domain,
		Owners:     principals,
		Requesters: principals,
	})
	if err != nil {
		return failed("error marshaling registration", err)
	}

	res, err := c.call(ctx, http.MethodPost, PathRegisterDomain, body)
	if err != nil {
		return failed("error contacting portal", err)
	}
	return decodeResult(res, "domain registration rejected")
}

// decodeResult maps a portal response onto an OperationResult. The Message of a successful
// result is the raw service message.
func decodeResult(res *transport.Response, rejected string) OperationResult {
	if !res.OK() {
		return failed(fmt.Sprintf("error contacting server: %d", res.StatusCode),
			&ServiceError{StatusCode: res.StatusCode, Message: string(res.Body)})
	}
	var result apiResult
	if err := json.Unmarshal(res.Body, &result); err != nil {
		return failed("malformed portal response",
			&ServiceError{StatusCode: res.StatusCode, Message: err.Error()})
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = rejected
		}
		return failed(msg, &ServiceError{StatusCode: res.StatusCode, Message: msg})
	}
	return OperationResult{Success: true, Message: result.Message}
}

// RequestCertificate generates a key, submits a CSR for domain and binds the returned
// certificate to the key. The error is only set for invalid arguments, checked before any
// request goes out. Everything after that ends in a terminal IssueResult.
func (c *Client) RequestCertificate(ctx context.Context, ca *CertificateAuthority, domain string, validityDays int) (IssueResult, error) {
	if err := c.validate(ca, domain); err != nil {
		return IssueResult{State: Idle}, err
	}
	if validityDays <= 0 {
		return IssueResult{State: Idle}, fmt.Errorf("%w: validity days must be positive, got %d", ErrInvalidArgument, validityDays)
	}
	domain = strings.TrimSpace(domain)

	ctx, span := tracing.Tracer.Start(ctx, "ezca.RequestCertificate")
	defer span.End()
	span.SetAttributes(attribute.String("domain", domain), attribute.String("ca", ca.CAID), attribute.Int("validityDays", validityDays))
	log := zerolog.Ctx(ctx).With().Str("domain", domain).Str("caID", ca.CAID).Logger()

	result := c.requestCertificate(ctx, ca, domain, validityDays)
	internal.Metric_IssuanceResults.WithLabelValues(result.State.String()).Inc()
	span.SetAttributes(attribute.String("state", result.State.String()))
	if !result.Success {
		log.Error().Err(result.Err).Str("state", result.State.String()).Msg(result.Message)
		span.RecordError(result.Err)
		return result, nil
	}
	log.Info().Str("serial", result.Certificate.Leaf.SerialNumber.String()).Time("notAfter", result.Certificate.NotAfter()).Msg("certificate issued")
	return result, nil
}

func (c *Client) requestCertificate(ctx context.Context, ca *CertificateAuthority, domain string, validityDays int) IssueResult {
	r := IssueResult{State: Idle}

	// Local failures never reach the portal but still end the attempt
	key, err := csr.GenerateKey(c.opts.KeyType)
	if err != nil {
		r.State = Rejected
		r.OperationResult = failed("error generating key", err)
		return r
	}
	r.State = KeyGenerated

	signingReq, err := csr.BuildWithKey(domain, key, csr.Options{ValidityInDays: validityDays})
	if err != nil {
		r.State = Rejected
		r.OperationResult = failed("error building CSR", err)
		return r
	}
	r.State = CSRBuilt

	body, err := json.Marshal(certificateRequest{
		CAID:            ca.CAID,
		TemplateID:      ca.TemplateID,
		SubjectName:     signingReq.SubjectName,
		SubjectAltNames: signingReq.SubjectAltNames,
		CSR:             signingReq.CSRPEM,
		ValidityInDays:  signingReq.ValidityInDays,
	})
	if err != nil {
		r.State = Rejected
		r.OperationResult = failed("error marshaling certificate request", err)
		return r
	}
	r.State = Submitted

	res, err := c.call(ctx, http.MethodPost, PathRequestCert, body)
	if err != nil {
		r.State = TransportFailed
		r.OperationResult = failed("error contacting portal", err)
		return r
	}

	r.State = Rejected
	r.OperationResult = decodeResult(res, "certificate request rejected")
	if !r.Success {
		return r
	}

	certs, err := DecodeCertificatePEM(r.Message)
	if err != nil {
		r.OperationResult = failed("portal returned an unreadable certificate",
			fmt.Errorf("error in DecodeCertificatePEM: %w", errors.Join(err, &ServiceError{StatusCode: res.StatusCode, Message: "unreadable certificate"})))
		return r
	}
	issued, err := Bind(certs, key)
	if err != nil {
		r.OperationResult = failed("portal returned a certificate for a different key", err)
		return r
	}

	r.State = CertificateIssued
	r.Certificate = issued
	r.OperationResult = OperationResult{Success: true, Message: "certificate issued"}
	return r
}
