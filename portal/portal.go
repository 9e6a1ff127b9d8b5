package portal

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danthegoodman1/Provisio/csr"
	"github.com/danthegoodman1/Provisio/gologger"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const (
	PathListCAs        = "/api/CA/GetAvailableSSLCAs"
	PathRegisterDomain = "/api/CA/RegisterNewDomain"
	PathRequestCert    = "/api/CA/RequestSSLCertificate"
)

var logger = gologger.NewLogger()

type (
	Authority struct {
		CAID                       string `json:"CAID"`
		TemplateID                 string `json:"TemplateID"`
		CAFriendlyName             string `json:"CAFriendlyName"`
		CAType                     string `json:"CAType"`
		MaxCertificateValidityDays int    `json:"MaxCertificateValidityDays"`
	}

	Principal struct {
		ObjectID string `json:"ObjectID"`
		Name     string `json:"Name"`
	}

	APIResult struct {
		Success bool   `json:"Success"`
		Message string `json:"Message"`
	}

	RegisterDomainRequest struct {
		CAID       string      `json:"CAID"`
		TemplateID string      `json:"TemplateID"`
		Domain     string      `json:"Domain"`
		Owners     []Principal `json:"Owners"`
		Requesters []Principal `json:"Requesters"`
	}

	CertificateRequest struct {
		CAID            string   `json:"CAID"`
		TemplateID      string   `json:"TemplateID"`
		SubjectName     string   `json:"SubjectName"`
		SubjectAltNames []string `json:"SubjectAltNames"`
		CSR             string   `json:"CSR"`
		ValidityInDays  int      `json:"ValidityInDays"`
	}

	registration struct {
		Owners     []Principal
		Requesters []Principal
	}

	// Portal is a local stand-in for the issuance portal. Every CA it lists signs with the
	// same in-memory ECDSA key.
	Portal struct {
		authorities []Authority
		caKey       *ecdsa.PrivateKey
		caCert      *x509.Certificate

		mu         sync.Mutex
		domains    map[string]registration
		failNext   int
		failStatus int
		requests   map[string]int

		echo *echo.Echo
	}
)

// New creates a portal offering the given authorities.
func New(authorities ...Authority) (*Portal, error) {
	if len(authorities) == 0 {
		return nil, fmt.Errorf("at least one authority is required")
	}
	caKey, caCert, err := newCA("Provisio Dev Root CA")
	if err != nil {
		return nil, fmt.Errorf("error in newCA: %w", err)
	}
	p := &Portal{
		authorities: authorities,
		caKey:       caKey,
		caCert:      caCert,
		domains:     map[string]registration{},
		requests:    map[string]int{},
	}
	p.echo = p.newEcho()
	return p, nil
}

func newCA(name string) (*ecdsa.PrivateKey, *x509.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("error generating CA key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, nil, err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: name, Organization: []string{"Provisio"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return nil, nil, fmt.Errorf("error in x509.CreateCertificate for CA: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing CA cert: %w", err)
	}
	return key, cert, nil
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("error generating serial: %w", err)
	}
	return serial, nil
}

func (p *Portal) Handler() http.Handler {
	return p.echo
}

// CACertificate is the issuer of every certificate this portal signs.
func (p *Portal) CACertificate() *x509.Certificate {
	return p.caCert
}

func (p *Portal) CACertificatePEM() []byte {
	return csr.PEMEncode(p.caCert)
}

// FailNext makes the next n requests, of any path, answer with status.
func (p *Portal) FailNext(n, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = n
	p.failStatus = status
}

// Requests is how many requests reached path, injected failures included.
func (p *Portal) Requests(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[path]
}

// Registered reports whether domain is registered under caID.
func (p *Portal) Registered(caID, domain string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.domains[registrationKey(caID, domain)]
	return ok
}

// Owners lists who registered domain under caID.
func (p *Portal) Owners(caID, domain string) []Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.domains[registrationKey(caID, domain)].Owners
}

func (p *Portal) authority(caID, templateID string) (Authority, bool) {
	return lo.Find(p.authorities, func(a Authority) bool {
		return a.CAID == caID && (templateID == "" || a.TemplateID == templateID)
	})
}

func registrationKey(caID, domain string) string {
	return caID + "/" + strings.ToLower(strings.TrimSpace(domain))
}

// register records domain under caID. A domain already registered by someone else is refused.
func (p *Portal) register(req RegisterDomainRequest) (bool, string) {
	key := registrationKey(req.CAID, req.Domain)
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.domains[key]; ok {
		sameOwner := lo.SomeBy(existing.Owners, func(o Principal) bool {
			return lo.ContainsBy(req.Owners, func(r Principal) bool { return r.ObjectID == o.ObjectID })
		})
		if !sameOwner {
			return false, fmt.Sprintf("Domain %s is already registered by another owner", req.Domain)
		}
		return true, fmt.Sprintf("Domain %s is already registered", req.Domain)
	}
	p.domains[key] = registration{Owners: req.Owners, Requesters: req.Requesters}
	return true, fmt.Sprintf("Domain %s registered successfully", req.Domain)
}

// sign issues a certificate for the CSR with the subject and SANs the request asked for.
func (p *Portal) sign(req CertificateRequest) ([]byte, error) {
	parsed, err := csr.ParsePEM([]byte(req.CSR))
	if err != nil {
		return nil, fmt.Errorf("error in csr.ParsePEM: %w", err)
	}
	cn := strings.TrimPrefix(req.SubjectName, "CN=")
	if parsed.Subject.CommonName != cn {
		return nil, fmt.Errorf("CSR common name %q does not match subject %q", parsed.Subject.CommonName, req.SubjectName)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	dnsNames := req.SubjectAltNames
	if len(dnsNames) == 0 {
		dnsNames = parsed.DNSNames
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     dnsNames,
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.AddDate(0, 0, req.ValidityInDays),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, p.caCert, parsed.PublicKey, p.caKey)
	if err != nil {
		return nil, fmt.Errorf("error in x509.CreateCertificate: %w", err)
	}
	return der, nil
}
