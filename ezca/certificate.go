package ezca

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/danthegoodman1/Provisio/csr"
)

var pemMarkerRe = regexp.MustCompile(`-----[a-zA-Z ]+-----`)

type IssuedCertificate struct {
	Leaf *x509.Certificate
	// Issuers is whatever chain the portal sent after the leaf, possibly empty.
	Issuers    []*x509.Certificate
	PrivateKey crypto.Signer
	// CertPEM holds the leaf only.
	CertPEM string
}

// DecodeCertificatePEM returns every certificate in the input, leaf first. When the portal
// sends something pem.Decode does not accept, the markers are stripped and the rest is read
// as base64 DER.
func DecodeCertificatePEM(input string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := []byte(strings.TrimSpace(input))
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("error parsing decoded cert block: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) > 0 {
		return certs, nil
	}

	stripped := strings.Join(strings.Fields(pemMarkerRe.ReplaceAllString(input, "")), "")
	der, err := base64.StdEncoding.DecodeString(stripped)
	if err != nil {
		return nil, fmt.Errorf("error decoding certificate: %w: %w", ErrDecoding, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("error parsing certificate: %w: %w", ErrDecoding, err)
	}
	return []*x509.Certificate{cert}, nil
}

// Bind pairs the leaf (first cert) with the key that signed its CSR.
func Bind(certs []*x509.Certificate, key crypto.Signer) (*IssuedCertificate, error) {
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates to bind: %w", ErrDecoding)
	}
	leaf := certs[0]
	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(leaf.PublicKey) {
		return nil, fmt.Errorf("leaf %s: %w", leaf.Subject.CommonName, ErrCertificateMismatch)
	}
	return &IssuedCertificate{
		Leaf:       leaf,
		Issuers:    certs[1:],
		PrivateKey: key,
		CertPEM:    string(csr.PEMEncode(leaf)),
	}, nil
}

// ParseIssuedCertificate rebuilds a bound certificate from stored PEM, the leaf first in certPEM.
func ParseIssuedCertificate(certPEM, keyPEM []byte) (*IssuedCertificate, error) {
	certs, err := DecodeCertificatePEM(string(certPEM))
	if err != nil {
		return nil, fmt.Errorf("error in DecodeCertificatePEM: %w", err)
	}
	key, err := csr.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("error in ParsePrivateKey: %w", err)
	}
	return Bind(certs, key)
}

func (c *IssuedCertificate) KeyPEM() ([]byte, error) {
	return csr.MarshalPrivateKey(c.PrivateKey)
}

func (c *IssuedCertificate) IssuerPEM() string {
	var sb strings.Builder
	for _, issuer := range c.Issuers {
		sb.Write(csr.PEMEncode(issuer))
	}
	return sb.String()
}

// FullChainPEM is the leaf followed by its issuers.
func (c *IssuedCertificate) FullChainPEM() string {
	return c.CertPEM + c.IssuerPEM()
}

func (c *IssuedCertificate) NotAfter() time.Time {
	return c.Leaf.NotAfter
}

// TLSCertificate is ready for tls.Config.Certificates on the device side.
func (c *IssuedCertificate) TLSCertificate() tls.Certificate {
	chain := [][]byte{c.Leaf.Raw}
	for _, issuer := range c.Issuers {
		chain = append(chain, issuer.Raw)
	}
	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  c.PrivateKey,
		Leaf:        c.Leaf,
	}
}
