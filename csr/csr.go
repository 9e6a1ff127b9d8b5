package csr

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"strings"
)

type KeyType string

const (
	KeyRSA2048 KeyType = "RSA2048"
	KeyRSA4096 KeyType = "RSA4096"
	KeyEC256   KeyType = "EC256"
	KeyEC384   KeyType = "EC384"

	DefaultKeyType = KeyRSA4096
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupportedKey  = errors.New("unsupported key type")
)

type (
	// KeyPair never leaves the process, only its public half goes out inside the CSR.
	KeyPair struct {
		PrivateKey crypto.Signer
	}

	SigningRequest struct {
		// SubjectName is the distinguished name, always CN=<domain>
		SubjectName     string
		SubjectAltNames []string
		// CSRPEM is the PKCS#10 request as a CERTIFICATE REQUEST PEM block
		CSRPEM string
		// ValidityInDays is what the CA is asked for, 0 when unset
		ValidityInDays int
	}

	Options struct {
		KeyType KeyType
		// SubjectAltNames defaults to just the common name.
		SubjectAltNames []string
		ValidityInDays  int
	}
)

// Supported reports whether GenerateKey can produce typ. Empty means DefaultKeyType.
func (typ KeyType) Supported() bool {
	switch typ {
	case "", KeyRSA2048, KeyRSA4096, KeyEC256, KeyEC384:
		return true
	}
	return false
}

func (k *KeyPair) Public() crypto.PublicKey {
	return k.PrivateKey.Public()
}

// Build generates a fresh key pair and a CSR for commonName signed with it.
func Build(commonName string, opts Options) (*KeyPair, *SigningRequest, error) {
	if strings.TrimSpace(commonName) == "" {
		return nil, nil, fmt.Errorf("%w: common name is blank", ErrInvalidArgument)
	}
	key, err := GenerateKey(opts.KeyType)
	if err != nil {
		return nil, nil, fmt.Errorf("error in GenerateKey: %w", err)
	}
	req, err := BuildWithKey(commonName, key, opts)
	if err != nil {
		return nil, nil, err
	}
	return &KeyPair{PrivateKey: key}, req, nil
}

// BuildWithKey signs a CSR for commonName with an existing key. opts.KeyType is ignored.
func BuildWithKey(commonName string, key crypto.Signer, opts Options) (*SigningRequest, error) {
	commonName = strings.TrimSpace(commonName)
	if commonName == "" {
		return nil, fmt.Errorf("%w: common name is blank", ErrInvalidArgument)
	}

	if opts.ValidityInDays < 0 {
		return nil, fmt.Errorf("%w: validity days must not be negative, got %d", ErrInvalidArgument, opts.ValidityInDays)
	}

	san := opts.SubjectAltNames
	if len(san) == 0 {
		san = []string{commonName}
	}

	template := x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: commonName},
		DNSNames:           san,
		SignatureAlgorithm: signatureAlgorithm(key),
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return nil, fmt.Errorf("error in x509.CreateCertificateRequest: %w", err)
	}

	return &SigningRequest{
		SubjectName:     "CN=" + commonName,
		SubjectAltNames: san,
		CSRPEM:          string(PEMEncode(CSRDER(der))),
		ValidityInDays:  opts.ValidityInDays,
	}, nil
}

func GenerateKey(typ KeyType) (crypto.Signer, error) {
	var (
		pk  crypto.Signer
		err error
	)
	switch typ {
	case "", KeyRSA4096:
		pk, err = rsa.GenerateKey(rand.Reader, 4096)
	case KeyRSA2048:
		pk, err = rsa.GenerateKey(rand.Reader, 2048)
	case KeyEC256:
		pk, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case KeyEC384:
		pk, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKey, typ)
	}
	return pk, err
}

func signatureAlgorithm(key crypto.Signer) x509.SignatureAlgorithm {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return x509.SHA256WithRSA
	case *ecdsa.PrivateKey:
		if k.Curve == elliptic.P384() {
			return x509.ECDSAWithSHA384
		}
		return x509.ECDSAWithSHA256
	}
	return x509.UnknownSignatureAlgorithm
}

// ParsePEM decodes a CERTIFICATE REQUEST block and checks its self-signature.
func ParsePEM(csrPEM []byte) (*x509.CertificateRequest, error) {
	der, err := decodeBlock(csrPEM, "CERTIFICATE REQUEST")
	if err != nil {
		return nil, err
	}
	req, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("error in x509.ParseCertificateRequest: %w", err)
	}
	if err := req.CheckSignature(); err != nil {
		return nil, fmt.Errorf("error in CheckSignature: %w", err)
	}
	return req, nil
}
