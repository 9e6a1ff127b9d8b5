package csr

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

type (
	CSRDER         []byte
	CertificateDER []byte
)

var ErrNoPEMBlock = errors.New("no PEM block found")

// PEMEncode encodes keys, CSRs and certificates. pem.EncodeToMemory wraps at 64 columns.
func PEMEncode(data any) []byte {
	block := PEMBlock(data)
	if block == nil {
		return nil
	}
	return pem.EncodeToMemory(block)
}

func PEMBlock(data any) *pem.Block {
	var pemBlock *pem.Block
	switch key := data.(type) {
	case *ecdsa.PrivateKey:
		keyBytes, _ := x509.MarshalECPrivateKey(key)
		pemBlock = &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}
	case *rsa.PrivateKey:
		pemBlock = &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	case *x509.CertificateRequest:
		pemBlock = &pem.Block{Type: "CERTIFICATE REQUEST", Bytes: key.Raw}
	case CSRDER:
		pemBlock = &pem.Block{Type: "CERTIFICATE REQUEST", Bytes: key}
	case *x509.Certificate:
		pemBlock = &pem.Block{Type: "CERTIFICATE", Bytes: key.Raw}
	case CertificateDER:
		pemBlock = &pem.Block{Type: "CERTIFICATE", Bytes: key}
	}
	return pemBlock
}

// MarshalPrivateKey PEM encodes RSA keys as PKCS#1 and EC keys as SEC1.
func MarshalPrivateKey(key crypto.Signer) ([]byte, error) {
	switch key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
		return PEMEncode(key), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
}

// ParsePrivateKey reverses MarshalPrivateKey, and also accepts PKCS#8.
func ParsePrivateKey(keyPEM []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("error in x509.ParsePKCS1PrivateKey: %w", err)
		}
		return k, nil
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("error in x509.ParseECPrivateKey: %w", err)
		}
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("error in x509.ParsePKCS8PrivateKey: %w", err)
	}
	signer, ok := k.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, k)
	}
	return signer, nil
}

func decodeBlock(data []byte, typ string) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	if block.Type != typ {
		return nil, fmt.Errorf("unexpected PEM block type %q, wanted %q", block.Type, typ)
	}
	return block.Bytes, nil
}
