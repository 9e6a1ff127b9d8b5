package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danthegoodman1/Provisio/ezca"
)

// FileStore writes <name>.cert, <name>.key and <name>.issuer into Dir.
type FileStore struct {
	Dir string
}

func (f *FileStore) path(name, ext string) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s.%s", name, ext))
}

func (f *FileStore) Save(ctx context.Context, name string, cert *ezca.IssuedCertificate) error {
	if err := validName(name); err != nil {
		return err
	}
	keyPEM, err := cert.KeyPEM()
	if err != nil {
		return fmt.Errorf("error in KeyPEM: %w", err)
	}
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return fmt.Errorf("error creating cert dir: %w", err)
	}

	err = os.WriteFile(f.path(name, "issuer"), []byte(cert.IssuerPEM()), 0o644)
	if err != nil {
		return fmt.Errorf("error writing issuer to disk: %w", err)
	}
	err = os.WriteFile(f.path(name, "key"), keyPEM, 0o600)
	if err != nil {
		return fmt.Errorf("error writing key to disk: %w", err)
	}
	err = os.WriteFile(f.path(name, "cert"), []byte(cert.CertPEM), 0o644)
	if err != nil {
		return fmt.Errorf("error writing cert to disk: %w", err)
	}

	logger.Debug().Str("dir", f.Dir).Str("name", name).Msg("stored certificate")
	return nil
}

func (f *FileStore) Load(ctx context.Context, name string) (*ezca.IssuedCertificate, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	certBytes, err := os.ReadFile(f.path(name, "cert"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error in os.ReadFile for cert: %w", err)
	}
	keyBytes, err := os.ReadFile(f.path(name, "key"))
	if err != nil {
		return nil, fmt.Errorf("error in os.ReadFile for key: %w", err)
	}
	issuerBytes, err := os.ReadFile(f.path(name, "issuer"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error in os.ReadFile for issuer: %w", err)
	}

	return ezca.ParseIssuedCertificate(append(certBytes, issuerBytes...), keyBytes)
}
