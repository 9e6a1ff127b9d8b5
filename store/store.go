package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danthegoodman1/Provisio/ezca"
	"github.com/danthegoodman1/Provisio/gologger"
)

var (
	logger = gologger.NewLogger()

	ErrInvalidName = errors.New("invalid certificate name")
	ErrExpired     = errors.New("certificate already expired")
)

// Store persists issued certificates with their private keys. Load returns nil, nil when
// nothing is stored under name.
type Store interface {
	Save(ctx context.Context, name string, cert *ezca.IssuedCertificate) error
	Load(ctx context.Context, name string) (*ezca.IssuedCertificate, error)
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
