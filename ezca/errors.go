package ezca

import (
	"errors"
	"fmt"

	"github.com/danthegoodman1/Provisio/auth"
	"github.com/danthegoodman1/Provisio/csr"
	"github.com/danthegoodman1/Provisio/transport"
)

var (
	ErrInvalidArgument = csr.ErrInvalidArgument
	ErrAuth            = auth.ErrAuth
	ErrTransport       = transport.ErrTransport

	// ErrService covers every answer from the portal that is not what we asked for: high
	// status codes, malformed payloads, Success=false.
	ErrService = errors.New("service error")

	ErrCertificateMismatch = errors.New("certificate does not match private key")
	ErrNotFound            = errors.New("not found")
	ErrDecoding            = errors.New("error decoding")
)

type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error: status %d - %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return ErrService
}
