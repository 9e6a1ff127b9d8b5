package portal

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
)

var ErrNoServer = errors.New("server not started")

type Server struct {
	Portal *Portal

	httpServer *http.Server
	h3Server   *http3.Server
	listener   net.Listener
}

// ServingCertificate issues a TLS server certificate for hosts from the portal CA.
func (p *Portal) ServingCertificate(hosts ...string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("error generating serving key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return tls.Certificate{}, err
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: hosts[0]},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().AddDate(0, 1, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, template, p.caCert, key.Public(), p.caKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("error in x509.CreateCertificate for serving cert: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der, p.caCert.Raw},
		PrivateKey:  key,
	}, nil
}

// Start serves the portal over TLS on addr (HTTP/1.1 and HTTP/2), and over HTTP/3 on the same
// UDP port when h3 is set. It returns once the listeners are up.
func (s *Server) Start(addr string, h3 bool, hosts ...string) error {
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	cert, err := s.Portal.ServingCertificate(hosts...)
	if err != nil {
		return fmt.Errorf("error in ServingCertificate: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Portal.Handler(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err = http2.ConfigureServer(s.httpServer, nil)
	if err != nil {
		return fmt.Errorf("error in http2.ConfigureServer: %w", err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	logger.Debug().Msgf("portal listening on %s (HTTP/1.1 and HTTP/2)", listener.Addr())
	go func() {
		err := s.httpServer.ServeTLS(listener, "", "")
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("portal https server stopped")
		}
	}()

	if h3 {
		s.h3Server = &http3.Server{
			TLSConfig:  http3.ConfigureTLSConfig(tlsConfig),
			Handler:    s.Portal.Handler(),
			QUICConfig: &quic.Config{},
			Addr:       addr,
		}
		logger.Debug().Msgf("portal listening on %s (HTTP/3)", addr)
		go func() {
			err := s.h3Server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("portal http3 server stopped")
			}
		}()
	}
	return nil
}

// Addr is the bound TCP address, useful when Start was given port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return ErrNoServer
	}
	g := errgroup.Group{}
	g.Go(func() error {
		return s.httpServer.Shutdown(ctx)
	})
	if s.h3Server != nil {
		g.Go(func() error {
			return s.h3Server.Shutdown(ctx)
		})
	}
	return g.Wait()
}
