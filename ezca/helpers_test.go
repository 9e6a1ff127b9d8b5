package ezca_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danthegoodman1/Provisio/csr"
	"github.com/danthegoodman1/Provisio/ezca"
	"github.com/danthegoodman1/Provisio/transport"
	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	token         string
	calls         int32
	invalidations int32
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.token, nil
}

func (f *fakeTokens) Invalidate() {
	atomic.AddInt32(&f.invalidations, 1)
}

type instantTimer struct {
	c chan time.Time
}

func (i *instantTimer) Start(time.Duration) { i.c <- time.Now() }
func (i *instantTimer) Stop()               {}
func (i *instantTimer) C() <-chan time.Time { return i.c }

func newTransport() *transport.Client {
	return transport.New(transport.Options{Timer: &instantTimer{c: make(chan time.Time, 1)}})
}

func identityToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte("0123456789abcdef0123456789abcdef")}, nil)
	require.NoError(t, err)
	tok, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	require.NoError(t, err)
	return tok
}

type testCA struct {
	key  *ecdsa.PrivateKey
	cert *x509.Certificate
}

func newTestCA(t *testing.T) *testCA {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &testCA{key: key, cert: cert}
}

// issue signs a certificate for cn over pub.
func (ca *testCA) issue(t *testing.T, cn string, pub any) string {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, pub, ca.key)
	require.NoError(t, err)
	return string(csr.PEMEncode(csr.CertificateDER(der)))
}

// portalStub answers each path with its handler and counts hits.
type portalStub struct {
	mu       sync.Mutex
	hits     map[string]int
	handlers map[string]http.HandlerFunc
}

func newPortalStub(t *testing.T, handlers map[string]http.HandlerFunc) (*portalStub, *httptest.Server) {
	t.Helper()
	s := &portalStub{hits: map[string]int{}, handlers: handlers}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		h, ok := s.handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *portalStub) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits["/"+path]
}

func newClient(t *testing.T, url string, tokens ezca.TokenProvider, opts ezca.Options) *ezca.Client {
	t.Helper()
	if opts.KeyType == "" {
		opts.KeyType = csr.KeyEC256
	}
	c, err := ezca.New(url, tokens, newTransport(), opts)
	require.NoError(t, err)
	return c
}
