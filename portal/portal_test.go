package portal

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danthegoodman1/Provisio/csr"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthority = Authority{
	CAID:                       "1",
	TemplateID:                 "t-1",
	CAFriendlyName:             "CA-A",
	CAType:                     "SSL",
	MaxCertificateValidityDays: 30,
}

func newTestPortal(t *testing.T) (*Portal, *httptest.Server) {
	t.Helper()
	p, err := New(testAuthority)
	require.NoError(t, err)
	srv := httptest.NewServer(p.Handler())
	t.Cleanup(srv.Close)
	return p, srv
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestRequiresBearer(t *testing.T) {
	_, srv := newTestPortal(t)
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, http.MethodGet, srv.URL+PathListCAs, "", nil, nil))

	var cas []Authority
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+PathListCAs, "tok", nil, &cas))
	assert.Equal(t, []Authority{testAuthority}, cas)
}

func TestIssueFlow(t *testing.T) {
	p, srv := newTestPortal(t)
	owner := Principal{ObjectID: "oid-1", Name: "device@example.com"}

	_, signingReq, err := csr.Build("host.example.com", csr.Options{KeyType: csr.KeyEC256})
	require.NoError(t, err)
	certReq := CertificateRequest{
		CAID:            "1",
		TemplateID:      "t-1",
		SubjectName:     signingReq.SubjectName,
		SubjectAltNames: signingReq.SubjectAltNames,
		CSR:             signingReq.CSRPEM,
		ValidityInDays:  10,
	}

	var res APIResult
	doJSON(t, http.MethodPost, srv.URL+PathRequestCert, "tok", certReq, &res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "not registered")

	res = APIResult{}
	doJSON(t, http.MethodPost, srv.URL+PathRegisterDomain, "tok", RegisterDomainRequest{
		CAID: "1", TemplateID: "t-1", Domain: "host.example.com",
		Owners: []Principal{owner}, Requesters: []Principal{owner},
	}, &res)
	require.True(t, res.Success, res.Message)
	assert.True(t, p.Registered("1", "host.example.com"))
	assert.Equal(t, []Principal{owner}, p.Owners("1", "host.example.com"))

	res = APIResult{}
	doJSON(t, http.MethodPost, srv.URL+PathRequestCert, "tok", certReq, &res)
	require.True(t, res.Success, res.Message)

	block, rest := pem.Decode([]byte(res.Message))
	require.NotNil(t, block)
	leaf, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "host.example.com", leaf.Subject.CommonName)
	assert.Equal(t, []string{"host.example.com"}, leaf.DNSNames)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 10), leaf.NotAfter, 2*time.Minute)
	require.NoError(t, leaf.CheckSignatureFrom(p.CACertificate()))

	issuer, _ := pem.Decode(rest)
	require.NotNil(t, issuer)
	assert.Equal(t, p.CACertificate().Raw, issuer.Bytes)
}

func TestValidityLimit(t *testing.T) {
	p, srv := newTestPortal(t)
	owner := Principal{ObjectID: "oid-1", Name: "device@example.com"}
	ok, _ := p.register(RegisterDomainRequest{CAID: "1", Domain: "host.example.com", Owners: []Principal{owner}})
	require.True(t, ok)

	_, signingReq, err := csr.Build("host.example.com", csr.Options{KeyType: csr.KeyEC256})
	require.NoError(t, err)
	var res APIResult
	doJSON(t, http.MethodPost, srv.URL+PathRequestCert, "tok", CertificateRequest{
		CAID: "1", SubjectName: signingReq.SubjectName, CSR: signingReq.CSRPEM, ValidityInDays: 365,
	}, &res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestRegisterOtherOwner(t *testing.T) {
	p, _ := newTestPortal(t)
	ok, _ := p.register(RegisterDomainRequest{CAID: "1", Domain: "host.example.com", Owners: []Principal{{ObjectID: "a"}}})
	require.True(t, ok)
	ok, _ = p.register(RegisterDomainRequest{CAID: "1", Domain: "HOST.example.com", Owners: []Principal{{ObjectID: "a"}}})
	assert.True(t, ok)
	ok, msg := p.register(RegisterDomainRequest{CAID: "1", Domain: "host.example.com", Owners: []Principal{{ObjectID: "b"}}})
	assert.False(t, ok)
	assert.Contains(t, msg, "another owner")
}

func TestFailNext(t *testing.T) {
	p, srv := newTestPortal(t)
	p.FailNext(2, http.StatusServiceUnavailable)

	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, http.MethodGet, srv.URL+PathListCAs, "tok", nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, http.MethodGet, srv.URL+PathListCAs, "tok", nil, nil))
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+PathListCAs, "tok", nil, nil))
	assert.Equal(t, 3, p.Requests(PathListCAs))
}

func TestServerTLS(t *testing.T) {
	p, err := New(testAuthority)
	require.NoError(t, err)
	s := &Server{Portal: p}
	require.NoError(t, s.Start("127.0.0.1:0", false))
	defer s.Shutdown(context.Background())

	roots := x509.NewCertPool()
	roots.AddCert(p.CACertificate())
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: roots}}}

	res, err := client.Get("https://" + s.Addr().String() + PathListCAs)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestShutdownWithoutStart(t *testing.T) {
	s := &Server{}
	assert.ErrorIs(t, s.Shutdown(context.Background()), ErrNoServer)
}
