package store

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danthegoodman1/Provisio/ezca"
	"github.com/danthegoodman1/Provisio/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuedCert(t *testing.T, cn string) *ezca.IssuedCertificate {
	t.Helper()
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Store Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(48 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, caKey.Public(), caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caCert, key.Public(), caKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	issued, err := ezca.Bind([]*x509.Certificate{leaf, caCert}, key)
	require.NoError(t, err)
	return issued
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := &FileStore{Dir: filepath.Join(dir, "certs")}
	cert := issuedCert(t, "dev-1.example.com")

	require.NoError(t, s.Save(context.Background(), "dev-1", cert))

	info, err := os.Stat(filepath.Join(dir, "certs", "dev-1.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := s.Load(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cert.Leaf.Raw, loaded.Leaf.Raw)
	require.Len(t, loaded.Issuers, 1)
	assert.Equal(t, cert.Issuers[0].Raw, loaded.Issuers[0].Raw)
	assert.True(t, cert.PrivateKey.(*ecdsa.PrivateKey).Equal(loaded.PrivateKey))
}

func TestFileStoreMissing(t *testing.T) {
	s := &FileStore{Dir: t.TempDir()}
	loaded, err := s.Load(context.Background(), "nothing")
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestInvalidNames(t *testing.T) {
	s := &FileStore{Dir: t.TempDir()}
	for _, name := range []string{"", "../x", "a/b", `a\b`} {
		_, err := s.Load(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	redisURL := utils.EnvOrDefault("TEST_REDIS_URL", "")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	s, err := NewRedisStore(redisURL)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	name := utils.GenKSortedID("test_")
	cert := issuedCert(t, "dev-2.example.com")
	require.NoError(t, s.Save(ctx, name, cert))

	loaded, err := s.Load(ctx, name)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cert.Leaf.Raw, loaded.Leaf.Raw)

	ttl, err := s.client.TTL(ctx, redisKeyPrefix+name).Result()
	require.NoError(t, err)
	assert.InDelta(t, (24 * time.Hour).Seconds(), ttl.Seconds(), 120)

	missing, err := s.Load(ctx, utils.GenKSortedID("missing_"))
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNewRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStore("not-redis://x")
	assert.Error(t, err)
}
