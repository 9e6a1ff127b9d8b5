package csr

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaultRSA(t *testing.T) {
	key, req, err := Build("host.example.com", Options{})
	require.NoError(t, err)

	rsaKey, ok := key.PrivateKey.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.Equal(t, 4096, rsaKey.N.BitLen())

	assert.Equal(t, "CN=host.example.com", req.SubjectName)
	assert.Equal(t, []string{"host.example.com"}, req.SubjectAltNames)
	assert.True(t, strings.HasPrefix(req.CSRPEM, "-----BEGIN CERTIFICATE REQUEST-----\n"))
	for _, line := range strings.Split(strings.TrimSpace(req.CSRPEM), "\n") {
		assert.LessOrEqual(t, len(line), 64)
	}

	parsed, err := ParsePEM([]byte(req.CSRPEM))
	require.NoError(t, err)
	assert.Equal(t, "host.example.com", parsed.Subject.CommonName)
	assert.Equal(t, []string{"host.example.com"}, parsed.DNSNames)
	assert.True(t, rsaKey.PublicKey.Equal(parsed.PublicKey))
}

func TestBuildEC(t *testing.T) {
	key, req, err := Build("dev-1.example.com", Options{KeyType: KeyEC384, SubjectAltNames: []string{"a.example.com", "b.example.com"}})
	require.NoError(t, err)
	ecKey, ok := key.PrivateKey.(*ecdsa.PrivateKey)
	require.True(t, ok)

	parsed, err := ParsePEM([]byte(req.CSRPEM))
	require.NoError(t, err)
	assert.Equal(t, "dev-1.example.com", parsed.Subject.CommonName)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, parsed.DNSNames)
	assert.True(t, ecKey.PublicKey.Equal(parsed.PublicKey))
}

func TestBuildFreshKeyEachCall(t *testing.T) {
	a, _, err := Build("x.example.com", Options{KeyType: KeyEC256})
	require.NoError(t, err)
	b, _, err := Build("x.example.com", Options{KeyType: KeyEC256})
	require.NoError(t, err)
	assert.False(t, a.PrivateKey.(*ecdsa.PrivateKey).Equal(b.PrivateKey))
}

func TestBuildBlankName(t *testing.T) {
	_, _, err := Build("  ", Options{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUnsupportedKeyType(t *testing.T) {
	_, _, err := Build("x.example.com", Options{KeyType: "DSA"})
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	for _, typ := range []KeyType{KeyEC256, KeyRSA2048} {
		key, err := GenerateKey(typ)
		require.NoError(t, err)
		b, err := MarshalPrivateKey(key)
		require.NoError(t, err)
		back, err := ParsePrivateKey(b)
		require.NoError(t, err)
		assert.True(t, back.Public().(interface{ Equal(crypto.PublicKey) bool }).Equal(key.Public()), typ)
	}
}

func TestParsePEMRejectsGarbage(t *testing.T) {
	_, err := ParsePEM([]byte("nope"))
	assert.ErrorIs(t, err, ErrNoPEMBlock)
}

func TestKeyTypeSupported(t *testing.T) {
	for _, typ := range []KeyType{"", KeyRSA2048, KeyRSA4096, KeyEC256, KeyEC384} {
		assert.True(t, typ.Supported(), typ)
	}
	assert.False(t, KeyType("DSA").Supported())
}

func TestBuildValidity(t *testing.T) {
	_, req, err := Build("v.example.com", Options{KeyType: KeyEC256, ValidityInDays: 30})
	require.NoError(t, err)
	assert.Equal(t, 30, req.ValidityInDays)

	_, _, err = Build("v.example.com", Options{KeyType: KeyEC256, ValidityInDays: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
