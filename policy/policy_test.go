package policy

import (
	"testing"

	"github.com/gobwas/glob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	patternTest struct {
		Pattern, Match string
		ShouldMatch    bool
	}
)

func TestGlobMatch(t *testing.T) {
	var g glob.Glob
	patterns := []patternTest{
		{
			Match:       "dev-1.devices.example.com",
			Pattern:     "*.devices.example.com",
			ShouldMatch: true,
		},
		{
			Match:       "a.dev-1.devices.example.com",
			Pattern:     "*.devices.example.com",
			ShouldMatch: false,
		},
		{
			Match:       "a.dev-1.devices.example.com",
			Pattern:     "**.devices.example.com",
			ShouldMatch: true,
		},
		{
			Match:       "devices.example.com",
			Pattern:     "*.devices.example.com",
			ShouldMatch: false,
		},
		{
			Match:       "dev-1.devices.example.com",
			Pattern:     "dev-*.devices.example.com",
			ShouldMatch: true,
		},
		{
			Match:       "dev-1.devices.example.org",
			Pattern:     "*.devices.example.com",
			ShouldMatch: false,
		},
		{
			Match:       "host.example.com",
			Pattern:     "{host,edge}.example.com",
			ShouldMatch: true,
		},
	}

	for _, pattern := range patterns {
		g = glob.MustCompile(pattern.Pattern, globSeparators...)
		matched := g.Match(pattern.Match)
		if matched != pattern.ShouldMatch {
			t.Fatalf("Patern %s == %s = %v expected = %v", pattern.Pattern, pattern.Match, matched, pattern.ShouldMatch)
		}
	}
}

func TestPolicy(t *testing.T) {
	p, err := New("*.devices.example.com", " Host.Example.com ", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"*.devices.example.com", "host.example.com"}, p.Patterns())

	assert.True(t, p.Allows("dev-1.devices.example.com"))
	assert.True(t, p.Allows("DEV-1.Devices.Example.com."))
	assert.True(t, p.Allows("host.example.com"))
	assert.False(t, p.Allows("other.example.com"))
}

func TestEmptyPolicyAllowsAll(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	assert.True(t, p.Allows("anything.example.com"))

	var nilPolicy *Policy
	assert.True(t, nilPolicy.Allows("anything.example.com"))
}

func TestInvalidPattern(t *testing.T) {
	_, err := New("[a-")
	assert.ErrorIs(t, err, ErrInvalidPattern)
}
