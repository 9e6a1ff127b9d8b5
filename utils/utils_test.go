package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOrDefaultInt64(t *testing.T) {
	t.Setenv("TEST_INT", "")
	v, err := EnvOrDefaultInt64("TEST_INT", 42)
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	t.Setenv("TEST_INT", "7")
	v, err = EnvOrDefaultInt64("TEST_INT", 42)
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)

	t.Setenv("TEST_INT", "seven")
	_, err = EnvOrDefaultInt64("TEST_INT", 42)
	assert.Error(t, err)
	assert.Panics(t, func() { MustEnvOrDefaultInt64("TEST_INT", 42) })
}

func TestEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	assert.True(t, EnvBool("TEST_BOOL"))
	t.Setenv("TEST_BOOL", "nope")
	assert.False(t, EnvBool("TEST_BOOL"))
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b.c"}, SplitNonEmpty(" a, ,b.c,", ","))
	assert.Nil(t, SplitNonEmpty("", ","))
}

func TestGenKSortedID(t *testing.T) {
	a := GenKSortedID("wf_")
	b := GenKSortedID("wf_")
	assert.True(t, strings.HasPrefix(a, "wf_"))
	assert.NotEqual(t, a, b)
}
