package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyResolveEnv(t *testing.T) {
	t.Setenv("TALLY_TEST_SECRET", "hunter2")

	val, err := Key{Env: "TALLY_TEST_SECRET"}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", val)
}

func TestKeyResolveEnvMissing(t *testing.T) {
	_, err := Key{Env: "TALLY_TEST_DEFINITELY_UNSET"}.Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TALLY_TEST_DEFINITELY_UNSET")
}

func TestKeyResolveCmd(t *testing.T) {
	val, err := Key{Cmd: "echo '  hunter2  '"}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", val, "command output should be trimmed")
}

func TestKeyResolveCmdFailure(t *testing.T) {
	_, err := Key{Cmd: "echo 'no such secret' >&2; exit 1"}.Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such secret")
}

func TestKeyResolveEmpty(t *testing.T) {
	_, err := Key{}.Resolve()
	require.Error(t, err)
}

func TestKeyIsZero(t *testing.T) {
	assert.True(t, Key{}.IsZero())
	assert.False(t, Key{Env: "X"}.IsZero())
	assert.False(t, Key{Cmd: "true"}.IsZero())
}
