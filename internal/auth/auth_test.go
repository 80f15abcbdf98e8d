package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct{ msg string }

func (f failingProvider) User() (string, error) { return "", errors.New(f.msg) }

func TestStaticProvider_User(t *testing.T) {
	id, err := (&StaticProvider{ID: "  alice "}).User()
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = (&StaticProvider{}).User()
	assert.Error(t, err)
}

func TestEnvProvider_User_Success(t *testing.T) {
	t.Setenv(EnvVar, "bob")

	id, err := (&EnvProvider{}).User()
	require.NoError(t, err)
	assert.Equal(t, "bob", id)
}

func TestEnvProvider_User_Missing(t *testing.T) {
	t.Setenv(EnvVar, "")

	id, err := (&EnvProvider{}).User()
	assert.Error(t, err)
	assert.Empty(t, id)
	assert.Contains(t, err.Error(), EnvVar)
}

func TestGitProvider_User(t *testing.T) {
	id, err := (&GitProvider{}).User()

	// Depends on the machine's git setup; only the shape is checked.
	if err != nil {
		assert.Contains(t, err.Error(), "git")
	} else {
		assert.NotEmpty(t, id)
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	id, err := Resolve(failingProvider{"nope"}, &StaticProvider{ID: "carol"}, &StaticProvider{ID: "dave"})
	require.NoError(t, err)
	assert.Equal(t, "carol", id)
}

func TestResolve_AllFail(t *testing.T) {
	_, err := Resolve(failingProvider{"first"}, failingProvider{"second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
	assert.Contains(t, err.Error(), EnvVar)
}

func TestGetUser_ExplicitBeatsEnv(t *testing.T) {
	t.Setenv(EnvVar, "from-env")

	id, err := GetUser("from-flag")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", id)

	id, err = GetUser("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", id)
}

func TestUserProvider_Interface(t *testing.T) {
	var _ UserProvider = &StaticProvider{}
	var _ UserProvider = &EnvProvider{}
	var _ UserProvider = &GitProvider{}
}
