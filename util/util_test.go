package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHome(t *testing.T) {
	home, err := Home()
	require.NoError(t, err)
	assert.NotEmpty(t, home)
	assert.True(t, filepath.IsAbs(home))

	// Cached result is stable.
	again, err := Home()
	require.NoError(t, err)
	assert.Equal(t, home, again)
}

func TestCurrentUsername(t *testing.T) {
	name, err := CurrentUsername()
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))
	missing := filepath.Join(dir, "missing")

	assert.Equal(t, present, FirstExisting(missing, present))
	assert.Equal(t, present, FirstExisting(present, missing))
	assert.Empty(t, FirstExisting(missing))
	assert.Empty(t, FirstExisting())
}

func TestSSHDir(t *testing.T) {
	dir, err := SSHDir()
	require.NoError(t, err)
	assert.Equal(t, ".ssh", filepath.Base(dir))
	assert.True(t, filepath.IsAbs(dir))
}
