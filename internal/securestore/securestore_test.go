package securestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, passphrase string) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.sealed")
	return NewFileStore(path, []byte(passphrase))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newStore(t, "device-secret")

	want := Tokens{AccessToken: "acc-1", RefreshToken: "ref-1"}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_MissingFile(t *testing.T) {
	s := newStore(t, "device-secret")

	_, err := s.Load()
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestLoad_WrongPassphraseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.sealed")

	s1 := NewFileStore(path, []byte("right"))
	require.NoError(t, s1.Save(Tokens{AccessToken: "a"}))

	s2 := NewFileStore(path, []byte("wrong"))
	_, err := s2.Load()
	assert.True(t, errors.Is(err, common.ErrPersistence))
}

func TestSave_FilePermissions(t *testing.T) {
	s := newStore(t, "device-secret")
	require.NoError(t, s.Save(Tokens{AccessToken: "a"}))

	info, err := os.Stat(s.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestClear(t *testing.T) {
	s := newStore(t, "device-secret")
	require.NoError(t, s.Save(Tokens{AccessToken: "a"}))
	require.NoError(t, s.Clear())

	_, err := s.Load()
	assert.True(t, errors.Is(err, common.ErrNotFound))

	// clearing again is not an error
	require.NoError(t, s.Clear())
}
