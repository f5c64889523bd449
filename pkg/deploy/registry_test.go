package deploy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openMem(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestDeployAssignsIncreasingVersions(t *testing.T) {
	r := openMem(t)

	res, err := r.Deploy("listeners", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Artifact.Version)
	assert.False(t, res.Unchanged)

	res, err = r.Deploy("listeners", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Artifact.Version)

	content, version, ok := r.Content("listeners")
	require.True(t, ok)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, []byte("v2"), content)
	assert.Len(t, r.Versions("listeners"), 2)
}

func TestDeployIdenticalContentIsNoop(t *testing.T) {
	r := openMem(t)
	_, err := r.Deploy("a", []byte("same"))
	require.NoError(t, err)
	_, err = r.Deploy("a", []byte("other"))
	require.NoError(t, err)
	gen := r.Generation()

	res, err := r.Deploy("a", []byte("same"))
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, uint64(1), res.Artifact.Version, "returns the version holding those bytes")
	assert.Equal(t, gen, r.Generation())

	_, latest, _ := r.Content("a")
	assert.Equal(t, uint64(2), latest, "version does not advance")
}

func TestDeployRejectsBadInput(t *testing.T) {
	r := openMem(t)
	_, err := r.Deploy("", []byte("x"))
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = r.Deploy("a##b", []byte("x"))
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = r.Deploy("a", nil)
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestDeployDoesNotAliasCallerBytes(t *testing.T) {
	r := openMem(t)
	b := []byte("content")
	_, err := r.Deploy("a", b)
	require.NoError(t, err)
	b[0] = 'X'
	content, _, _ := r.Content("a")
	assert.Equal(t, []byte("content"), content)
}

func TestInstallKeepsGivenVersion(t *testing.T) {
	r := openMem(t)
	a := Artifact{Name: "a", Version: 7, Content: []byte("c"), Digest: Digest([]byte("c"))}
	require.NoError(t, r.Install(a))
	require.NoError(t, r.Install(a), "idempotent")

	got, err := r.Get("a", 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), got.Content)

	bad := a
	bad.Version = 8
	bad.Digest++
	require.ErrorIs(t, r.Install(bad), ErrDigestMismatch)
}

func TestRemove(t *testing.T) {
	r := openMem(t)
	_, _ = r.Deploy("a", []byte("1"))
	_, _ = r.Deploy("a", []byte("2"))
	_, _ = r.Deploy("b", []byte("1"))

	n, err := r.Remove("a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, _, ok := r.Content("a")
	assert.False(t, ok)
	require.Len(t, r.Latest(), 1)

	_, err = r.Remove("a")
	require.ErrorIs(t, err, ErrUnknownArtifact)
}

func TestLatestIsSortedByName(t *testing.T) {
	r := openMem(t)
	_, _ = r.Deploy("c", []byte("1"))
	_, _ = r.Deploy("a", []byte("1"))
	_, _ = r.Deploy("b", []byte("1"))
	_, _ = r.Deploy("a", []byte("2"))

	latest := r.Latest()
	require.Len(t, latest, 3)
	assert.Equal(t, "a", latest[0].Name)
	assert.Equal(t, uint64(2), latest[0].Version)
	assert.Equal(t, "b", latest[1].Name)
	assert.Equal(t, "c", latest[2].Name)

	for _, a := range WithoutContent(latest) {
		assert.Nil(t, a.Content)
	}
	assert.NotNil(t, latest[0].Content, "WithoutContent copies")
}

func TestReopenRestoresArtifacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.db")
	r, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	_, _ = r.Deploy("a", []byte("1"))
	_, _ = r.Deploy("a", []byte("2"))
	require.NoError(t, r.Close())

	r, err = Open(path, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()
	content, version, ok := r.Content("a")
	require.True(t, ok)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, []byte("2"), content)

	res, err := r.Deploy("a", []byte("3"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Artifact.Version)
}
