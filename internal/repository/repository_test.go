package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permfuzz/internal/anomaly"
	"permfuzz/internal/seed"
)

func TestPersistThenListRoundTrips(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir())
	require.NoError(t, err)
	s := seed.NewInitialSeed([]byte{1, 2, 3}, "Foo", "pkg", 10)
	s.Interestingness = 0.75
	g := anomaly.NewGroup(anomaly.Time)
	g.Slower.Add("jdk-a")
	g.Faster.Add("jdk-b")
	s.Anomalies = append(s.Anomalies, g)

	path, err := repo.Persist(s)
	require.NoError(t, err)
	require.NotEmpty(t, path)

	listed, err := repo.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	got := listed[0]
	assert.Equal(t, "Foo", got.Class)
	assert.Equal(t, "pkg", got.Package)
	assert.Equal(t, 0.75, got.Interestingness)
	assert.True(t, got.Verified, "a listed seed must be marked Verified")
	assert.Equal(t, []byte{1, 2, 3}, got.Artifact)
}

func TestListEmptyDirectory(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir())
	require.NoError(t, err)
	listed, err := repo.List()
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestPersistCreatesDistinctFilesPerSeed(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir())
	require.NoError(t, err)
	s1 := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	s2 := seed.NewInitialSeed([]byte{2}, "Foo", "pkg", 10)
	p1, err := repo.Persist(s1)
	require.NoError(t, err)
	p2, err := repo.Persist(s2)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2, "expected distinct files for distinct seeds")
	listed, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

var _ Repository = (*FileRepository)(nil)
