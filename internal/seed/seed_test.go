package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permfuzz/internal/anomaly"
)

func TestIdentifyStableAndDistinct(t *testing.T) {
	a := Identify([]byte("hello"))
	b := Identify([]byte("hello"))
	c := Identify([]byte("world"))
	assert.Equal(t, a, b, "identical artifacts must have identical identities")
	assert.NotEqual(t, a, c, "distinct artifacts must have distinct identities")
}

func TestNewInitialSeed(t *testing.T) {
	s := NewInitialSeed([]byte{1, 2, 3}, "Foo", "pkg", 10)
	assert.True(t, s.Initial)
	assert.Equal(t, 10, s.Energy)
	assert.Empty(t, s.Lineage, "an initial seed should have no lineage")
}

func TestNewChildSeedExtendsLineage(t *testing.T) {
	parent := NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	child := NewChildSeed(parent, []byte{1, 2}, "bitflip", 5, 3)
	require.Len(t, child.Lineage, 1)
	assert.Equal(t, "bitflip", child.Lineage[0].Strategy)
	assert.False(t, child.Initial, "a child seed must not be marked Initial")
	assert.Equal(t, parent.Class, child.Class)
	assert.Equal(t, parent.Package, child.Package)

	grandchild := NewChildSeed(child, []byte{1, 2, 3}, "byte-insert", 6, 2)
	assert.Len(t, grandchild.Lineage, 2)
}

func TestDecrementEnergyClampsAtZero(t *testing.T) {
	s := NewInitialSeed(nil, "Foo", "pkg", 1)
	s.DecrementEnergy()
	require.Equal(t, 0, s.Energy)
	s.DecrementEnergy()
	assert.Equal(t, 0, s.Energy, "energy must not go negative")
}

func TestDescriptionFallsBackToLineage(t *testing.T) {
	parent := NewInitialSeed(nil, "Foo", "pkg", 1)
	assert.Equal(t, "initial seed, Foo", parent.Description())
	child := NewChildSeed(parent, nil, "bitflip", 1, 1)
	assert.NotEmpty(t, child.Description())
}

func TestDescriptionPrefersAnomalies(t *testing.T) {
	s := NewInitialSeed(nil, "Foo", "pkg", 1)
	g := anomaly.NewGroup(anomaly.Time)
	g.Slower.Add("a")
	g.Faster.Add("b")
	s.Anomalies = append(s.Anomalies, g)
	require.True(t, s.HasAnomalies())
	assert.NotEqual(t, "initial seed, Foo", s.Description())
}

func TestEvictionWeight(t *testing.T) {
	s := NewInitialSeed(nil, "Foo", "pkg", 4)
	s.Interestingness = 1
	assert.Equal(t, 8.0, s.EvictionWeight())
}
