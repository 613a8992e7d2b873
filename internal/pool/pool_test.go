package pool

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permfuzz/internal/seed"
)

func newManager(maxSize int) *Manager {
	return New(maxSize, 2, 5, rand.New(rand.NewSource(42)))
}

func TestAddRejectsDuplicateArtifact(t *testing.T) {
	m := newManager(0)
	s1 := seed.NewInitialSeed([]byte{1, 2, 3}, "Foo", "pkg", 10)
	s2 := seed.NewInitialSeed([]byte{1, 2, 3}, "Foo", "pkg", 10)
	require.True(t, m.Add(s1), "expected first insert to succeed")
	assert.False(t, m.Add(s2), "expected duplicate artifact to be rejected")
	assert.Equal(t, 1, m.Len())
}

func TestAddInitialMarksInitial(t *testing.T) {
	m := newManager(0)
	s := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	s.Initial = false
	m.AddInitial(s)
	assert.True(t, s.Initial, "AddInitial must mark the seed Initial")
}

func TestEvictionRespectsMaxSizeAndNeverEvictsInitial(t *testing.T) {
	m := newManager(2)
	initial := seed.NewInitialSeed([]byte{0}, "Foo", "pkg", 1)
	m.AddInitial(initial)

	for i := 1; i <= 5; i++ {
		s := seed.NewInitialSeed([]byte{byte(i)}, "Foo", "pkg", 1)
		s.Initial = false
		s.Interestingness = 0
		m.Add(s)
	}
	require.Equal(t, 2, m.Len(), "MaxSize must be respected")

	found := false
	for _, s := range m.Live() {
		if s == initial {
			found = true
		}
	}
	assert.True(t, found, "the initial seed must never be evicted")
}

func TestEvictionPrefersUnverifiedLowWeightFirst(t *testing.T) {
	m := newManager(2)
	initial := seed.NewInitialSeed([]byte{0}, "Foo", "pkg", 1)
	m.AddInitial(initial)

	verifiedHighWeight := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 100)
	verifiedHighWeight.Initial = false
	verifiedHighWeight.Verified = true
	m.Add(verifiedHighWeight)

	unverifiedLowWeight := seed.NewInitialSeed([]byte{2}, "Foo", "pkg", 1)
	unverifiedLowWeight.Initial = false
	unverifiedLowWeight.Verified = false
	m.Add(unverifiedLowWeight)

	for _, s := range m.Live() {
		assert.NotSame(t, unverifiedLowWeight, s, "the unverified low-weight seed should have been evicted before the verified one")
	}
}

func TestSelectForMutationOnEmptyPoolWithNoInitial(t *testing.T) {
	m := newManager(0)
	_, ok := m.SelectForMutation()
	assert.False(t, ok, "expected selection to fail on a completely empty pool")
}

func TestSelectForMutationReturnsASeed(t *testing.T) {
	m := newManager(0)
	s := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	m.AddInitial(s)
	got, ok := m.SelectForMutation()
	require.True(t, ok)
	assert.NotNil(t, got)
}

func TestSelectForMutationRevivesWhenEnergyExhausted(t *testing.T) {
	m := newManager(0)
	s := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 0)
	m.AddInitial(s)
	got, ok := m.SelectForMutation()
	require.True(t, ok)
	require.NotNil(t, got)
	assert.Greater(t, s.Energy, 0, "expected the initial seed's energy to be refreshed by revival")
}

func TestDecrementClampsAtZero(t *testing.T) {
	m := newManager(0)
	s := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 0)
	m.Decrement(s)
	assert.Equal(t, 0, s.Energy)
}
