// Package pool implements the seed pool manager: add/dedup/select/decay,
// eviction under capacity pressure, and revival when the population runs out
// of selectable energy.
package pool

import (
	"math/rand"
	"sort"

	"permfuzz/internal/seed"
)

// Manager owns the set of live seeds and the frozen initial corpus.
type Manager struct {
	live    []*seed.Seed // preserve insertion order for deterministic iteration
	present map[seed.Identity]bool
	initial []*seed.Seed

	MaxSize            int
	MinEnergyThreshold int
	EnergyBoost        int

	rng *rand.Rand
}

// New builds an empty Manager. rng may be nil, in which case a source with
// the fixed seed 1 is used, so selection is deterministic across runs.
func New(maxSize, minEnergyThreshold, energyBoost int, rng *rand.Rand) *Manager {
	if rng == nil {
		rng = rand.New(rand.NewSource(1)) //nolint:gosec
	}
	return &Manager{
		present:            map[seed.Identity]bool{},
		MaxSize:            maxSize,
		MinEnergyThreshold: minEnergyThreshold,
		EnergyBoost:        energyBoost,
		rng:                rng,
	}
}

// Seed initial energy default used when refreshing the frozen corpus.
const defaultInitialEnergy = 10

// AddInitial seeds the starting corpus. Call before any Add calls for
// mutated seeds.
func (m *Manager) AddInitial(s *seed.Seed) bool {
	s.Initial = true
	if !m.Add(s) {
		return false
	}
	m.initial = append(m.initial, s)
	return true
}

// Add inserts s unless an artifact-equal seed already exists (seed identity
// is keyed on artifact bytes only). Returns true if accepted. Evicts down to
// MaxSize if the insert pushed the pool over capacity.
func (m *Manager) Add(s *seed.Seed) bool {
	id := s.Identity()
	if m.present[id] {
		return false
	}
	m.present[id] = true
	m.live = append(m.live, s)
	if m.MaxSize > 0 && len(m.live) > m.MaxSize {
		m.evict()
	}
	return true
}

// Len returns the number of live seeds.
func (m *Manager) Len() int { return len(m.live) }

// Live returns the live seed slice (do not mutate the returned slice's
// backing array; use the Manager's methods instead).
func (m *Manager) Live() []*seed.Seed { return m.live }

func (m *Manager) removeAt(idx int) {
	s := m.live[idx]
	delete(m.present, s.Identity())
	m.live = append(m.live[:idx], m.live[idx+1:]...)
}

// evict implements the two-pass eviction policy: first unverified non-initial
// seeds ascending by EvictionWeight, then verified non-initial seeds the same
// way. Initial seeds are never evicted.
func (m *Manager) evict() {
	for len(m.live) > m.MaxSize {
		if !m.evictOnePass(false) {
			break
		}
	}
	for len(m.live) > m.MaxSize {
		if !m.evictOnePass(true) {
			break
		}
	}
}

// evictOnePass removes the lowest-EvictionWeight non-initial seed whose
// Verified flag matches wantVerified. Returns false if no candidate exists.
func (m *Manager) evictOnePass(wantVerified bool) bool {
	best := -1
	for i, s := range m.live {
		if s.Initial || s.Verified != wantVerified {
			continue
		}
		if best == -1 || s.EvictionWeight() < m.live[best].EvictionWeight() {
			best = i
		}
	}
	if best == -1 {
		return false
	}
	m.removeAt(best)
	return true
}

func (m *Manager) anyPositiveEnergy() bool {
	for _, s := range m.live {
		if s.Energy > 0 {
			return true
		}
	}
	return false
}

func (m *Manager) totalEnergy() int {
	var total int
	for _, s := range m.live {
		total += s.Energy
	}
	return total
}

func (m *Manager) positiveEnergySeeds() []*seed.Seed {
	var out []*seed.Seed
	for _, s := range m.live {
		if s.Energy > 0 {
			out = append(out, s)
		}
	}
	return out
}

// dropDeadSeeds removes live, non-initial, unverified seeds with Energy <= 0.
func (m *Manager) dropDeadSeeds() {
	var keep []*seed.Seed
	present := map[seed.Identity]bool{}
	for _, s := range m.live {
		if s.Energy <= 0 && !s.Verified && !s.Initial {
			continue
		}
		keep = append(keep, s)
		present[s.Identity()] = true
	}
	m.live = keep
	m.present = present
}

// restoreInitial repopulates the live pool from the frozen initial corpus
// with refreshed energy, used when the pool has gone fully empty.
func (m *Manager) restoreInitial() {
	m.live = nil
	m.present = map[seed.Identity]bool{}
	for _, s := range m.initial {
		s.Energy = defaultInitialEnergy
		m.live = append(m.live, s)
		m.present[s.Identity()] = true
	}
}

// boostAll adds EnergyBoost to every live seed's energy.
func (m *Manager) boostAll() {
	for _, s := range m.live {
		s.Energy += m.EnergyBoost
	}
}

// revive runs the revival pass: target a minimum number of active
// (positive-energy) seeds equal to |initial|, boosting (a)
// verified low-energy seeds, (b) highest-interestingness unverified
// low-energy seeds, (c) enough lowest-energy others to reach the target.
// Additionally refreshes each initial seed that fell below the energy
// threshold.
func (m *Manager) revive() {
	for _, s := range m.initial {
		if s.Energy < m.MinEnergyThreshold {
			s.Energy = defaultInitialEnergy
		}
	}

	target := len(m.initial)
	if target == 0 {
		target = 1
	}
	active := len(m.positiveEnergySeeds())
	if active >= target {
		return
	}

	lowEnergy := func(s *seed.Seed) bool { return s.Energy < m.MinEnergyThreshold }

	var verifiedLow, unverifiedLow, others []*seed.Seed
	for _, s := range m.live {
		switch {
		case !lowEnergy(s):
			continue
		case s.Verified:
			verifiedLow = append(verifiedLow, s)
		default:
			unverifiedLow = append(unverifiedLow, s)
		}
	}
	sort.Slice(unverifiedLow, func(i, j int) bool {
		return unverifiedLow[i].Interestingness > unverifiedLow[j].Interestingness
	})
	others = append(others, verifiedLow...)
	others = append(others, unverifiedLow...)

	for _, s := range others {
		if len(m.positiveEnergySeeds()) >= target {
			break
		}
		s.Energy += m.EnergyBoost
	}

	if len(m.positiveEnergySeeds()) >= target {
		return
	}
	remaining := append([]*seed.Seed{}, m.live...)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].Energy < remaining[j].Energy })
	for _, s := range remaining {
		if len(m.positiveEnergySeeds()) >= target {
			break
		}
		if s.Energy <= 0 {
			s.Energy += m.EnergyBoost
		}
	}
}

// SelectForMutation implements the weighted-roulette selection policy.
// Returns (nil, false) if the pool is empty and revival could not make any
// seed selectable (e.g. an empty initial corpus).
func (m *Manager) SelectForMutation() (*seed.Seed, bool) {
	if !m.anyPositiveEnergy() {
		m.revive()
	}
	m.dropDeadSeeds()
	if len(m.live) == 0 {
		m.restoreInitial()
	}
	if len(m.live) == 0 {
		return nil, false
	}
	if m.totalEnergy() < len(m.live) {
		m.boostAll()
	}

	positive := m.positiveEnergySeeds()
	if len(positive) == 0 {
		return nil, false
	}

	if m.rng.Float64() < 0.1 {
		return positive[m.rng.Intn(len(positive))], true
	}
	return m.weightedPick(positive), true
}

// weightedPick runs energy-weighted roulette selection; verified seeds count
// double toward their weight.
func (m *Manager) weightedPick(candidates []*seed.Seed) *seed.Seed {
	var total float64
	weights := make([]float64, len(candidates))
	for i, s := range candidates {
		w := float64(s.Energy)
		if s.Verified {
			w *= 2
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return candidates[m.rng.Intn(len(candidates))]
	}
	r := m.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

// Decrement reduces s's energy by one, clamped at zero.
func (m *Manager) Decrement(s *seed.Seed) { s.DecrementEnergy() }
