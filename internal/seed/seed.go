// Package seed defines a candidate input to the fuzzer: its compiled
// artifact, lineage, accumulated evidence, and the bookkeeping the pool
// manager and verifier need.
package seed

import (
	"crypto/sha256"
	"strings"
	"time"

	"permfuzz/internal/anomaly"
)

// MutationRecord describes one mutation step in a seed's lineage.
type MutationRecord struct {
	ParentDescription string
	Strategy          string
	Timestamp         time.Time
}

// Identity is the deduplication key for a seed: the byte-wise content of its
// artifact. Two seeds with equal bytes are the same seed. A fixed-size hash
// plus length is used rather than storing/comparing the full artifact
// repeatedly.
type Identity struct {
	hash   [32]byte
	length int
}

// Identify computes the Identity of an artifact.
func Identify(artifact []byte) Identity {
	return Identity{hash: sha256.Sum256(artifact), length: len(artifact)}
}

// Seed is a candidate plus its lineage and accumulated evidence.
type Seed struct {
	Artifact []byte
	Class    string // class/package label of the artifact
	Package  string

	Lineage []MutationRecord

	Anomalies       []*anomaly.Group
	Energy          int
	Interestingness float64
	Verified        bool

	// Iteration is the fuzzer-loop iteration at which this seed was accepted.
	Iteration int

	// Initial marks a seed present in the starting corpus. Initial seeds are
	// never evicted and are restored on full-pool revival.
	Initial bool
}

// NewInitialSeed builds a seed from the starting corpus.
func NewInitialSeed(artifact []byte, class, pkg string, energy int) *Seed {
	return &Seed{
		Artifact: artifact,
		Class:    class,
		Package:  pkg,
		Energy:   energy,
		Initial:  true,
	}
}

// NewChildSeed builds a seed produced by mutating a parent and finding it
// interesting. Lineage is the parent's lineage plus one new record.
func NewChildSeed(parent *Seed, artifact []byte, strategy string, iteration int, energy int) *Seed {
	lineage := make([]MutationRecord, len(parent.Lineage), len(parent.Lineage)+1)
	copy(lineage, parent.Lineage)
	lineage = append(lineage, MutationRecord{
		ParentDescription: parent.Description(),
		Strategy:          strategy,
		Timestamp:         time.Now(),
	})
	return &Seed{
		Artifact:  artifact,
		Class:     parent.Class,
		Package:   parent.Package,
		Lineage:   lineage,
		Iteration: iteration,
		Energy:    energy,
	}
}

// Identity returns the seed's deduplication key.
func (s *Seed) Identity() Identity { return Identify(s.Artifact) }

// DecrementEnergy reduces the seed's energy by one, clamped at zero.
func (s *Seed) DecrementEnergy() {
	if s.Energy > 0 {
		s.Energy--
	}
}

// HasAnomalies reports whether this seed carries any recorded anomaly group.
func (s *Seed) HasAnomalies() bool { return len(s.Anomalies) > 0 }

// Description derives a human-readable description of the seed from its
// anomaly set, falling back to its lineage when it has none.
func (s *Seed) Description() string {
	if len(s.Anomalies) == 0 {
		if len(s.Lineage) == 0 {
			return "initial seed, " + s.Class
		}
		last := s.Lineage[len(s.Lineage)-1]
		return "mutation of [" + last.ParentDescription + "] via " + last.Strategy
	}
	descriptions := make([]string, 0, len(s.Anomalies))
	for _, g := range s.Anomalies {
		descriptions = append(descriptions, g.Describe())
	}
	return strings.Join(descriptions, "; ")
}

// EvictionWeight is ascending-sort key eviction uses: energy · (1 +
// interestingness). Seeds with low energy and low interestingness sort first.
func (s *Seed) EvictionWeight() float64 {
	return float64(s.Energy) * (1 + s.Interestingness)
}
