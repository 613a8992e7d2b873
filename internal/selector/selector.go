// Package selector implements the adaptive mutation-strategy selector: a
// multi-armed-bandit-style picker that favors strategies with a track record
// of producing interesting seeds, while still exploring the rest.
package selector

import (
	"bytes"
	"math"
	"math/rand"

	"github.com/casbin/govaluate"
	"github.com/pkg/errors"

	"permfuzz/internal/mutate"
)

// Stats tracks one strategy's track record.
type Stats struct {
	Applications   int // times this strategy was asked to mutate an artifact
	Successes      int // times the mutation produced a valid, non-identical artifact
	SeedsGenerated int // times that artifact was accepted as a new seed into the pool
	AnomaliesFound int // times that accepted seed carried at least one anomaly
	Failures       int // times the mutation was rejected or produced no change
}

// base is the weighted score the selector's sigmoid is centered on:
// (0.2·successes + 0.5·seeds_generated + 1.0·anomalies_found − 0.1·failures)/applications.
func (s Stats) base() float64 {
	if s.Applications == 0 {
		return 0
	}
	return (0.2*float64(s.Successes) + 0.5*float64(s.SeedsGenerated) + 1.0*float64(s.AnomaliesFound) - 0.1*float64(s.Failures)) / float64(s.Applications)
}

// Selector picks a mutation strategy for each iteration, adapting its
// preferences based on observed outcomes.
type Selector struct {
	Registry *mutate.Registry
	stats    map[string]*Stats

	// ExplorationFactor is the probability of picking uniformly at random
	// instead of by weighted roulette, keeping cold or underused strategies
	// from starving permanently.
	ExplorationFactor float64

	// DecayInterval is the number of selections between each periodic score
	// decay; 0 disables decay.
	DecayInterval int
	// DecayFactor multiplies every strategy's accumulated stats on decay,
	// so old evidence matters less as the run progresses.
	DecayFactor float64

	selections int

	// lastStrategy is the strategy named by the most recent Select call
	// (ApplyStrategy does not change it); NotifyNewSeedGenerated and NotifySeedRejected feed
	// back against it, mirroring the loop's single-threaded, one-strategy-
	// per-iteration shape.
	lastStrategy string

	// ScoreExpression, if set, overrides the default weight formula
	// 0.1 + 0.9/(1 + e^(-2*base)). Evaluated against the variables "base",
	// "applications", "successes", "seedsGenerated", "anomaliesFound", and
	// "failures".
	ScoreExpression *govaluate.EvaluableExpression

	rng *rand.Rand
}

// New builds a Selector over every strategy in reg.
func New(reg *mutate.Registry, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1)) //nolint:gosec
	}
	s := &Selector{
		Registry:          reg,
		stats:             map[string]*Stats{},
		ExplorationFactor: 0.2,
		DecayInterval:     250,
		DecayFactor:       0.9,
		rng:               rng,
	}
	for _, name := range reg.Names() {
		s.stats[name] = &Stats{}
	}
	return s
}

// WithScoreExpression parses and installs a custom strategy-score formula.
func (s *Selector) WithScoreExpression(expr string) error {
	if expr == "" {
		s.ScoreExpression = nil
		return nil
	}
	e, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return errors.Wrapf(err, "invalid strategy score expression %q", expr)
	}
	s.ScoreExpression = e
	return nil
}

// Stats returns a copy of the current per-strategy statistics, for reporting.
func (s *Selector) Stats() map[string]Stats {
	out := make(map[string]Stats, len(s.stats))
	for name, st := range s.stats {
		out[name] = *st
	}
	return out
}

// score computes a strategy's selection weight from its track record: a
// strategy with no applications yet falls back to the fixed weight 0.1,
// otherwise 0.1 + 0.9/(1 + e^(-2*base)).
func (s *Selector) score(name string) float64 {
	st := s.stats[name]
	if st == nil || st.Applications == 0 {
		return 0.1
	}
	base := st.base()
	if s.ScoreExpression != nil {
		result, err := s.ScoreExpression.Evaluate(map[string]any{
			"base":           base,
			"applications":   float64(st.Applications),
			"successes":      float64(st.Successes),
			"seedsGenerated": float64(st.SeedsGenerated),
			"anomaliesFound": float64(st.AnomaliesFound),
			"failures":       float64(st.Failures),
		})
		if err == nil {
			if f, ok := result.(float64); ok {
				return f
			}
		}
	}
	return weightFromBase(base)
}

func weightFromBase(base float64) float64 {
	return 0.1 + 0.9/(1+math.Exp(-2*base))
}

// Select picks one strategy name. With probability ExplorationFactor it
// picks uniformly at random across all registered strategies; otherwise it
// runs weighted roulette over the current scores. The chosen name becomes
// lastStrategy, the implicit target of the next feedback hook call.
func (s *Selector) Select() (string, bool) {
	names := s.Registry.Names()
	if len(names) == 0 {
		return "", false
	}

	s.selections++
	if s.DecayInterval > 0 && s.selections%s.DecayInterval == 0 {
		s.decay()
	}

	if s.rng.Float64() < s.ExplorationFactor {
		name := names[s.rng.Intn(len(names))]
		s.lastStrategy = name
		return name, true
	}

	weights := make([]float64, len(names))
	var total float64
	for i, n := range names {
		w := s.score(n)
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		name := names[s.rng.Intn(len(names))]
		s.lastStrategy = name
		return name, true
	}
	r := s.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			s.lastStrategy = names[i]
			return names[i], true
		}
	}
	name := names[len(names)-1]
	s.lastStrategy = name
	return name, true
}

// ApplyStrategy is the selector's contract for mutating an artifact: decode
// (an identity transform for this domain's raw-byte artifacts), apply the
// named strategy, encode, and validate the result, falling back to the
// original artifact unchanged on any failure. It always counts one
// application toward name's stats, and one success when the result is valid
// and differs from the original.
func (s *Selector) ApplyStrategy(name string, parentArtifact []byte, rng *rand.Rand) []byte {
	st := s.ensure(name)
	st.Applications++

	strategy, ok := s.Registry.Get(name)
	if !ok {
		return parentArtifact
	}
	mutated, err := strategy.Apply(decodeArtifact(parentArtifact), rng)
	if err != nil {
		return parentArtifact
	}
	encoded := encodeArtifact(mutated)
	if !validateArtifact(encoded) {
		return parentArtifact
	}
	if !bytes.Equal(encoded, parentArtifact) {
		st.Successes++
	}
	return encoded
}

// decodeArtifact and encodeArtifact are identity transforms: artifacts in
// this domain are already raw bytes, with no separate wire format for
// strategies to decode from or encode back into.
func decodeArtifact(artifact []byte) []byte { return artifact }
func encodeArtifact(artifact []byte) []byte { return artifact }

// validateArtifact rejects a mutation's output if it left nothing to measure.
func validateArtifact(artifact []byte) bool { return len(artifact) > 0 }

// NotifyNewSeedGenerated records that lastStrategy's mutation produced a new
// seed accepted into the pool, marking it as having found an anomaly when
// foundAnomaly is true.
func (s *Selector) NotifyNewSeedGenerated(foundAnomaly bool) {
	st := s.ensure(s.lastStrategy)
	st.SeedsGenerated++
	if foundAnomaly {
		st.AnomaliesFound++
	}
}

// NotifySeedRejected records that lastStrategy's mutation was rejected: its
// output was bit-identical to the parent, was not found interesting, or was
// rejected by the pool as a duplicate.
func (s *Selector) NotifySeedRejected() {
	st := s.ensure(s.lastStrategy)
	st.Failures++
}

func (s *Selector) ensure(name string) *Stats {
	st, ok := s.stats[name]
	if !ok {
		st = &Stats{}
		s.stats[name] = st
	}
	return st
}

// decay scales every strategy's accumulated stats by DecayFactor, so stale
// evidence from early in a long run stops dominating the weighting forever.
func (s *Selector) decay() {
	for _, st := range s.stats {
		st.Applications = int(float64(st.Applications) * s.DecayFactor)
		st.Successes = int(float64(st.Successes) * s.DecayFactor)
		st.SeedsGenerated = int(float64(st.SeedsGenerated) * s.DecayFactor)
		st.AnomaliesFound = int(float64(st.AnomaliesFound) * s.DecayFactor)
		st.Failures = int(float64(st.Failures) * s.DecayFactor)
	}
}
