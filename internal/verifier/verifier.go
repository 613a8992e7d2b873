// Package verifier implements the two-tier confirmation step: seeds the
// fuzzer loop found interesting under cheap, permissive screening are
// re-measured under strict settings before they are persisted, with
// repeated non-confirmation dampening a seed's interestingness until it
// drops out of contention.
package verifier

import (
	"context"
	"sort"

	"permfuzz/internal/analyzer"
	"permfuzz/internal/anomaly"
	"permfuzz/internal/harness"
	"permfuzz/internal/metrics"
	"permfuzz/internal/repository"
	"permfuzz/internal/seed"
)

// memoryFloor is the near-zero interestingness a seed is forced to when its
// original anomaly set contained MEMORY and reconfirmation fails: memory
// signals are the dominant source of false positives on this class of
// measurement, so they are dampened far harder than everything else.
const memoryFloor = 0.01

// Verifier holds the pending queue of seeds awaiting confirmation and the
// collaborators needed to re-measure and persist them.
type Verifier struct {
	Analyzer   *analyzer.Analyzer
	Harness    harness.Harness
	Repository repository.Repository

	// Period is the number of loop iterations between periodic confirmation
	// batches, regardless of queue size.
	Period int
	// MinPending is the queue size at which a batch runs early, regardless
	// of Period.
	MinPending int
	// TopN is the number of highest-interestingness pending seeds a batch
	// actually confirms; the rest are cleared unconfirmed.
	TopN int
	// ConfirmRuns is the number of re-measurements taken per runtime during
	// confirmation.
	ConfirmRuns int

	pending        []*seed.Seed
	sinceLastBatch int
}

// New builds a Verifier with the given collaborators and batch settings.
func New(a *analyzer.Analyzer, h harness.Harness, repo repository.Repository, period, minPending, topN, confirmRuns int) *Verifier {
	return &Verifier{
		Analyzer:    a,
		Harness:     h,
		Repository:  repo,
		Period:      period,
		MinPending:  minPending,
		TopN:        topN,
		ConfirmRuns: confirmRuns,
	}
}

// Enqueue adds a seed found interesting under screening to the pending
// confirmation queue.
func (v *Verifier) Enqueue(s *seed.Seed) {
	v.pending = append(v.pending, s)
}

// Pending returns the number of seeds awaiting confirmation.
func (v *Verifier) Pending() int { return len(v.pending) }

// Tick records the passage of one loop iteration without a batch running.
func (v *Verifier) Tick() {
	v.sinceLastBatch++
}

// ShouldPerformBatch reports whether a confirmation batch is due: either the
// periodic interval has elapsed, or the pending queue has reached
// MinPending.
func (v *Verifier) ShouldPerformBatch() bool {
	return v.sinceLastBatch >= v.Period || len(v.pending) >= v.MinPending
}

// BatchResult is the outcome of one confirmation pass.
type BatchResult struct {
	Confirmed []*seed.Seed // reached REPORTING significance and were persisted
	Dampened  []*seed.Seed // attempted but did not reconfirm; interestingness reduced
}

// PerformBatch sorts the pending queue by interestingness descending, takes
// the top TopN, and confirms each one that still carries an anomaly. The
// entire pending queue — including anything beyond TopN, never attempted —
// is then cleared and the tick counter reset, per the batch's unconditional
// "process the best candidates, then drop the rest" contract.
func (v *Verifier) PerformBatch(ctx context.Context, runtimes []harness.RuntimeConfig, settings harness.Settings) (BatchResult, error) {
	batch := make([]*seed.Seed, len(v.pending))
	copy(batch, v.pending)
	v.pending = nil
	v.sinceLastBatch = 0

	sort.Slice(batch, func(i, j int) bool { return batch[i].Interestingness > batch[j].Interestingness })

	topN := v.TopN
	if topN > len(batch) {
		topN = len(batch)
	}

	var result BatchResult
	for _, s := range batch[:topN] {
		if !s.HasAnomalies() {
			continue
		}
		confirmed, err := v.confirmOne(ctx, s, runtimes, settings)
		if err != nil {
			return result, err
		}
		if confirmed {
			result.Confirmed = append(result.Confirmed, s)
		} else {
			result.Dampened = append(result.Dampened, s)
		}
	}
	return result, nil
}

// ConfirmSeed runs an immediate, single-seed REPORTING-purpose confirmation
// outside the normal batch cadence, for a seed whose screening-level
// anomalies already look like they would qualify at REPORTING significance.
func (v *Verifier) ConfirmSeed(ctx context.Context, s *seed.Seed, runtimes []harness.RuntimeConfig, settings harness.Settings) (bool, error) {
	return v.confirmOne(ctx, s, runtimes, settings)
}

// confirmOne re-measures s at Reporting significance. If the result still
// qualifies, it replaces the seed's anomalies/interestingness, flips
// Verified, and persists it. Otherwise it dampens: a MEMORY-tainted seed
// drops straight to memoryFloor; any other seed's interestingness is divided
// by a bracketed factor that grows with magnitude. Either way, the stale
// anomaly list is cleared — it no longer reflects the seed's confirmed state.
func (v *Verifier) confirmOne(ctx context.Context, s *seed.Seed, runtimes []harness.RuntimeConfig, settings harness.Settings) (bool, error) {
	groups, err := v.measureAndAnalyze(ctx, s, runtimes, settings, analyzer.Reporting)
	if err != nil {
		return false, err
	}

	if analyzer.AreInteresting(groups) {
		s.Anomalies = groups
		s.Interestingness = analyzer.OverallScore(groups)
		s.Verified = true
		if _, err := v.Repository.Persist(s); err != nil {
			return false, err
		}
		return true, nil
	}

	hadMemory := hasMemoryAnomaly(s.Anomalies)
	s.Interestingness = dampen(s.Interestingness, hadMemory)
	s.Anomalies = nil
	return false, nil
}

// measureAndAnalyze re-measures s against every runtime ConfirmRuns times and
// analyzes the last measurement at level. Averaging multiple confirmation
// runs into a single score is left to the harness's own reported error
// bars; this only re-measures under the target significance, not re-derive
// statistics the harness already produced.
func (v *Verifier) measureAndAnalyze(ctx context.Context, s *seed.Seed, runtimes []harness.RuntimeConfig, settings harness.Settings, level analyzer.SignificanceLevel) ([]*anomaly.Group, error) {
	var rms []analyzer.RuntimeMetrics
	for _, rt := range runtimes {
		var last metrics.PerformanceMetrics
		var err error
		for i := 0; i < v.ConfirmRuns; i++ {
			last, _, err = v.Harness.Run(ctx, s.Artifact, rt, settings)
			if err != nil {
				return nil, err
			}
		}
		rms = append(rms, analyzer.RuntimeMetrics{Label: rt.Label, Metrics: last})
	}
	return v.Analyzer.Analyze(rms, level), nil
}

func hasMemoryAnomaly(groups []*anomaly.Group) bool {
	for _, g := range groups {
		if g.Kind == anomaly.Memory {
			return true
		}
	}
	return false
}

// dampen halves-and-more a non-confirmed seed's interestingness. A MEMORY
// anomaly forces the near-zero floor outright; otherwise the divisor grows
// by decade as prior crosses 10, 100, 1000, and 10000, so a seed that looked
// extremely interesting needs a correspondingly larger single reconfirmation
// failure to fall out of contention.
func dampen(prior float64, hadMemory bool) float64 {
	if hadMemory {
		return memoryFloor
	}
	return prior / dampingDivisor(prior)
}

func dampingDivisor(interestingness float64) float64 {
	switch {
	case interestingness < 10:
		return 2
	case interestingness < 100:
		return 10
	case interestingness < 1000:
		return 200
	case interestingness < 10000:
		return 5000
	default:
		return 10000
	}
}
