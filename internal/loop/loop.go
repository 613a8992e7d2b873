// Package loop ties the seed pool, mutation selector, analyzer, harness and
// verifier together into the fuzzer's main search loop.
package loop

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand"
	"sort"

	"permfuzz/internal/analyzer"
	"permfuzz/internal/anomaly"
	"permfuzz/internal/harness"
	"permfuzz/internal/mutate"
	"permfuzz/internal/pool"
	"permfuzz/internal/profile"
	"permfuzz/internal/seed"
	"permfuzz/internal/selector"
	"permfuzz/internal/telemetry"
	"permfuzz/internal/verifier"
)

// childInitialEnergy is the energy a newly-accepted mutated seed starts with.
const childInitialEnergy = 10

// Loop owns one end-to-end fuzzing run.
type Loop struct {
	Pool     *pool.Manager
	Selector *selector.Selector
	Mutators *mutate.Registry
	Analyzer *analyzer.Analyzer
	Harness  harness.Harness
	Verifier *verifier.Verifier

	Runtimes        []harness.RuntimeConfig
	HarnessSettings harness.Settings

	MaxIterations       int // 0 = unbounded
	StagnationThreshold int // 0 = disabled

	Telemetry *telemetry.Telemetry

	RNG *rand.Rand
}

// Stats summarizes one Run call, returned so the caller (cmd/fuzz) can print
// a final report.
type Stats struct {
	Iterations int
	Confirmed  int
	Dropped    int
}

// Run executes the search loop until MaxIterations is reached, the pool runs
// dry, or StagnationThreshold consecutive non-productive iterations elapse.
// It performs a final verification batch flush before returning.
func (l *Loop) Run(ctx context.Context) (Stats, error) {
	rng := l.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(1)) //nolint:gosec
	}

	var stats Stats
	stagnation := 0

	for {
		if ctx.Err() != nil {
			break
		}
		if l.MaxIterations > 0 && stats.Iterations >= l.MaxIterations {
			break
		}
		if l.StagnationThreshold > 0 && stagnation >= l.StagnationThreshold {
			slog.Info("stopping: stagnation threshold reached", slog.Int("iterations", stats.Iterations))
			break
		}

		l.Verifier.Tick()
		if l.Verifier.ShouldPerformBatch() {
			result, err := l.Verifier.PerformBatch(ctx, l.Runtimes, l.HarnessSettings)
			if err != nil {
				return stats, err
			}
			l.recordBatch(&stats, result)
		}

		parent, ok := l.Pool.SelectForMutation()
		if !ok {
			slog.Info("stopping: pool exhausted")
			break
		}

		strategyName, ok := l.Selector.Select()
		if !ok {
			slog.Info("stopping: no mutation strategies registered")
			break
		}

		stats.Iterations++
		artifact := l.Selector.ApplyStrategy(strategyName, parent.Artifact, rng)
		if bytes.Equal(artifact, parent.Artifact) {
			l.Selector.NotifySeedRejected()
			l.Pool.Decrement(parent)
			stagnation++
			l.recordTelemetry()
			continue
		}

		rms, err := l.measure(ctx, artifact)
		if err != nil {
			return stats, err
		}
		groups := l.Analyzer.Analyze(rms, analyzer.SeedEvolution)
		l.enrichWithCompilerSignal(rms, &groups)
		l.Pool.Decrement(parent)

		if !analyzer.AreInteresting(groups) {
			l.Selector.NotifySeedRejected()
			stagnation++
			l.recordTelemetry()
			continue
		}

		score := analyzer.OverallScore(groups)

		child := seed.NewChildSeed(parent, artifact, strategyName, stats.Iterations, childInitialEnergy)
		child.Anomalies = groups
		child.Interestingness = score

		if l.Pool.Add(child) {
			l.Selector.NotifyNewSeedGenerated(child.HasAnomalies())
			l.Verifier.Enqueue(child)
			stagnation = 0

			reportingGroups := l.Analyzer.Analyze(rms, analyzer.Reporting)
			l.enrichWithCompilerSignal(rms, &reportingGroups)
			if analyzer.AreInteresting(reportingGroups) {
				confirmed, err := l.Verifier.ConfirmSeed(ctx, child, l.Runtimes, l.HarnessSettings)
				if err != nil {
					return stats, err
				}
				if confirmed {
					stats.Confirmed++
					l.recordAnomalies(child)
				} else {
					stats.Dropped++
				}
			}
		} else {
			l.Selector.NotifySeedRejected()
			stagnation++
		}

		l.recordTelemetry()
	}

	if l.Verifier.Pending() > 0 {
		result, err := l.Verifier.PerformBatch(ctx, l.Runtimes, l.HarnessSettings)
		if err != nil {
			return stats, err
		}
		l.recordBatch(&stats, result)
	}

	return stats, nil
}

// measure runs artifact against every configured runtime, building both the
// metrics and the compilation profile each runtime's output yielded.
func (l *Loop) measure(ctx context.Context, artifact []byte) ([]analyzer.RuntimeMetrics, error) {
	var rms []analyzer.RuntimeMetrics
	for _, rt := range l.Runtimes {
		m, prof, err := l.Harness.Run(ctx, artifact, rt, l.HarnessSettings)
		if err != nil {
			return nil, err
		}
		rms = append(rms, analyzer.RuntimeMetrics{Label: rt.Label, Metrics: m, Profile: prof})
	}
	return rms, nil
}

// enrichWithCompilerSignal compares every runtime's compilation profile
// against the others, in fastest-first order, and uses the comparisons both
// to attach compiler context to existing TIME/MEMORY groups and to
// synthesize a standalone COMPILER group when the divergence looks
// compiler-related enough to report on its own.
func (l *Loop) enrichWithCompilerSignal(rms []analyzer.RuntimeMetrics, groups *[]*anomaly.Group) {
	profiles := make(map[string]profile.CompilationProfile, len(rms))
	ordered := make([]analyzer.RuntimeMetrics, len(rms))
	copy(ordered, rms)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Metrics.Score() < ordered[j].Metrics.Score() })

	orderedLabels := make([]string, 0, len(ordered))
	for _, rm := range ordered {
		profiles[rm.Label] = rm.Profile
		orderedLabels = append(orderedLabels, rm.Label)
	}

	comparisons := profile.CompareAll(profiles, orderedLabels)
	if len(comparisons) == 0 {
		return
	}

	for _, g := range *groups {
		profile.Enrich(g, comparisons)
	}
	if synthesized := profile.Synthesize(comparisons, l.Analyzer.Weights.Compiler); synthesized != nil {
		*groups = append(*groups, synthesized)
	}
}

func (l *Loop) recordBatch(stats *Stats, result verifier.BatchResult) {
	stats.Confirmed += len(result.Confirmed)
	stats.Dropped += len(result.Dampened)
	for _, s := range result.Confirmed {
		l.recordAnomalies(s)
	}
}

func (l *Loop) recordAnomalies(s *seed.Seed) {
	if l.Telemetry == nil {
		return
	}
	for _, g := range s.Anomalies {
		l.Telemetry.AnomaliesTotal.WithLabelValues(g.Kind.String()).Inc()
	}
}

func (l *Loop) recordTelemetry() {
	if l.Telemetry == nil {
		return
	}
	l.Telemetry.Iterations.Inc()
	l.Telemetry.SeedsLive.Set(float64(l.Pool.Len()))
	var energy int
	for _, s := range l.Pool.Live() {
		energy += s.Energy
	}
	l.Telemetry.PoolEnergy.Set(float64(energy))
}
