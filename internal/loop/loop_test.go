package loop

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permfuzz/internal/analyzer"
	"permfuzz/internal/harness"
	"permfuzz/internal/metrics"
	"permfuzz/internal/mutate"
	"permfuzz/internal/pool"
	"permfuzz/internal/profile"
	"permfuzz/internal/repository"
	"permfuzz/internal/seed"
	"permfuzz/internal/selector"
	"permfuzz/internal/verifier"
)

// divergentHarness always reports jdk-a at a fixed score and jdk-b at a
// sharply higher one, guaranteeing every measured artifact is interesting.
type divergentHarness struct{}

func (divergentHarness) Run(ctx context.Context, artifact []byte, rt harness.RuntimeConfig, settings harness.Settings) (metrics.PerformanceMetrics, profile.CompilationProfile, error) {
	if rt.Label == "jdk-a" {
		return metrics.NewOK(100, 1, 99, 101, metrics.MemoryUnset, 0, ""), profile.CompilationProfile{}, nil
	}
	return metrics.NewOK(300, 1, 299, 301, metrics.MemoryUnset, 0, ""), profile.CompilationProfile{}, nil
}

// flatHarness reports identical measurements everywhere, so nothing is ever
// found interesting.
type flatHarness struct{}

func (flatHarness) Run(ctx context.Context, artifact []byte, rt harness.RuntimeConfig, settings harness.Settings) (metrics.PerformanceMetrics, profile.CompilationProfile, error) {
	return metrics.NewOK(100, 1, 99, 101, metrics.MemoryUnset, 0, ""), profile.CompilationProfile{}, nil
}

func newLoop(t *testing.T, h harness.Harness, maxIterations int) *Loop {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	mgr := pool.New(50, 2, 5, rng)
	mgr.AddInitial(seed.NewInitialSeed([]byte{1, 2, 3, 4}, "Foo", "pkg", 10))
	reg := mutate.NewDefaultRegistry()
	sel := selector.New(reg, rng)
	an := analyzer.New()
	v := verifier.New(an, h, mustRepo(t), 1000, 1000, 3, 1)

	return &Loop{
		Pool:                mgr,
		Selector:            sel,
		Mutators:            reg,
		Analyzer:            an,
		Harness:             h,
		Verifier:            v,
		Runtimes:            []harness.RuntimeConfig{{Label: "jdk-a"}, {Label: "jdk-b"}},
		MaxIterations:       maxIterations,
		StagnationThreshold: 0,
		RNG:                 rng,
	}
}

func TestRunRespectsMaxIterations(t *testing.T) {
	l := newLoop(t, flatHarness{}, 5)
	stats, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Iterations)
}

func TestRunConfirmsDivergentArtifacts(t *testing.T) {
	l := newLoop(t, divergentHarness{}, 5)
	stats, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, stats.Confirmed, 0, "expected at least one confirmed anomaly from a consistently divergent harness")
}

func TestRunStopsOnStagnation(t *testing.T) {
	l := newLoop(t, flatHarness{}, 0)
	l.StagnationThreshold = 3
	stats, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, stats.Iterations, 0, "expected at least one iteration before stagnation halts the loop")
}

func TestRunFlushesPendingVerificationsOnExit(t *testing.T) {
	l := newLoop(t, divergentHarness{}, 2)
	l.Verifier = verifier.New(l.Analyzer, divergentHarness{}, mustRepo(t), 1000, 1000, 3, 1)
	_, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, l.Verifier.Pending(), "expected the final flush to drain the pending verification queue")
}

func mustRepo(t *testing.T) *repository.FileRepository {
	t.Helper()
	repo, err := repository.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	return repo
}
