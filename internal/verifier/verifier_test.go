package verifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permfuzz/internal/analyzer"
	"permfuzz/internal/anomaly"
	"permfuzz/internal/harness"
	"permfuzz/internal/metrics"
	"permfuzz/internal/profile"
	"permfuzz/internal/seed"
)

type scriptedHarness struct {
	byLabel map[string]metrics.PerformanceMetrics
}

func (h scriptedHarness) Run(ctx context.Context, artifact []byte, rt harness.RuntimeConfig, settings harness.Settings) (metrics.PerformanceMetrics, profile.CompilationProfile, error) {
	return h.byLabel[rt.Label], profile.CompilationProfile{}, nil
}

type recordingRepository struct {
	persisted []*seed.Seed
}

func (r *recordingRepository) Persist(s *seed.Seed) (string, error) {
	r.persisted = append(r.persisted, s)
	return "path", nil
}

func (r *recordingRepository) List() ([]*seed.Seed, error) { return r.persisted, nil }

func runtimes() []harness.RuntimeConfig {
	return []harness.RuntimeConfig{{Label: "jdk-a"}, {Label: "jdk-b"}}
}

func TestPerformBatchConfirmsDivergentSeed(t *testing.T) {
	h := scriptedHarness{byLabel: map[string]metrics.PerformanceMetrics{
		"jdk-a": metrics.NewOK(100, 1, 99, 101, metrics.MemoryUnset, 0, ""),
		"jdk-b": metrics.NewOK(200, 1, 199, 201, metrics.MemoryUnset, 0, ""),
	}}
	repo := &recordingRepository{}
	v := New(analyzer.New(), h, repo, 100, 10, 3, 1)
	s := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	s.Interestingness = 1
	s.Anomalies = []*anomaly.Group{anomaly.NewGroup(anomaly.Time)}
	v.Enqueue(s)

	result, err := v.PerformBatch(context.Background(), runtimes(), harness.Settings{})
	require.NoError(t, err)
	require.Len(t, result.Confirmed, 1)
	assert.True(t, s.Verified, "a confirmed seed must be marked Verified")
	assert.Len(t, repo.persisted, 1, "expected the seed to be persisted")
	assert.Equal(t, 0, v.Pending(), "expected the batch to be drained")
}

func TestPerformBatchDampensNonConfirmedSeed(t *testing.T) {
	h := scriptedHarness{byLabel: map[string]metrics.PerformanceMetrics{
		"jdk-a": metrics.NewOK(100, 1, 99, 101, metrics.MemoryUnset, 0, ""),
		"jdk-b": metrics.NewOK(100.2, 1, 99, 101, metrics.MemoryUnset, 0, ""),
	}}
	repo := &recordingRepository{}
	v := New(analyzer.New(), h, repo, 100, 10, 3, 1)
	s := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	s.Interestingness = 1
	s.Anomalies = []*anomaly.Group{anomaly.NewGroup(anomaly.Time)}
	v.Enqueue(s)

	result, err := v.PerformBatch(context.Background(), runtimes(), harness.Settings{})
	require.NoError(t, err)
	assert.Empty(t, result.Confirmed)
	require.Len(t, result.Dampened, 1)
	assert.Equal(t, 0.5, s.Interestingness, "expected the interestingness to be halved: prior 1 falls under the <10 bracket, divisor 2")
	assert.Nil(t, s.Anomalies, "expected the stale anomaly list to be cleared on dampening")
	assert.Equal(t, 0, v.Pending(), "expected the batch to be drained unconditionally")
}

func TestPerformBatchDampensMemoryAnomalyToFloor(t *testing.T) {
	h := scriptedHarness{byLabel: map[string]metrics.PerformanceMetrics{
		"jdk-a": metrics.NewOK(100, 1, 99, 101, metrics.MemoryUnset, 0, ""),
		"jdk-b": metrics.NewOK(100.2, 1, 99, 101, metrics.MemoryUnset, 0, ""),
	}}
	repo := &recordingRepository{}
	v := New(analyzer.New(), h, repo, 100, 10, 3, 1)
	s := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	s.Interestingness = 500
	s.Anomalies = []*anomaly.Group{anomaly.NewGroup(anomaly.Memory)}
	v.Enqueue(s)

	result, err := v.PerformBatch(context.Background(), runtimes(), harness.Settings{})
	require.NoError(t, err)
	require.Len(t, result.Dampened, 1)
	assert.Equal(t, memoryFloor, s.Interestingness, "expected a MEMORY-tainted seed to drop straight to the floor, not the bracketed divisor")
}

func TestDampingDivisorGrowsByDecade(t *testing.T) {
	assert.Equal(t, 2.0, dampingDivisor(5))
	assert.Equal(t, 10.0, dampingDivisor(50))
	assert.Equal(t, 200.0, dampingDivisor(500))
	assert.Equal(t, 5000.0, dampingDivisor(5000))
	assert.Equal(t, 10000.0, dampingDivisor(50000))
}

func TestPerformBatchOnlyConfirmsTopN(t *testing.T) {
	h := scriptedHarness{byLabel: map[string]metrics.PerformanceMetrics{
		"jdk-a": metrics.NewOK(100, 1, 99, 101, metrics.MemoryUnset, 0, ""),
		"jdk-b": metrics.NewOK(200, 1, 199, 201, metrics.MemoryUnset, 0, ""),
	}}
	repo := &recordingRepository{}
	v := New(analyzer.New(), h, repo, 100, 10, 1, 1)
	high := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	high.Interestingness = 10
	high.Anomalies = []*anomaly.Group{anomaly.NewGroup(anomaly.Time)}
	low := seed.NewInitialSeed([]byte{2}, "Foo", "pkg", 10)
	low.Interestingness = 1
	low.Anomalies = []*anomaly.Group{anomaly.NewGroup(anomaly.Time)}
	v.Enqueue(low)
	v.Enqueue(high)

	result, err := v.PerformBatch(context.Background(), runtimes(), harness.Settings{})
	require.NoError(t, err)
	require.Len(t, result.Confirmed, 1, "expected only the top-N=1 seed to have been attempted")
	assert.Same(t, high, result.Confirmed[0], "expected the higher-interestingness seed to be the one confirmed")
	assert.Equal(t, 0, v.Pending(), "expected the seed beyond TopN to be cleared, not requeued")
}

func TestShouldPerformBatchByMinPending(t *testing.T) {
	v := New(analyzer.New(), scriptedHarness{}, &recordingRepository{}, 1000, 2, 3, 1)
	assert.False(t, v.ShouldPerformBatch(), "expected no batch to be due with an empty queue")
	v.Enqueue(seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 1))
	assert.False(t, v.ShouldPerformBatch(), "expected no batch to be due below MinPending")
	v.Enqueue(seed.NewInitialSeed([]byte{2}, "Foo", "pkg", 1))
	assert.True(t, v.ShouldPerformBatch(), "expected a batch to be due at MinPending")
}

func TestShouldPerformBatchByPeriod(t *testing.T) {
	v := New(analyzer.New(), scriptedHarness{}, &recordingRepository{}, 3, 1000, 3, 1)
	assert.False(t, v.ShouldPerformBatch(), "expected no batch to be due before any ticks")
	v.Tick()
	v.Tick()
	assert.False(t, v.ShouldPerformBatch(), "expected no batch to be due below Period")
	v.Tick()
	assert.True(t, v.ShouldPerformBatch(), "expected a batch to be due once Period ticks have elapsed")
}

func TestPerformBatchResetsPeriodCounter(t *testing.T) {
	h := scriptedHarness{byLabel: map[string]metrics.PerformanceMetrics{
		"jdk-a": metrics.NewOK(100, 1, 99, 101, metrics.MemoryUnset, 0, ""),
		"jdk-b": metrics.NewOK(200, 1, 199, 201, metrics.MemoryUnset, 0, ""),
	}}
	v := New(analyzer.New(), h, &recordingRepository{}, 2, 1000, 3, 1)
	v.Tick()
	v.Tick()
	require.True(t, v.ShouldPerformBatch())
	_, err := v.PerformBatch(context.Background(), runtimes(), harness.Settings{})
	require.NoError(t, err)
	assert.False(t, v.ShouldPerformBatch(), "expected PerformBatch to reset the tick counter")
}

func TestConfirmSeedRunsImmediately(t *testing.T) {
	h := scriptedHarness{byLabel: map[string]metrics.PerformanceMetrics{
		"jdk-a": metrics.NewOK(100, 1, 99, 101, metrics.MemoryUnset, 0, ""),
		"jdk-b": metrics.NewOK(200, 1, 199, 201, metrics.MemoryUnset, 0, ""),
	}}
	repo := &recordingRepository{}
	v := New(analyzer.New(), h, repo, 100, 10, 3, 1)
	s := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	s.Anomalies = []*anomaly.Group{anomaly.NewGroup(anomaly.Time)}

	confirmed, err := v.ConfirmSeed(context.Background(), s, runtimes(), harness.Settings{})
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, 0, v.Pending(), "ConfirmSeed must not touch the pending queue")
}
