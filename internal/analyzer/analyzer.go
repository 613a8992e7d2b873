// Package analyzer implements the differential performance analyzer: given a
// set of per-runtime metrics for one input, it produces a list of anomaly
// groups classified by kind and scored by interestingness.
package analyzer

import (
	"sort"

	"github.com/casbin/govaluate"
	"github.com/pkg/errors"

	"permfuzz/internal/anomaly"
	"permfuzz/internal/metrics"
	"permfuzz/internal/profile"
)

// SignificanceLevel controls thresholds and confidence-interval scaling. It
// never changes which kinds of anomalies can be produced, only how aggressively
// they are gated.
type SignificanceLevel int

const (
	// SeedEvolution is the cheap, permissive level used while mutating: low
	// thresholds, narrow (half-width) confidence-interval scaling, so
	// borderline divergences still get a seed accepted into the pool for later
	// confirmation.
	SeedEvolution SignificanceLevel = iota
	// Reporting is the strict level that gates persistence: higher
	// thresholds, full-width confidence-interval scaling.
	Reporting
)

// kFactor scales each metric's reported error bar when testing confidence
// interval overlap: narrower (0.5) at SeedEvolution, full width (1.0) at
// Reporting.
func (l SignificanceLevel) kFactor() float64 {
	if l == Reporting {
		return 1.0
	}
	return 0.5
}

// Thresholds holds the minimum deviation percent required to emit a TIME or
// MEMORY group, per significance level.
type Thresholds struct {
	TimeReporting       float64
	MemoryReporting     float64
	TimeSeedEvolution   float64
	MemorySeedEvolution float64
}

// DefaultThresholds returns the default deviation thresholds: a strict 10%
// at Reporting, a permissive 1% at SeedEvolution.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TimeReporting:       10,
		MemoryReporting:     10,
		TimeSeedEvolution:   1,
		MemorySeedEvolution: 1,
	}
}

func (t Thresholds) forMetric(metric string, level SignificanceLevel) float64 {
	switch {
	case metric == "time" && level == Reporting:
		return t.TimeReporting
	case metric == "time" && level == SeedEvolution:
		return t.TimeSeedEvolution
	case metric == "memory" && level == Reporting:
		return t.MemoryReporting
	default:
		return t.MemorySeedEvolution
	}
}

// Weights holds the interestingness weights for the special-case anomalies.
type Weights struct {
	Timeout  float64
	Error    float64
	Compiler float64
}

// DefaultWeights returns the default interestingness weights: 50 for a
// partial timeout, 50 for a partial error by analogy, and 10 for a
// compiler-attributed anomaly synthesized from a profile comparison.
func DefaultWeights() Weights {
	return Weights{Timeout: 50, Error: 50, Compiler: 10}
}

// Analyzer implements the Performance Analyzer component.
type Analyzer struct {
	Thresholds Thresholds
	Weights    Weights

	// GroupScoreExpression, if set, overrides the default pairwise-group
	// interestingness formula (avgDev/10)*(0.5+0.5*sizeBalance). It is
	// evaluated against the variables "avgDev" and "sizeBalance".
	GroupScoreExpression *govaluate.EvaluableExpression
}

// New builds an Analyzer with default thresholds and weights.
func New() *Analyzer {
	return &Analyzer{Thresholds: DefaultThresholds(), Weights: DefaultWeights()}
}

// WithGroupScoreExpression parses and installs a custom group-score formula.
func (a *Analyzer) WithGroupScoreExpression(expr string) error {
	if expr == "" {
		a.GroupScoreExpression = nil
		return nil
	}
	e, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return errors.Wrapf(err, "invalid group score expression %q", expr)
	}
	a.GroupScoreExpression = e
	return nil
}

// RuntimeMetrics pairs a runtime label with its measurement and whatever
// compilation profile the harness could extract for that run.
type RuntimeMetrics struct {
	Label   string
	Metrics metrics.PerformanceMetrics
	Profile profile.CompilationProfile
}

// Analyze is the analyzer's contract: given a collection of ⟨runtime-label,
// metrics⟩ pairs (≥2) and a significance level, return the list of anomaly
// groups. Order of the input runtime list does not affect the result set
// (order-agnostic), but the returned slice has a fixed, stable ordering for a
// fixed input ordering: special-case groups (TIMEOUT, then ERROR buckets in
// ascending exit-code order) first, then TIME, then MEMORY.
func (a *Analyzer) Analyze(rms []RuntimeMetrics, level SignificanceLevel) []*anomaly.Group {
	if len(rms) < 2 {
		return nil
	}

	var groups []*anomaly.Group

	timeoutGroup, timedOutLabels := a.stageTimeout(rms)
	if timeoutGroup != nil {
		groups = append(groups, timeoutGroup)
	}

	errorGroups, erroredLabels := a.stageError(rms, timedOutLabels)
	groups = append(groups, errorGroups...)

	excluded := make(map[string]bool, len(timedOutLabels)+len(erroredLabels))
	for _, l := range timedOutLabels {
		excluded[l] = true
	}
	for _, l := range erroredLabels {
		excluded[l] = true
	}

	var survivors []RuntimeMetrics
	for _, rm := range rms {
		if !excluded[rm.Label] && rm.Metrics.ParseSuccess() {
			survivors = append(survivors, rm)
		}
	}

	if g := a.stageMetric(survivors, "time", level, func(m metrics.PerformanceMetrics) float64 { return m.Score() }); g != nil {
		groups = append(groups, g...)
	}
	if g := a.stageMetric(survivors, "memory", level, func(m metrics.PerformanceMetrics) float64 {
		if !m.HasMemory() {
			return metrics.MemoryUnset
		}
		return m.Memory()
	}); g != nil {
		groups = append(groups, g...)
	}

	return groups
}

// stageTimeout handles the timeout special case: if some but not all
// runtimes timed out, the timed-out side forms a single TIMEOUT group
// against the rest.
func (a *Analyzer) stageTimeout(rms []RuntimeMetrics) (*anomaly.Group, []string) {
	var timedOut, notTimedOut []string
	for _, rm := range rms {
		if rm.Metrics.TimedOut() {
			timedOut = append(timedOut, rm.Label)
		} else {
			notTimedOut = append(notTimedOut, rm.Label)
		}
	}
	if len(timedOut) == 0 || len(notTimedOut) == 0 {
		return nil, timedOut
	}
	g := anomaly.NewGroup(anomaly.Timeout)
	for _, l := range notTimedOut {
		g.Faster.Add(l)
	}
	for _, l := range timedOut {
		g.Slower.Add(l)
		g.SetPairwise(l, "*", 100)
	}
	g.AverageDeviation, g.MaxDeviation, g.MinDeviation = 100, 100, 100
	total := len(rms)
	g.Interestingness = a.Weights.Timeout * (1 - float64(len(timedOut))/float64(total))
	g.Description = g.Describe()
	return g, timedOut
}

// stageError handles the error special case: group the error side by exit
// code, emitting one ERROR group per bucket that still has validated
// (parse-succeeded) survivors to compare against.
func (a *Analyzer) stageError(rms []RuntimeMetrics, timedOut []string) ([]*anomaly.Group, []string) {
	timedOutSet := make(map[string]bool, len(timedOut))
	for _, l := range timedOut {
		timedOutSet[l] = true
	}

	buckets := map[int][]string{}
	var validated []string
	var erroredLabels []string
	total := len(rms)
	for _, rm := range rms {
		if timedOutSet[rm.Label] {
			continue
		}
		if rm.Metrics.ParseSuccess() {
			validated = append(validated, rm.Label)
			continue
		}
		code := rm.Metrics.ExitCode()
		buckets[code] = append(buckets[code], rm.Label)
		erroredLabels = append(erroredLabels, rm.Label)
	}
	if len(validated) == 0 || len(buckets) == 0 {
		return nil, erroredLabels
	}

	codes := make([]int, 0, len(buckets))
	for code := range buckets {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	var groups []*anomaly.Group
	for _, code := range codes {
		bucket := buckets[code]
		g := anomaly.NewGroup(anomaly.Error)
		for _, l := range validated {
			g.Faster.Add(l)
		}
		g.ExitCodes = map[string]int{}
		for _, l := range bucket {
			g.Slower.Add(l)
			g.ExitCodes[l] = code
			g.SetPairwise(l, "*", 100)
		}
		g.AverageDeviation, g.MaxDeviation, g.MinDeviation = 100, 100, 100
		g.Interestingness = a.Weights.Error * (1 - float64(len(bucket))/float64(total))
		g.Description = g.Describe()
		groups = append(groups, g)
	}
	return groups, erroredLabels
}

// point is one survivor's value/error pair for one-dimensional clustering.
type point struct {
	label  string
	value  float64
	errBar float64
}

// stageMetric clusters one metric's validated survivor values into
// one-dimensional, error-aware groups and emits an anomaly group for every
// pair of clusters whose means are significantly separated.
func (a *Analyzer) stageMetric(survivors []RuntimeMetrics, metricName string, level SignificanceLevel, valueOf func(metrics.PerformanceMetrics) float64) []*anomaly.Group {
	var points []point
	for _, rm := range survivors {
		v := valueOf(rm.Metrics)
		if metricName == "memory" && v == metrics.MemoryUnset {
			continue // no memory sample to cluster
		}
		errBar := rm.Metrics.Error()
		if metricName == "memory" {
			errBar = 0 // the harness does not report a confidence interval on memory samples
		}
		points = append(points, point{label: rm.Label, value: v, errBar: errBar})
	}
	if len(points) < 2 {
		return nil
	}
	sort.Slice(points, func(i, j int) bool { return points[i].value < points[j].value })

	k := level.kFactor()
	clusters := [][]point{{points[0]}}
	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		cur := points[i]
		if ciOverlap(prev, cur, k) || adjustedDeviation(prev.value, prev.errBar, cur.value, cur.errBar, k) <= a.Thresholds.forMetric(metricName, level)/2 {
			clusters[len(clusters)-1] = append(clusters[len(clusters)-1], cur)
		} else {
			clusters = append(clusters, []point{cur})
		}
	}
	if len(clusters) < 2 {
		return nil
	}

	threshold := a.Thresholds.forMetric(metricName, level)
	kind := anomaly.Time
	if metricName == "memory" {
		kind = anomaly.Memory
	}

	var groups []*anomaly.Group
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			ci, cj := clusters[i], clusters[j]
			meanI, errI := clusterMean(ci)
			meanJ, errJ := clusterMean(cj)
			meanPoint := point{value: meanI, errBar: errI}
			otherPoint := point{value: meanJ, errBar: errJ}
			if ciOverlap(meanPoint, otherPoint, k) {
				continue // not disjoint at this k: no anomaly between these clusters
			}
			groupDeviation := adjustedDeviation(meanI, errI, meanJ, errJ, k)
			if groupDeviation <= threshold {
				continue
			}
			groups = append(groups, a.emitMetricGroup(kind, ci, cj, k))
		}
	}
	return groups
}

// clusterMean returns the mean value and mean error bar of a cluster.
func clusterMean(c []point) (meanValue, meanErr float64) {
	for _, p := range c {
		meanValue += p.value
		meanErr += p.errBar
	}
	n := float64(len(c))
	return meanValue / n, meanErr / n
}

// emitMetricGroup builds the anomaly.Group for two qualifying clusters: the
// cluster with the lower mean is faster (lower time/memory is well-behaved).
func (a *Analyzer) emitMetricGroup(kind anomaly.Kind, a1, a2 []point, k float64) *anomaly.Group {
	meanA, _ := clusterMean(a1)
	meanB, _ := clusterMean(a2)
	faster, slower := a1, a2
	if meanB < meanA {
		faster, slower = a2, a1
	}

	g := anomaly.NewGroup(kind)
	for _, p := range faster {
		g.Faster.Add(p.label)
	}
	for _, p := range slower {
		g.Slower.Add(p.label)
	}
	for _, sp := range slower {
		for _, fp := range faster {
			g.SetPairwise(sp.label, fp.label, adjustedDeviation(fp.value, fp.errBar, sp.value, sp.errBar, k))
		}
	}
	g.Finalize()

	sizeBalance := float64(min(len(faster), len(slower))) / float64(max(len(faster), len(slower)))
	g.Interestingness = a.groupScore(g.AverageDeviation, sizeBalance)
	g.Description = g.Describe()
	return g
}

// groupScore computes the pairwise-group interestingness: the default
// (avgDev/10)*(0.5+0.5*sizeBalance), or a custom govaluate expression if one
// has been installed.
func (a *Analyzer) groupScore(avgDev, sizeBalance float64) float64 {
	if a.GroupScoreExpression != nil {
		result, err := a.GroupScoreExpression.Evaluate(map[string]any{
			"avgDev":      avgDev,
			"sizeBalance": sizeBalance,
		})
		if err == nil {
			if f, ok := result.(float64); ok {
				return f
			}
		}
	}
	return (avgDev / 10) * (0.5 + 0.5*sizeBalance)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ciOverlap tests whether two points' confidence intervals (scaled by k)
// overlap.
func ciOverlap(a, b point, k float64) bool {
	aLo, aHi := a.value-k*a.errBar, a.value+k*a.errBar
	bLo, bHi := b.value-k*b.errBar, b.value+k*b.errBar
	return aLo <= bHi && bLo <= aHi
}

// adjustedDeviation computes the error-adjusted pairwise deviation between
// two values with errors: d = |v1-v2|, E = k(σ1+σ2); 0 if d <= E, else
// (d-E)/min(v1,v2)*100, guarded to 0 if min(v1,v2) < 1e-6.
func adjustedDeviation(v1, err1, v2, err2, k float64) float64 {
	d := v1 - v2
	if d < 0 {
		d = -d
	}
	e := k * (err1 + err2)
	if d <= e {
		return 0
	}
	m := v1
	if v2 < m {
		m = v2
	}
	if m < 1e-6 {
		return 0
	}
	return (d - e) / m * 100
}

// AreInteresting reports whether the list of groups should be treated as
// interesting: false iff the list is empty, or no group has positive
// interestingness. A single zero-scored TIMEOUT group never suppresses a
// co-present, positively scored TIME group.
func AreInteresting(groups []*anomaly.Group) bool {
	for _, g := range groups {
		if g.Interestingness > 0 {
			return true
		}
	}
	return false
}

// OverallScore is 0 when the groups are not interesting; otherwise the mean
// of per-group interestingness scores.
func OverallScore(groups []*anomaly.Group) float64 {
	if !AreInteresting(groups) {
		return 0
	}
	var sum float64
	for _, g := range groups {
		sum += g.Interestingness
	}
	return sum / float64(len(groups))
}
