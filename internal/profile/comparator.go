package profile

import "permfuzz/internal/anomaly"

// CompareAll produces one ComparisonResult for every unordered pair of
// profiles, given the average-time ordering (fastest to slowest runtime
// label) the metric phase already established. The comparator never re-derives
// ordering from the profiles themselves.
func CompareAll(profiles map[string]CompilationProfile, orderedLabels []string) []ComparisonResult {
	var results []ComparisonResult
	for i := 0; i < len(orderedLabels); i++ {
		for j := i + 1; j < len(orderedLabels); j++ {
			fasterLabel, slowerLabel := orderedLabels[i], orderedLabels[j]
			fp, ok1 := profiles[fasterLabel]
			sp, ok2 := profiles[slowerLabel]
			if !ok1 || !ok2 {
				continue
			}
			results = append(results, Compare(fasterLabel, fp, slowerLabel, sp))
		}
	}
	return results
}

// CompilerProbabilityThreshold is the minimum compiler-related probability at
// which the comparator asks the analyzer to synthesize a COMPILER anomaly.
const CompilerProbabilityThreshold = 0.3

// Synthesize returns a COMPILER anomaly group built from the best (highest
// probability) comparison result, or nil if no comparison clears
// CompilerProbabilityThreshold. The group's Faster/Slower sets are left empty
// and nothing later in the pipeline fills them; the runtimes involved are
// available only through CompilerProfile's FasterLabel/SlowerLabel. A
// COMPILER anomaly never shadows a TIME/MEMORY anomaly; callers append it
// alongside, not in place of, those.
func Synthesize(results []ComparisonResult, weightCompiler float64) *anomaly.Group {
	if len(results) == 0 {
		return nil
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.CompilerRelatedProbability > best.CompilerRelatedProbability {
			best = r
		}
	}
	if best.CompilerRelatedProbability <= CompilerProbabilityThreshold {
		return nil
	}
	g := anomaly.NewGroup(anomaly.Compiler)
	g.Interestingness = best.CompilerRelatedProbability * weightCompiler
	g.CompilerProfile = best
	g.Description = best.Explanation
	return g
}

// Enrich attaches the most relevant comparison result to a TIME or MEMORY
// anomaly group so downstream renderers can present a combined report. It
// picks the comparison whose faster/slower labels are both present in the
// group's runtime sets, preferring the highest-probability such match.
func Enrich(g *anomaly.Group, results []ComparisonResult) {
	if g.Kind != anomaly.Time && g.Kind != anomaly.Memory {
		return
	}
	var best *ComparisonResult
	for i := range results {
		r := &results[i]
		if g.Faster.Contains(r.FasterLabel) && g.Slower.Contains(r.SlowerLabel) {
			if best == nil || r.CompilerRelatedProbability > best.CompilerRelatedProbability {
				best = r
			}
		}
	}
	if best != nil {
		g.CompilerProfile = *best
	}
}
