// Package profile models per-runtime compilation profiles extracted from
// execution logs, and the pairwise comparator that scores whether an observed
// performance divergence is likely compiler-related.
package profile

import (
	"fmt"
	"sort"
)

// CompilationEvent is one method compilation observed in a runtime's log.
type CompilationEvent struct {
	Method    string // fully-qualified method name
	Signature string
	Tier      int // ordinal, higher = more aggressive
	CompileNS int64
	Deopt     bool
	Inlined   []string // inlined children, by method name
}

// CompilationProfile aggregates all compilation events observed for one
// runtime during one run.
type CompilationProfile struct {
	RuntimeLabel string
	Events       []CompilationEvent

	// aggregates, computed by NewProfile
	Compilations    int
	TotalCompileNS  int64
	MaxTier         int
	InliningRate    float64 // Σ|inlined|/|events|
	DeoptCount      int
	UniqueMethods   int
}

// NewProfile builds a profile from a runtime label and its observed events,
// computing aggregates eagerly.
func NewProfile(runtimeLabel string, events []CompilationEvent) CompilationProfile {
	p := CompilationProfile{RuntimeLabel: runtimeLabel, Events: events}
	p.finalize()
	return p
}

func (p *CompilationProfile) finalize() {
	seen := map[string]bool{}
	var totalInlined int
	for _, e := range p.Events {
		p.Compilations++
		p.TotalCompileNS += e.CompileNS
		if e.Tier > p.MaxTier {
			p.MaxTier = e.Tier
		}
		if e.Deopt {
			p.DeoptCount++
		}
		totalInlined += len(e.Inlined)
		seen[e.Method] = true
	}
	p.UniqueMethods = len(seen)
	if p.Compilations > 0 {
		p.InliningRate = float64(totalInlined) / float64(p.Compilations)
	}
}

// highTierFraction is the fraction of compilations at or above this profile's
// own maxTier (its own ceiling — profiles are never compared against a
// global tier numbering).
func (p CompilationProfile) highTierFraction() float64 {
	if p.Compilations == 0 {
		return 0
	}
	var n int
	for _, e := range p.Events {
		if e.Tier >= p.MaxTier {
			n++
		}
	}
	return float64(n) / float64(p.Compilations)
}

// deoptFraction is deopts per compilation, clamped to [0,1].
func (p CompilationProfile) deoptFraction() float64 {
	if p.Compilations == 0 {
		return 0
	}
	f := float64(p.DeoptCount) / float64(p.Compilations)
	if f > 1 {
		f = 1
	}
	return f
}

// Efficiency scores how aggressively/cleanly a profile compiled, in [0,1]:
// 0.5·highTierFraction + 0.3·min(1, inliningRate) + 0.2·(1 − min(1, deopts/compilations)).
func (p CompilationProfile) Efficiency() float64 {
	if p.Compilations == 0 {
		return 0
	}
	inliningTerm := p.InliningRate
	if inliningTerm > 1 {
		inliningTerm = 1
	}
	return 0.5*p.highTierFraction() + 0.3*inliningTerm + 0.2*(1-p.deoptFraction())
}

// HotMethod is one ranked candidate for "responsible for observed divergence".
type HotMethod struct {
	Method string
	Score  float64
}

// ComparisonResult is the pairwise comparison between a faster and slower
// profile (faster = the side with the lower average measured time, per the
// ordering supplied by the caller — not derived from the profiles themselves).
type ComparisonResult struct {
	FasterLabel string
	SlowerLabel string
	Faster      CompilationProfile
	Slower      CompilationProfile

	EfficiencyDelta float64 // faster.Efficiency - slower.Efficiency

	UniqueInFaster []string
	UniqueInSlower []string

	InliningRateDelta float64 // faster - slower
	CompileSpeedDelta float64 // faster avg compile ns - slower avg compile ns

	CompilerRelatedProbability float64 // [0,1]
	Explanation                string

	HotMethods []HotMethod // top 10, descending score
}

// Compare produces one ComparisonResult for a faster/slower pair: efficiency
// and inlining deltas, unique-method sets, a compiler-related probability,
// and a ranked list of hot methods.
func Compare(fasterLabel string, faster CompilationProfile, slowerLabel string, slower CompilationProfile) ComparisonResult {
	r := ComparisonResult{
		FasterLabel: fasterLabel,
		SlowerLabel: slowerLabel,
		Faster:      faster,
		Slower:      slower,
	}
	r.EfficiencyDelta = faster.Efficiency() - slower.Efficiency()
	r.InliningRateDelta = faster.InliningRate - slower.InliningRate

	if faster.Compilations > 0 {
		r.CompileSpeedDelta = float64(faster.TotalCompileNS) / float64(faster.Compilations)
	}
	if slower.Compilations > 0 {
		r.CompileSpeedDelta -= float64(slower.TotalCompileNS) / float64(slower.Compilations)
	}

	fasterMethods := methodSet(faster)
	slowerMethods := methodSet(slower)
	for m := range fasterMethods {
		if !slowerMethods[m] {
			r.UniqueInFaster = append(r.UniqueInFaster, m)
		}
	}
	for m := range slowerMethods {
		if !fasterMethods[m] {
			r.UniqueInSlower = append(r.UniqueInSlower, m)
		}
	}
	sort.Strings(r.UniqueInFaster)
	sort.Strings(r.UniqueInSlower)

	r.CompilerRelatedProbability = compilerRelatedProbability(faster, slower, r.EfficiencyDelta)
	r.HotMethods = rankHotMethods(faster, slower)
	r.Explanation = explain(r)
	return r
}

func methodSet(p CompilationProfile) map[string]bool {
	m := make(map[string]bool, len(p.Events))
	for _, e := range p.Events {
		m[e.Method] = true
	}
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func compilerRelatedProbability(faster, slower CompilationProfile, efficiencyDelta float64) float64 {
	var levelFactor float64
	switch {
	case faster.MaxTier > slower.MaxTier:
		levelFactor = 0.6
	case faster.MaxTier < slower.MaxTier:
		levelFactor = 0.2
	default:
		levelFactor = 0.3
	}

	var deoptFactor float64
	if slower.DeoptCount > faster.DeoptCount {
		denom := slower.Compilations
		if denom < 1 {
			denom = 1
		}
		deoptFactor = 5 * float64(slower.DeoptCount-faster.DeoptCount) / float64(denom)
		if deoptFactor > 0.8 {
			deoptFactor = 0.8
		}
	}

	inliningFactor := 3 * abs(faster.InliningRate-slower.InliningRate)
	if inliningFactor > 0.7 {
		inliningFactor = 0.7
	}

	efficiencyTerm := 3 * efficiencyDelta
	if efficiencyTerm < 0 {
		efficiencyTerm = 0 // a negative delta (slower side more "efficient") contributes nothing
	}
	if efficiencyTerm > 1 {
		efficiencyTerm = 1
	}

	p := 0.4*efficiencyTerm + 0.2*levelFactor + 0.3*deoptFactor + 0.1*inliningFactor
	return clamp01(p)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// rankHotMethods enumerates the union of method names across both profiles and
// scores each one: +3 per side where it reached that profile's max tier,
// +1.5·|tier delta| when both sides compiled it, +0.5 per inlined callee on
// each side, +2 when only one side compiled it, and +5 when exactly one side
// deoptimized it. Compile times are not scored. It returns the top 10.
func rankHotMethods(faster, slower CompilationProfile) []HotMethod {
	fasterEvents := latestEventByMethod(faster)
	slowerEvents := latestEventByMethod(slower)

	names := map[string]bool{}
	for m := range fasterEvents {
		names[m] = true
	}
	for m := range slowerEvents {
		names[m] = true
	}

	var ranked []HotMethod
	for name := range names {
		fe, inFaster := fasterEvents[name]
		se, inSlower := slowerEvents[name]

		var score float64
		if inFaster && fe.Tier >= faster.MaxTier {
			score += 3
		}
		if inSlower && se.Tier >= slower.MaxTier {
			score += 3
		}
		if inFaster && inSlower && fe.Tier != se.Tier {
			score += 1.5 * abs(float64(fe.Tier-se.Tier))
		}
		if inFaster {
			score += 0.5 * float64(len(fe.Inlined))
		}
		if inSlower {
			score += 0.5 * float64(len(se.Inlined))
		}
		if inFaster != inSlower {
			score += 2
		}
		if inFaster && inSlower && fe.Deopt != se.Deopt {
			score += 5
		}
		ranked = append(ranked, HotMethod{Method: name, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Method < ranked[j].Method // stable tiebreak for deterministic ordering
	})
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}
	return ranked
}

// latestEventByMethod keeps, for each method, its highest-tier observed
// compilation event (the one most representative of the profile's ceiling).
func latestEventByMethod(p CompilationProfile) map[string]CompilationEvent {
	m := map[string]CompilationEvent{}
	for _, e := range p.Events {
		if cur, ok := m[e.Method]; !ok || e.Tier > cur.Tier {
			m[e.Method] = e
		}
	}
	return m
}

func explain(r ComparisonResult) string {
	return fmt.Sprintf(
		"%s vs %s: efficiency delta %.3f, compiler-related probability %.2f (%d unique hot methods considered)",
		r.FasterLabel, r.SlowerLabel, r.EfficiencyDelta, r.CompilerRelatedProbability, len(r.HotMethods),
	)
}
