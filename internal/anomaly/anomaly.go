// Package anomaly defines the closed set of divergence kinds the analyzer can
// report and the AnomalyGroup record that carries one classified, scored
// divergence across runtimes for a single input.
package anomaly

import (
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Kind is the closed set of anomaly classifications. There is deliberately no
// "unknown" variant — every anomaly the analyzer emits is one of these five.
type Kind int

const (
	Time Kind = iota
	Memory
	Timeout
	Error
	Compiler
)

// String renders the kind's canonical name.
func (k Kind) String() string {
	switch k {
	case Time:
		return "TIME"
	case Memory:
		return "MEMORY"
	case Timeout:
		return "TIMEOUT"
	case Error:
		return "ERROR"
	case Compiler:
		return "COMPILER"
	default:
		return "UNKNOWN"
	}
}

// Group is a classified, scored divergence across two or more runtimes for one
// input. Faster is the well-behaved side (including, for TIMEOUT/ERROR, the
// side that did not time out / did not error).
type Group struct {
	Kind Kind

	Faster mapset.Set[string]
	Slower mapset.Set[string]

	AverageDeviation float64 // percent
	MaxDeviation     float64
	MinDeviation     float64

	// PairwiseDeviation[slowerLabel][fasterLabel] = deviation percent between
	// that specific pair.
	PairwiseDeviation map[string]map[string]float64

	Description string

	Interestingness float64 // non-negative

	// ExitCodes is populated only for Kind == Error: runtime label -> exit code.
	ExitCodes map[string]int

	// CompilerProfile carries an attached comparison payload (see package
	// profile) so TIME/MEMORY groups can be enriched with compiler context,
	// and so a synthesized COMPILER group can carry its own. Kept as `any` here
	// to avoid an import cycle with package profile, which itself may want to
	// reference anomaly.Group when synthesizing.
	CompilerProfile any
}

// NewGroup constructs a Group with empty-but-non-nil sets and maps, the
// invariant Faster ∩ Slower = ∅ holding trivially until runtimes are added.
func NewGroup(kind Kind) *Group {
	return &Group{
		Kind:              kind,
		Faster:            mapset.NewSet[string](),
		Slower:            mapset.NewSet[string](),
		PairwiseDeviation: map[string]map[string]float64{},
	}
}

// Valid reports whether the disjointness invariant holds.
func (g *Group) Valid() bool {
	return g.Faster.Intersect(g.Slower).Cardinality() == 0
}

// SetPairwise records the deviation between a specific slower/faster pair.
// It does not update AverageDeviation/MaxDeviation/MinDeviation; callers
// compute those with Finalize once all pairs are recorded.
func (g *Group) SetPairwise(slowerLabel, fasterLabel string, deviation float64) {
	if g.PairwiseDeviation[slowerLabel] == nil {
		g.PairwiseDeviation[slowerLabel] = map[string]float64{}
	}
	g.PairwiseDeviation[slowerLabel][fasterLabel] = deviation
}

// Finalize computes AverageDeviation/MaxDeviation/MinDeviation from the
// recorded pairwise deviations. Called once all pairs have been set.
func (g *Group) Finalize() {
	var sum, max, min float64
	count := 0
	first := true
	for _, byFaster := range g.PairwiseDeviation {
		for _, dev := range byFaster {
			sum += dev
			if first || dev > max {
				max = dev
			}
			if first || dev < min {
				min = dev
			}
			first = false
			count++
		}
	}
	if count == 0 {
		return
	}
	g.AverageDeviation = sum / float64(count)
	g.MaxDeviation = max
	g.MinDeviation = min
}

// describeSet renders a set of runtime labels in stable, sorted order.
func describeSet(s mapset.Set[string]) string {
	labels := s.ToSlice()
	sort.Strings(labels)
	return strings.Join(labels, ", ")
}

// Describe builds the human-readable description for the group. TIME and
// MEMORY groups read "<slower> averaged N% higher <time|memory> than
// <faster>"; TIMEOUT, ERROR and COMPILER groups use a fixed sentence naming
// both runtime sets.
func (g *Group) Describe() string {
	switch g.Kind {
	case Timeout:
		return fmt.Sprintf("%s timed out while %s did not", describeSet(g.Slower), describeSet(g.Faster))
	case Error:
		return fmt.Sprintf("%s failed while %s ran successfully", describeSet(g.Slower), describeSet(g.Faster))
	case Compiler:
		return fmt.Sprintf("compiler-optimization divergence between %s and %s", describeSet(g.Slower), describeSet(g.Faster))
	default:
		metric := "time"
		if g.Kind == Memory {
			metric = "memory"
		}
		return fmt.Sprintf("%s averaged %.1f%% higher %s than %s", describeSet(g.Slower), g.AverageDeviation, metric, describeSet(g.Faster))
	}
}
