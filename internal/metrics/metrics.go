// Package metrics defines the immutable per-run measurement produced by the
// benchmark harness for a single runtime, plus the sentinel/tagged-variant
// handling the analyzer relies on.
package metrics

import "fmt"

// TimeoutExitCode is the reserved sentinel exit code assigned to a run that was
// forcibly terminated after exceeding its configured timeout.
const TimeoutExitCode = -100

// kind is the closed set of shapes PerformanceMetrics can take. Modeled as the
// tagged sum type the original design calls for: Timeout | ParseFailure{exitCode} |
// Ok{score, error, min, max, memory, reportPath}.
type kind int

const (
	kindOK kind = iota
	kindTimeout
	kindParseFailure
)

// PerformanceMetrics is one measurement of one runtime on one input. Construct
// with NewOK, NewTimeout, or NewParseFailure — the zero value is not a valid
// PerformanceMetrics.
type PerformanceMetrics struct {
	kind kind

	score  float64
	errBar float64
	min    float64
	max    float64
	memory float64 // sentinel MemoryUnset when absent

	exitCode int
	report   string // opaque handle to the raw report file
}

// MemoryUnset is the sentinel value for an absent memory sample.
const MemoryUnset = -1.0

// NewOK builds a successfully-parsed measurement. memory may be MemoryUnset if
// the harness did not emit a memory line.
func NewOK(score, errBar, min, max, memory float64, exitCode int, reportPath string) PerformanceMetrics {
	return PerformanceMetrics{
		kind:     kindOK,
		score:    score,
		errBar:   errBar,
		min:      min,
		max:      max,
		memory:   memory,
		exitCode: exitCode,
		report:   reportPath,
	}
}

// NewTimeout builds a measurement for a run that exceeded its timeout and was
// forcibly terminated. A timed-out run never carries a parsed score.
func NewTimeout() PerformanceMetrics {
	return PerformanceMetrics{kind: kindTimeout, exitCode: TimeoutExitCode}
}

// NewParseFailure builds a measurement for a run that exited (possibly
// non-zero) but whose result file was missing or malformed.
func NewParseFailure(exitCode int) PerformanceMetrics {
	return PerformanceMetrics{kind: kindParseFailure, exitCode: exitCode}
}

// TimedOut reports whether this run was forcibly terminated after timeout.
func (m PerformanceMetrics) TimedOut() bool { return m.kind == kindTimeout }

// ParseSuccess reports whether this run produced a usable score/error/min/max.
// If false, the score-bearing fields are sentinels and must not be consumed.
func (m PerformanceMetrics) ParseSuccess() bool { return m.kind == kindOK }

// ExitCode returns the process exit code, or TimeoutExitCode if this run timed out.
func (m PerformanceMetrics) ExitCode() int { return m.exitCode }

// Score returns the central-tendency score. Only valid when ParseSuccess is true.
func (m PerformanceMetrics) Score() float64 { return m.score }

// Error returns the half-width of the confidence interval around Score. Only
// valid when ParseSuccess is true.
func (m PerformanceMetrics) Error() float64 { return m.errBar }

// Min returns the minimum observed score. Only valid when ParseSuccess is true.
func (m PerformanceMetrics) Min() float64 { return m.min }

// Max returns the maximum observed score. Only valid when ParseSuccess is true.
func (m PerformanceMetrics) Max() float64 { return m.max }

// Memory returns the average memory usage sample in KB, or MemoryUnset if the
// harness did not report one. Only meaningful when ParseSuccess is true.
func (m PerformanceMetrics) Memory() float64 { return m.memory }

// HasMemory reports whether a memory sample is present.
func (m PerformanceMetrics) HasMemory() bool {
	return m.kind == kindOK && m.memory != MemoryUnset
}

// Raw returns the opaque handle (path) to the raw report file backing this
// measurement, if any.
func (m PerformanceMetrics) Raw() string { return m.report }

// String renders a short diagnostic summary, used in logs.
func (m PerformanceMetrics) String() string {
	switch m.kind {
	case kindTimeout:
		return "timeout"
	case kindParseFailure:
		return fmt.Sprintf("parse-failure(exit=%d)", m.exitCode)
	default:
		return fmt.Sprintf("ok(score=%.3f err=%.3f exit=%d)", m.score, m.errBar, m.exitCode)
	}
}
