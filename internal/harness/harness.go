// Package harness defines the contract between the fuzzer loop and the
// code that actually runs a compiled artifact on one runtime, plus a
// reference implementation that drives an external command and parses its
// result file.
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"permfuzz/internal/compilelog"
	"permfuzz/internal/executor"
	"permfuzz/internal/metrics"
	"permfuzz/internal/profile"
	"permfuzz/internal/util"
)

// RuntimeConfig describes one managed runtime the harness can target.
type RuntimeConfig struct {
	Label             string
	ExecutablePath    string
	Args              []string
	WorkspaceTemplate string // optional directory copied into each run's workspace
	Env               []string
}

// Settings controls one harness invocation.
type Settings struct {
	Timeout        time.Duration
	ResultFileName string // defaults to "result.json"
}

// Harness is the external-collaborator contract: run one artifact against
// one runtime and return its measured performance alongside whatever
// compilation profile could be extracted from the run's output.
type Harness interface {
	Run(ctx context.Context, artifact []byte, rt RuntimeConfig, settings Settings) (metrics.PerformanceMetrics, profile.CompilationProfile, error)
}

// CommandHarness materializes the artifact into a per-run workspace, runs
// the runtime's configured command, and parses one JSON result file plus an
// optional "AVERAGE_MEMORY_USAGE_KB: <n>" stdout line.
type CommandHarness struct {
	// WorkDir is the parent directory under which per-run workspaces are
	// created; each run gets its own subdirectory, removed after parsing
	// unless KeepWorkspaces is set.
	WorkDir        string
	KeepWorkspaces bool

	// CompileLogs is an optional collaborator that extracts a compilation
	// profile from a run's stdout/stderr. A nil registry means no compiler
	// signal is produced and every run's profile is the zero value.
	CompileLogs *compilelog.Registry
}

var memoryLineRe = regexp.MustCompile(`AVERAGE_MEMORY_USAGE_KB:\s*([0-9.]+)`)

type resultFile struct {
	Score float64 `json:"score"`
	Error float64 `json:"error"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Run implements Harness.
func (h CommandHarness) Run(ctx context.Context, artifact []byte, rt RuntimeConfig, settings Settings) (metrics.PerformanceMetrics, profile.CompilationProfile, error) {
	resultName := settings.ResultFileName
	if resultName == "" {
		resultName = "result.json"
	}

	workspace, err := os.MkdirTemp(h.WorkDir, "run-*")
	if err != nil {
		return metrics.PerformanceMetrics{}, profile.CompilationProfile{}, fmt.Errorf("harness: create workspace: %w", err)
	}
	if !h.KeepWorkspaces {
		defer os.RemoveAll(workspace)
	}

	if rt.WorkspaceTemplate != "" {
		if err := util.CopyDirectory(rt.WorkspaceTemplate, workspace); err != nil {
			return metrics.PerformanceMetrics{}, profile.CompilationProfile{}, fmt.Errorf("harness: materialize workspace: %w", err)
		}
	}

	inputPath := filepath.Join(workspace, "input.bin")
	if err := os.WriteFile(inputPath, artifact, 0644); err != nil {
		return metrics.PerformanceMetrics{}, profile.CompilationProfile{}, fmt.Errorf("harness: write artifact: %w", err)
	}
	resultPath := filepath.Join(workspace, resultName)

	args := make([]string, len(rt.Args))
	replacer := strings.NewReplacer("{workspace}", workspace, "{input}", inputPath, "{result}", resultPath)
	for i, a := range rt.Args {
		args[i] = replacer.Replace(a)
	}

	exec := executor.RuntimeExecutor{
		Label:   rt.Label,
		Command: rt.ExecutablePath,
		Args:    args,
		Dir:     workspace,
		Env:     rt.Env,
	}
	res, err := exec.Run(ctx, settings.Timeout, "")
	if err != nil {
		return metrics.PerformanceMetrics{}, profile.CompilationProfile{}, fmt.Errorf("harness: run %s: %w", rt.Label, err)
	}
	prof := h.parseCompileLog(rt.Label, res.Stdout, res.Stderr)
	if res.TimedOut {
		return metrics.NewTimeout(), prof, nil
	}

	raw, err := os.ReadFile(resultPath)
	if err != nil {
		return metrics.NewParseFailure(res.ExitCode), prof, nil
	}
	var parsed resultFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return metrics.NewParseFailure(res.ExitCode), prof, nil
	}

	memory := metrics.MemoryUnset
	if m := memoryLineRe.FindStringSubmatch(res.Stdout); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			memory = v
		}
	}

	return metrics.NewOK(parsed.Score, parsed.Error, parsed.Min, parsed.Max, memory, res.ExitCode, resultPath), prof, nil
}

// parseCompileLog extracts a compilation profile from one run's output using
// the registered parser for rt's label. A nil registry, an unregistered
// label with no fallback, or a parse error all yield the zero profile: the
// compiler signal is best-effort and never fails a run.
func (h CommandHarness) parseCompileLog(label, stdout, stderr string) profile.CompilationProfile {
	if h.CompileLogs == nil {
		return profile.CompilationProfile{}
	}
	p := h.CompileLogs.For(label)
	if p == nil {
		return profile.CompilationProfile{}
	}
	prof, err := p.Parse(label, stdout, stderr)
	if err != nil {
		return profile.CompilationProfile{}
	}
	return prof
}
