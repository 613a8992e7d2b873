// Package fuzz is a subcommand of the root command. It runs the fuzzer's
// main search loop: mutate seeds from a corpus, measure them against every
// configured runtime, and queue divergent seeds for confirmation.
package fuzz

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"permfuzz/internal/analyzer"
	"permfuzz/internal/app"
	"permfuzz/internal/compilelog"
	"permfuzz/internal/config"
	"permfuzz/internal/harness"
	"permfuzz/internal/loop"
	"permfuzz/internal/mutate"
	"permfuzz/internal/pool"
	"permfuzz/internal/progress"
	"permfuzz/internal/repository"
	"permfuzz/internal/seed"
	"permfuzz/internal/selector"
	"permfuzz/internal/telemetry"
	"permfuzz/internal/util"
	"permfuzz/internal/verifier"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const cmdName = "fuzz"

var examples = []string{
	fmt.Sprintf("  Run with a configuration file:       $ %s %s --config permfuzz.yaml", app.Name, cmdName),
	fmt.Sprintf("  Cap a run at 10000 iterations:       $ %s %s --config permfuzz.yaml --max-iterations 10000", app.Name, cmdName),
	fmt.Sprintf("  Serve Prometheus metrics while running: $ %s %s --config permfuzz.yaml --metrics-addr :9090", app.Name, cmdName),
}

var Cmd = &cobra.Command{
	Use:     cmdName,
	Short:   "Run a fuzzing campaign against the configured runtimes",
	Example: strings.Join(examples, "\n"),
	RunE:    runCmd,
	GroupID: "primary",
}

var (
	flagMaxIterations int
	flagStagnation    int
	flagCorpusDir     string
)

func init() {
	Cmd.Flags().IntVar(&flagMaxIterations, "max-iterations", -1, "override the configured maximum iteration count (-1 keeps the configured value)")
	Cmd.Flags().IntVar(&flagStagnation, "stagnation-threshold", -1, "override the configured stagnation threshold (-1 keeps the configured value)")
	Cmd.Flags().StringVar(&flagCorpusDir, "corpus", "", "override the configured corpus directory")
}

func runCmd(cmd *cobra.Command, args []string) error {
	configPath, err := cmd.Flags().GetString(app.FlagConfigFileName)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagCorpusDir != "" {
		cfg.CorpusDir = flagCorpusDir
	}
	if flagMaxIterations >= 0 {
		cfg.MaxIterations = flagMaxIterations
	}
	if flagStagnation >= 0 {
		cfg.StagnationThreshold = flagStagnation
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := util.CreateIfNotExists(cfg.WorkspaceDir, 0755); err != nil {
		return err
	}
	if err := util.CreateIfNotExists(cfg.RepositoryDir, 0755); err != nil {
		return err
	}

	corpus, err := loadCorpus(cfg.CorpusDir)
	if err != nil {
		return err
	}
	if len(corpus) == 0 {
		return errors.Errorf("fuzz: corpus directory %s contains no seed files", cfg.CorpusDir)
	}

	rng := rand.New(rand.NewSource(1)) //nolint:gosec

	poolMgr := pool.New(cfg.PoolMaxSize, cfg.PoolMinEnergyThreshold, cfg.PoolEnergyBoost, rng)
	for _, s := range corpus {
		poolMgr.AddInitial(s)
	}

	mutators := mutate.NewDefaultRegistry()

	strategySelector := selector.New(mutators, rng)
	strategySelector.ExplorationFactor = cfg.SelectorExplorationFactor
	strategySelector.DecayInterval = cfg.SelectorDecayInterval
	strategySelector.DecayFactor = cfg.SelectorDecayFactor
	if err := strategySelector.WithScoreExpression(cfg.StrategyScoreExpression); err != nil {
		return err
	}

	an := analyzer.New()
	if err := an.WithGroupScoreExpression(cfg.GroupScoreExpression); err != nil {
		return err
	}

	h := harness.CommandHarness{
		WorkDir:     cfg.WorkspaceDir,
		CompileLogs: compilelog.NewRegistry(compilelog.RegexParser{}),
	}
	repo, err := repository.NewFileRepository(cfg.RepositoryDir)
	if err != nil {
		return err
	}
	v := verifier.New(an, h, repo, cfg.VerifierPeriod, cfg.VerifierMinPending, cfg.VerifierTopN, cfg.VerifierConfirmRuns)

	var tel *telemetry.Telemetry
	metricsAddr, err := cmd.Flags().GetString(app.FlagMetricsAddrName)
	if err != nil {
		return err
	}
	ctx := cmd.Parent().Context()
	if metricsAddr != "" {
		tel = telemetry.New()
		go func() {
			if err := tel.Serve(ctx, metricsAddr); err != nil {
				slog.Error("metrics listener stopped", slog.String("error", err.Error()))
			}
		}()
	}

	l := &loop.Loop{
		Pool:                poolMgr,
		Selector:            strategySelector,
		Mutators:            mutators,
		Analyzer:            an,
		Harness:             h,
		Verifier:            v,
		Runtimes:            runtimeConfigs(cfg),
		HarnessSettings:     harness.Settings{Timeout: cfg.Timeout()},
		MaxIterations:       cfg.MaxIterations,
		StagnationThreshold: cfg.StagnationThreshold,
		Telemetry:           tel,
		RNG:                 rng,
	}

	slog.Info("starting fuzz run", slog.Int("corpus_size", len(corpus)), slog.Int("runtimes", len(cfg.Runtimes)))

	spinner := progress.NewMultiSpinner()
	_ = spinner.AddSpinner(cmdName)
	_ = spinner.Status(cmdName, "searching")
	spinner.Start()

	stats, err := l.Run(ctx)

	if err != nil {
		_ = spinner.Status(cmdName, "failed")
		spinner.Finish()
		return err
	}
	_ = spinner.Status(cmdName, fmt.Sprintf("done: %d confirmed", stats.Confirmed))
	spinner.Finish()

	fmt.Printf("iterations=%d confirmed=%d dropped=%d\n", stats.Iterations, stats.Confirmed, stats.Dropped)
	return nil
}

func runtimeConfigs(cfg config.Config) []harness.RuntimeConfig {
	out := make([]harness.RuntimeConfig, 0, len(cfg.Runtimes))
	for _, rt := range cfg.Runtimes {
		out = append(out, harness.RuntimeConfig{
			Label:             rt.Label,
			ExecutablePath:    rt.ExecutablePath,
			Args:              rt.Args,
			WorkspaceTemplate: rt.WorkspaceTemplate,
		})
	}
	return out
}

// loadCorpus reads every regular file directly under dir as a seed artifact.
// The class label is the file's base name; the package label is always
// "corpus".
func loadCorpus(dir string) ([]*seed.Seed, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "fuzz: read corpus dir %s", dir)
	}
	var seeds []*seed.Seed
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "fuzz: read seed %s", path)
		}
		seeds = append(seeds, seed.NewInitialSeed(data, e.Name(), "corpus", 10))
	}
	return seeds, nil
}
