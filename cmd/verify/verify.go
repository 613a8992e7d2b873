// Package verify is a subcommand of the root command. It forces a
// Reporting-level confirmation pass over every seed currently held in the
// anomaly repository, re-measuring each one and re-persisting it if it is
// still found interesting.
package verify

import (
	"fmt"
	"strings"

	"permfuzz/internal/analyzer"
	"permfuzz/internal/app"
	"permfuzz/internal/compilelog"
	"permfuzz/internal/config"
	"permfuzz/internal/harness"
	"permfuzz/internal/repository"
	"permfuzz/internal/verifier"

	"github.com/spf13/cobra"
)

const cmdName = "verify"

var examples = []string{
	fmt.Sprintf("  Re-confirm every seed in the repository: $ %s %s --config permfuzz.yaml", app.Name, cmdName),
}

var Cmd = &cobra.Command{
	Use:     cmdName,
	Short:   "Force a confirmation pass over the anomaly repository",
	Example: strings.Join(examples, "\n"),
	RunE:    runCmd,
	GroupID: "primary",
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
	if err := cfg.Validate(); err != nil {
		return err
	}

	repo, err := repository.NewFileRepository(cfg.RepositoryDir)
	if err != nil {
		return err
	}
	seeds, err := repo.List()
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		fmt.Println("repository is empty, nothing to verify")
		return nil
	}

	an := analyzer.New()
	if err := an.WithGroupScoreExpression(cfg.GroupScoreExpression); err != nil {
		return err
	}
	h := harness.CommandHarness{
		WorkDir:     cfg.WorkspaceDir,
		CompileLogs: compilelog.NewRegistry(compilelog.RegexParser{}),
	}

	v := verifier.New(an, h, repo, 0, 0, len(seeds), cfg.VerifierConfirmRuns)
	for _, s := range seeds {
		v.Enqueue(s)
	}

	runtimes := make([]harness.RuntimeConfig, 0, len(cfg.Runtimes))
	for _, rt := range cfg.Runtimes {
		runtimes = append(runtimes, harness.RuntimeConfig{
			Label:             rt.Label,
			ExecutablePath:    rt.ExecutablePath,
			Args:              rt.Args,
			WorkspaceTemplate: rt.WorkspaceTemplate,
		})
	}

	result, err := v.PerformBatch(cmd.Parent().Context(), runtimes, harness.Settings{Timeout: cfg.Timeout()})
	if err != nil {
		return err
	}
	fmt.Printf("confirmed=%d dampened=%d\n", len(result.Confirmed), len(result.Dampened))
	return nil
}
