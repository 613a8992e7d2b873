// Package report is a subcommand of the root command. It renders the
// confirmed-anomaly repository as an .xlsx workbook, JSON, or a
// console-friendly text summary.
package report

import (
	"fmt"
	"os"
	"strings"

	"permfuzz/internal/app"
	"permfuzz/internal/config"
	"permfuzz/internal/repository"
	"permfuzz/internal/reportrender"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const cmdName = "report"

var examples = []string{
	fmt.Sprintf("  Print a text summary:             $ %s %s --config permfuzz.yaml", app.Name, cmdName),
	fmt.Sprintf("  Render a workbook:                $ %s %s --config permfuzz.yaml --format xlsx --out report.xlsx", app.Name, cmdName),
	fmt.Sprintf("  Render JSON to stdout:            $ %s %s --config permfuzz.yaml --format json", app.Name, cmdName),
}

var Cmd = &cobra.Command{
	Use:     cmdName,
	Short:   "Render the anomaly repository as a workbook, JSON, or text",
	Example: strings.Join(examples, "\n"),
	RunE:    runCmd,
	GroupID: "primary",
}

var (
	flagFormat string
	flagOut    string
)

func init() {
	Cmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text, json, or xlsx")
	Cmd.Flags().StringVar(&flagOut, "out", "", "output file path (defaults to stdout, required for xlsx)")
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

	repo, err := repository.NewFileRepository(cfg.RepositoryDir)
	if err != nil {
		return err
	}
	seeds, err := repo.List()
	if err != nil {
		return err
	}

	var out *os.File
	if flagOut != "" {
		out, err = os.Create(flagOut)
		if err != nil {
			return errors.Wrapf(err, "report: create %s", flagOut)
		}
		defer out.Close()
	} else {
		if flagFormat == "xlsx" {
			return errors.New("report: --out is required for xlsx output")
		}
		out = os.Stdout
	}

	switch flagFormat {
	case "xlsx":
		return reportrender.RenderXLSX(out, seeds)
	case "json":
		return reportrender.RenderJSON(out, seeds)
	case "text":
		return reportrender.RenderText(out, seeds)
	default:
		return errors.Errorf("report: unknown format %q", flagFormat)
	}
}
