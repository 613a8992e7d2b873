// Package config is a subcommand of the root command. It prints the
// effective configuration (defaults merged with an optional file) as YAML,
// useful for checking what a fuzz run would actually use.
package config

import (
	"fmt"
	"os"
	"strings"

	"permfuzz/internal/app"
	"permfuzz/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

const cmdName = "config"

var examples = []string{
	fmt.Sprintf("  Print the default configuration:     $ %s %s", app.Name, cmdName),
	fmt.Sprintf("  Print a file merged over defaults:   $ %s %s --config permfuzz.yaml", app.Name, cmdName),
}

var Cmd = &cobra.Command{
	Use:     cmdName,
	Short:   "Print the effective configuration",
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
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
