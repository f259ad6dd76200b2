package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/cmd/lokal/setup"
	"github.com/papercomputeco/lokal/pkg/cliui"
)

const setLongDesc string = `Set a configuration value.

Validates the value for the given key and writes it to the config.toml file
stored in the .lokal/ directory.

Examples:
  lokal config set llm.provider anthropic
  lokal config set storage.driver postgres
  lokal config set memory.extraction_timeout 90s
  lokal config set events.brokers kafka-1:9092,kafka-2:9092`

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             "Set a configuration value",
		Long:              setLongDesc,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd.OutOrStdout(), args[0], args[1], setup.ConfigDir(cmd))
		},
	}
}

func runSet(w io.Writer, key, value, configDir string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	cfger, err := openConfig(w, configDir)
	if err != nil {
		return err
	}

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	stored, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(stored),
	)
	return nil
}
