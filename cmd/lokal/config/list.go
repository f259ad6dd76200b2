package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/cmd/lokal/setup"
	"github.com/papercomputeco/lokal/pkg/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Long:  "List every configuration key with its value from config.toml or its default.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.OutOrStdout(), setup.ConfigDir(cmd))
		},
	}
}

func runList(w io.Writer, configDir string) error {
	cfger, err := openConfig(w, configDir)
	if err != nil {
		return err
	}

	keys := config.ValidConfigKeys()

	// Find the longest key name for alignment.
	maxLen := 0
	for _, k := range keys {
		maxLen = max(maxLen, len(k))
	}

	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}

		if value == "" {
			fmt.Fprintf(w, "  %-*s = <not set>\n", maxLen, key)
		} else {
			fmt.Fprintf(w, "  %-*s = %q\n", maxLen, key, value)
		}
	}
	fmt.Fprintln(w)

	return nil
}
