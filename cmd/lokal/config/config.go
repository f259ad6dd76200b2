// Package configcmder provides the config command for managing persistent
// lokal configuration stored in the .lokal/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/pkg/cliui"
	"github.com/papercomputeco/lokal/pkg/config"
)

const configLongDesc string = `Manage persistent lokal configuration.

Configuration is stored as config.toml in the .lokal/ directory and provides
default values for command flags. CLI flags and LOKAL_* environment variables
always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  llm.provider, llm.model, llm.target, llm.api_key_env, llm.timeout,
  memory.enabled, memory.queue_size, memory.extraction_timeout,
  memory.match_threshold, memory.context_facts, memory.pin_identity,
  api.listen, events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  lokal config set <key> <value>    Set a configuration value
  lokal config get <key>            Get a configuration value
  lokal config list                 List all configuration values

Examples:
  lokal config set llm.provider anthropic
  lokal config set memory.pin_identity 5
  lokal config get storage.driver
  lokal config list`

const configShortDesc string = "Manage persistent lokal configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if config.IsValidConfigKey(key) {
		return nil
	}
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func openConfig(w io.Writer, configDir string) (*config.Configer, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cfger.Exists() {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(cfger.GetTarget()),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
	return cfger, nil
}
