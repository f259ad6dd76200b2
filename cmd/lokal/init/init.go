// Package initcmder provides the init command for initializing a local .lokal
// directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/cmd/lokal/setup"
	"github.com/papercomputeco/lokal/pkg/cliui"
	"github.com/papercomputeco/lokal/pkg/config"
)

const (
	dirName = ".lokal"

	presetFetchTimeout = 30 * time.Second
	maxPresetSize      = 1 << 20
)

const initLongDesc string = `Initialize a new .lokal/ directory in the current working directory.

Creates a local .lokal/ directory that takes precedence over the default
~/.lokal/ directory for the fact database, configuration, credentials and
chat session. A config.toml with default values is written unless one
already exists.

Use --preset to start from a provider preset (ollama, openai, anthropic) or
from a config.toml fetched over HTTP(S). A preset always overwrites the
existing config.toml.

Examples:
  lokal init
  lokal init --preset anthropic
  lokal init --preset https://example.com/lokal/config.toml`

const initShortDesc string = "Initialize a local .lokal/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), setup.ConfigDir(cmd), preset)
		},
		ValidArgsFunction: cobra.NoFileCompletions,
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+") or config.toml URL")

	return cmd
}

func runInit(ctx context.Context, w io.Writer, configDir, preset string) error {
	dir := configDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)
	}

	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		fmt.Fprintf(w, "  %s Already initialized: %s\n", cliui.DimStyle.Render("●"), dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .lokal directory: %w", err)
		}
		fmt.Fprintf(w, "  %s Initialized .lokal directory: %s\n", cliui.SuccessMark, dir)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if preset == "" {
		if cfger.Exists() {
			return nil
		}
		if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s Wrote default config: %s\n", cliui.SuccessMark, cfger.GetTarget())
		return nil
	}

	cfg, err := resolvePreset(ctx, preset)
	if err != nil {
		return err
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Wrote %s config: %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(preset),
		cfger.GetTarget(),
	)
	return nil
}

func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return fetchPreset(ctx, preset)
	}
	return config.PresetConfig(preset)
}

func fetchPreset(ctx context.Context, url string) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, presetFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating preset request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching preset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching preset: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPresetSize))
	if err != nil {
		return nil, fmt.Errorf("reading preset: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("fetching preset: empty response")
	}

	cfg, err := config.ParseConfigTOML(data)
	if err != nil {
		return nil, fmt.Errorf("parsing preset: %w", err)
	}
	return cfg, nil
}
