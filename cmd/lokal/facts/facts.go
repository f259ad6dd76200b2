// Package factscmder provides the facts command for inspecting and editing
// the long-term fact store directly.
package factscmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/cmd/lokal/setup"
	"github.com/papercomputeco/lokal/pkg/cliui"
	"github.com/papercomputeco/lokal/pkg/config"
	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/retriever"
)

const factsLongDesc string = `Inspect and edit the facts lokal remembers about you.

Examples:
  lokal facts list
  lokal facts list --category identity
  lokal facts search what do I drink
  lokal facts add "user is vegetarian" --category preference
  lokal facts count`

func NewFactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Inspect and edit stored facts",
		Long:  factsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newCountCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		category string
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored facts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := facts.ListOptions{Limit: limit}
			if category != "" {
				opts.Category = facts.ParseCategory(category)
				if opts.Category == "" {
					return fmt.Errorf("unknown category: %q", category)
				}
			}

			env, err := setup.Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			list, err := env.Store.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), list, asJSON)
		},
	}

	setup.AddStoreFlags(cmd)
	cmd.Flags().StringVar(&category, "category", "", "Only list facts in this category (identity, preference, relationship, other)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of facts (default: all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		limit  int
		noPin  bool
		asJSON bool
		prompt bool
		pin    uint
	)

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Show the facts that would be injected for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup.Open(cmd, config.FlagPinIdentity)
			if err != nil {
				return err
			}
			defer env.Close()

			if noPin {
				env.Config.Memory.PinIdentity = 0
			}
			r, err := setup.NewRetriever(env.Config, env.Store, env.Logger)
			if err != nil {
				return err
			}

			list, err := r.RelevantFacts(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if prompt {
				_, err := io.WriteString(cmd.OutOrStdout(), retriever.Format(list))
				return err
			}
			return write(cmd.OutOrStdout(), list, asJSON)
		},
	}

	setup.AddStoreFlags(cmd)
	config.AddUintFlag(cmd, config.Registry, config.FlagPinIdentity, &pin)
	cmd.Flags().IntVarP(&limit, "limit", "n", facts.DefaultSearchLimit, "Maximum number of facts")
	cmd.Flags().BoolVar(&noPin, "no-pin", false, "Do not include pinned identity facts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&prompt, "prompt", false, "Print the facts exactly as chat injects them")

	return cmd
}

func newAddCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "add <content...>",
		Short: "Store a fact verbatim",
		Long: `Store a fact verbatim, without the extraction policy "lokal remember" applies.
The category is inferred from the content when not given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup.Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			f, err := env.Store.Insert(cmd.Context(), strings.Join(args, " "), facts.ParseCategory(category))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s Stored %s  %s\n",
				cliui.SuccessMark,
				cliui.Category(f.Category),
				f.Content,
			)
			return nil
		},
	}

	setup.AddStoreFlags(cmd)
	cmd.Flags().StringVar(&category, "category", "", "Fact category (identity, preference, relationship, other)")

	return cmd
}

func newCountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored facts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup.Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			n, err := env.Store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	setup.AddStoreFlags(cmd)

	return cmd
}

func write(w io.Writer, list []facts.Fact, asJSON bool) error {
	if !asJSON {
		cliui.WriteFacts(w, list)
		return nil
	}

	if list == nil {
		list = []facts.Fact{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}
