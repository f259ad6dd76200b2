// Package remembercmder provides the remember command for teaching lokal a
// fact explicitly.
package remembercmder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/cmd/lokal/setup"
	"github.com/papercomputeco/lokal/pkg/cliui"
	"github.com/papercomputeco/lokal/pkg/delta"
	"github.com/papercomputeco/lokal/pkg/facts"
)

const rememberLongDesc string = `Teach lokal a fact about you.

The text may be a plain statement or one or more tagged operations, one per
line, in the same format the extraction model uses:

  ADD: user is vegetarian
  UPDATE: user lives in Porto -> user lives in Lisbon
  REMOVE: user owns a bicycle

Plain statements are stored as ADDs. Every ADD and UPDATE goes through the
same enduring-facts policy as background extraction: passing states, wants
and plans are refused unless --force is given.

Examples:
  lokal remember "user is allergic to peanuts"
  lokal remember "UPDATE: user works at Acme -> user works at Initech"`

func NewRememberCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remember <text...>",
		Short: "Teach lokal a fact",
		Long:  rememberLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, rejected := parse(strings.Join(args, " "), force)
			for _, r := range rejected {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s Not remembered: %s %s\n",
					cliui.FailMark,
					r.Operation.Content,
					cliui.DimStyle.Render("("+r.Reason+")"),
				)
			}
			if len(ops) == 0 {
				if len(rejected) > 0 {
					return errors.New("nothing to remember")
				}
				return errors.New("no fact found in input")
			}

			env, err := setup.Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			changes := make([]facts.Change, 0, len(ops))
			for _, op := range ops {
				changes = append(changes, op.Change())
			}

			results, err := env.Store.Apply(cmd.Context(), changes)
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if !r.Applied() {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %v\n", cliui.FailMark, r.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s %s\n",
					cliui.SuccessMark,
					cliui.KeyStyle.Render(verb(r.Change.Op)),
					r.Fact.Content,
				)
			}
			if failed == len(results) {
				return errors.New("no changes applied")
			}
			return nil
		},
	}

	setup.AddStoreFlags(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Store ADD and UPDATE content even if the policy rejects it")

	return cmd
}

// parse reads tagged operations from text, treating untagged text as a single
// ADD.
func parse(text string, force bool) ([]delta.Operation, []delta.Rejection) {
	opts := []delta.Option{}
	if force {
		opts = append(opts, delta.WithPolicy(delta.NewPolicy()))
	}
	parser := delta.NewParser(opts...)

	for _, line := range strings.Split(text, "\n") {
		if _, ok := delta.ParseLine(line); ok {
			res := parser.ParseResult(text)
			return res.Operations, res.Rejected
		}
	}

	res := parser.ParseResult("ADD: " + strings.Join(strings.Fields(text), " "))
	return res.Operations, res.Rejected
}

func verb(op facts.Op) string {
	switch op {
	case facts.OpUpdate:
		return "Updated"
	case facts.OpRemove:
		return "Forgot"
	default:
		return "Remembered"
	}
}
