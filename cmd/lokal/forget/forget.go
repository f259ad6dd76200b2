// Package forgetcmder provides the forget command for removing facts.
package forgetcmder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/cmd/lokal/setup"
	"github.com/papercomputeco/lokal/pkg/cliui"
	"github.com/papercomputeco/lokal/pkg/facts"
)

const forgetLongDesc string = `Remove a fact, or erase everything lokal remembers.

A reference is a fact id, the short id shown by "lokal facts list", or text
close enough to a stored fact.

Examples:
  lokal forget 9c1e4f2a
  lokal forget user owns a bicycle
  lokal forget --all --yes`

func NewForgetCmd() *cobra.Command {
	var all, yes bool

	cmd := &cobra.Command{
		Use:   "forget [reference...]",
		Short: "Remove facts from memory",
		Long:  forgetLongDesc,
		Args: func(_ *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return errors.New("--all does not take a reference")
			case !all && len(args) == 0:
				return errors.New("a fact reference or --all is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && !yes {
				return errors.New("refusing to erase every fact without --yes")
			}

			env, err := setup.Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			if all {
				n, err := env.Store.Count(ctx)
				if err != nil {
					return err
				}
				if err := env.Store.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintf(w, "  %s Erased %d facts\n", cliui.SuccessMark, n)
				return nil
			}

			ref, err := expandShortID(ctx, env.Store, strings.Join(args, " "))
			if err != nil {
				return err
			}

			f, err := env.Store.Remove(ctx, ref)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %s Forgot %s\n", cliui.SuccessMark, f.Content)
			return nil
		},
	}

	setup.AddStoreFlags(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "Erase every fact")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm --all")

	return cmd
}

// expandShortID maps a short id from the facts listing onto the full id. Any
// other reference is returned unchanged.
func expandShortID(ctx context.Context, store facts.Store, ref string) (string, error) {
	if strings.ContainsAny(ref, " \t") {
		return ref, nil
	}

	list, err := store.List(ctx, facts.ListOptions{})
	if err != nil {
		return "", err
	}

	var match string
	for _, f := range list {
		if f.ID == ref {
			return ref, nil
		}
		if cliui.ShortID(f.ID) == ref {
			if match != "" {
				return "", fmt.Errorf("short id %q is ambiguous", ref)
			}
			match = f.ID
		}
	}
	if match == "" {
		return ref, nil
	}
	return match, nil
}
