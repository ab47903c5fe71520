package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"smartlists/models"
)

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "refresh <listId>",
		Short: "Recompute one list now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			p, err := newPipeline(cmd.Context(), settings, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			list, err := p.lists.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				ids, err := p.runner.Evaluate(cmd.Context(), list)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d items\n", list.Name, len(ids))
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			}

			ok, msg := p.runner.RefreshList(cmd.Context(), list, models.TriggerManual)
			if !ok {
				return fmt.Errorf("refresh %s failed: %s", list.Name, msg)
			}
			fmt.Fprintf(out, "%s: %s\n", list.Name, msg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print matching item ids without storing them")
	return cmd
}
