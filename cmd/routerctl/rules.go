package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/rules"
)

func newRulesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the trigger table",
	}

	var rulesPath string
	list := &cobra.Command{
		Use:   "list",
		Short: "List trigger rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := rules.Load(rulesPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRIORITY\tCATEGORY\tPATTERN\tTTL")
			for _, p := range domain.EvaluationOrder {
				for _, r := range set.Tier(p) {
					ttl := "-"
					if c, ok := set.Category(r.Category); ok && c.TTL > 0 {
						ttl = c.TTL.String()
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Priority, r.Category, r.Pattern, ttl)
				}
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&rulesPath, "rules", "", "rule table to load (default: embedded table)")

	cmd.AddCommand(list)
	return cmd
}
