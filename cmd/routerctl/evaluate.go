package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/gate"
	"github.com/tjfontaine/polyglot-intent-router/internal/rules"
)

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	var (
		rulesPath     string
		activeDomain  string
		defaultDomain string
		locked        bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate <text>",
		Short: "Run the override gate against a message without touching any session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := rules.Load(rulesPath)
			if err != nil {
				return err
			}
			g, err := gate.New(set, defaultDomain)
			if err != nil {
				return err
			}

			now := time.Now()
			sess := domain.NewSession("routerctl", defaultDomain, now)
			if activeDomain != "" {
				sess.ActiveDomain = activeDomain
			}
			if locked {
				sess.Locked = true
				sess.LockExpiresAt = now.Add(time.Hour)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(g.Evaluate(args[0], sess, now))
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rule table to load (default: embedded table)")
	cmd.Flags().StringVar(&activeDomain, "domain", "", "active domain of the simulated session")
	cmd.Flags().StringVar(&defaultDomain, "default-domain", "BELLEZA", "default domain")
	cmd.Flags().BoolVar(&locked, "locked", false, "simulate a locked session")
	return cmd
}
