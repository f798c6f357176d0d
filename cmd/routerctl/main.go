// Command routerctl inspects and operates an intent router deployment: it
// dry-runs the override gate, lists the rule table, verifies the audit
// chain and lets a supervisor inspect or release session locks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "routerctl",
		Short: "Operate the intent router",
		Long: `Operate the intent router.

Quick Start:
  routerctl evaluate "quiero emprender"          # Dry-run the override gate
  routerctl rules list                           # Show the trigger table
  routerctl audit verify --config config.yaml    # Check the audit hash chain
  routerctl session unlock wa:5215550001         # Release a session lock`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to config.yaml")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		newEvaluateCmd(opts),
		newRulesCmd(opts),
		newAuditCmd(opts),
		newSessionCmd(opts),
	)
	return cmd
}
