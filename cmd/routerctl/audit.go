package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-intent-router/internal/audit"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
	"github.com/tjfontaine/polyglot-intent-router/internal/runtime"
)

func newAuditCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Recompute the hash chain of the configured audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			store, err := runtime.OpenSessionStore(cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			sink, err := runtime.OpenAuditSink(cfg.Audit, store)
			if err != nil {
				return err
			}
			if any(sink) != any(store) {
				defer sink.Close()
			}

			n, err := audit.VerifySink(cmd.Context(), sink)
			if err != nil {
				return fmt.Errorf("audit chain broken after %d events: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d events verified\n", n)
			return nil
		},
	}

	cmd.AddCommand(verify)
	return cmd
}
