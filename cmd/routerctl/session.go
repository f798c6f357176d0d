package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-intent-router/internal/audit"
	"github.com/tjfontaine/polyglot-intent-router/internal/composer"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
	"github.com/tjfontaine/polyglot-intent-router/internal/runtime"
	"github.com/tjfontaine/polyglot-intent-router/internal/session"
)

func newSessionCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or release persisted sessions",
	}

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session record",
		Args:  cobra.ExactArgs(1),
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

			mgr, err := newManager(cfg, store)
			if err != nil {
				return err
			}
			s, err := mgr.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}

	unlock := &cobra.Command{
		Use:   "unlock <session-id>",
		Short: "Release a session lock as a supervisor",
		Args:  cobra.ExactArgs(1),
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

			mgr, err := newManager(cfg, store)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			id := args[0]
			traceID := composer.NewTraceID()

			res, err := mgr.Unlock(ctx, id, domain.UnlockReasonSupervisor, traceID)
			if err != nil {
				return err
			}

			if res.Released {
				sink, err := runtime.OpenAuditSink(cfg.Audit, store)
				if err != nil {
					return err
				}
				if any(sink) != any(store) {
					defer sink.Close()
				}
				recorder, err := audit.NewLogger(ctx, sink)
				if err != nil {
					return err
				}
				recorder.Record(ctx, &domain.AuditEvent{
					TraceID:   traceID,
					EventType: domain.AuditEventSupervisor,
					SessionID: id,
					DecisionSnapshot: &domain.OverrideDecision{
						PreviousDomain:    res.PreviousDomain,
						NewDomain:         res.Session.ActiveDomain,
						CanRouteToDefault: true,
						Action:            domain.ActionUnlock,
					},
				})
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "session %s was not locked\n", id)
			}
			return printJSON(cmd.OutOrStdout(), res.Session)
		},
	}

	var (
		lockDomain string
		lockTTL    time.Duration
	)
	lock := &cobra.Command{
		Use:   "lock <session-id>",
		Short: "Pin an existing session to a domain",
		Args:  cobra.ExactArgs(1),
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

			mgr, err := newManager(cfg, store)
			if err != nil {
				return err
			}
			s, err := mgr.Lock(cmd.Context(), args[0], lockDomain, "supervisor_lock", lockTTL, composer.NewTraceID())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	lock.Flags().StringVar(&lockDomain, "domain", "", "domain to lock the session into")
	lock.Flags().DurationVar(&lockTTL, "ttl", 0, "lock duration (default: session.ttl)")
	lock.MarkFlagRequired("domain")

	cmd.AddCommand(show, unlock, lock)
	return cmd
}

func newManager(cfg *config.Config, store ports.SessionStore) (*session.Manager, error) {
	return session.NewManager(session.ManagerConfig{
		Store:         store,
		DefaultDomain: cfg.Session.DefaultDomain,
		TTL:           cfg.Session.TTL,
		MaxRetries:    cfg.Session.MaxCASRetries,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
