package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/nexus/pkg/authn"
	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/readiness"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/store"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/transition"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the lifecycle schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				if err := st.Migrate(cmd.Context()); err != nil {
					return err
				}
				printSummary(a.out, "PASS", map[string]any{"command": "migrate"})
				return nil
			})
		},
	}
}

func (a *app) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Manage the platform processor catalog"}
	var dryRun bool
	imp := &cobra.Command{
		Use:   "import <catalog.yaml>",
		Short: "Upsert processors and country features from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			c, err := store.ParseCatalog(f)
			if err != nil {
				return err
			}
			fields := map[string]any{"command": "catalog import", "processors": len(c.Processors), "features": len(c.Features), "dry_run": dryRun}
			if dryRun {
				printSummary(a.out, "PASS", fields)
				return nil
			}
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				if err := st.ImportCatalog(cmd.Context(), c); err != nil {
					return err
				}
				printSummary(a.out, "PASS", fields)
				return nil
			})
		},
	}
	imp.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	cmd.AddCommand(imp)
	return cmd
}

func (a *app) merchantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "merchant", Short: "Manage merchants"}
	var m domain.Merchant
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a merchant in SCOPING",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				created, err := st.CreateMerchant(cmd.Context(), m)
				if err != nil {
					return err
				}
				return a.printJSON(created)
			})
		},
	}
	create.Flags().StringVar(&m.Name, "name", "", "merchant name")
	create.Flags().StringVar(&m.ContactEmail, "contact-email", "", "primary contact email")
	create.Flags().StringVar(&m.SalesOwner, "sales-owner", "", "owning sales rep")
	create.Flags().StringVar(&m.ImplementationOwner, "implementation-owner", "", "owning implementation manager")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)
	return cmd
}

func (a *app) credentialCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "credential", Short: "Issue and revoke operator bearer tokens"}

	var actorID, actorType string
	var scopes []string
	var ttl time.Duration
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint a token; it is printed once and only its hash is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := domain.Actor{ID: strings.TrimSpace(actorID), Type: domain.ActorType(strings.ToUpper(actorType))}
			for _, s := range scopes {
				if !authn.HasScope(authn.AllScopes, s) {
					return fmt.Errorf("unknown scope %q", s)
				}
			}
			var expiresAt *time.Time
			if ttl > 0 {
				t := time.Now().UTC().Add(ttl)
				expiresAt = &t
			}
			token, hash, err := authn.NewToken()
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				id, err := st.CreateOperatorCredential(cmd.Context(), actor, hash, scopes, expiresAt)
				if err != nil {
					return err
				}
				printSummary(a.out, "PASS", map[string]any{"credential_id": id, "actor_id": actor.ID, "token": token})
				return nil
			})
		},
	}
	create.Flags().StringVar(&actorID, "actor-id", "", "actor the token acts as")
	create.Flags().StringVar(&actorType, "actor-type", string(domain.ActorUser), "USER, AI or SYSTEM")
	create.Flags().StringSliceVar(&scopes, "scope", nil, "granted scope (repeatable, default all)")
	create.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 means no expiry)")
	_ = create.MarkFlagRequired("actor-id")

	revoke := &cobra.Command{
		Use:   "revoke <credential_id>",
		Short: "Revoke an operator credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				if err := st.RevokeOperatorCredential(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("revoke %s: %w", args[0], err)
				}
				printSummary(a.out, "PASS", map[string]any{"credential_id": args[0], "revoked": true})
				return nil
			})
		},
	}
	cmd.AddCommand(create, revoke)
	return cmd
}

func (a *app) readinessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "readiness <merchant_id>",
		Short: "Show scope and implementation readiness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(st *store.Store) error {
				m, err := st.GetMerchant(ctx, args[0])
				if err != nil {
					return err
				}
				doc, err := st.GetScopeDocument(ctx, m.MerchantID)
				if err != nil {
					return err
				}
				statuses := domain.AllMissing()
				if doc != nil {
					statuses = doc.Statuses
				}
				impl, err := readiness.NewImplementationCalculator(st).Calculate(ctx, m.MerchantID)
				if err != nil {
					return err
				}
				return a.printJSON(map[string]any{
					"merchant_id":              m.MerchantID,
					"lifecycle_stage":          m.LifecycleStage,
					"scope_readiness":          readiness.CalculateScopeReadiness(statuses),
					"implementation_readiness": impl,
				})
			})
		},
	}
}

func (a *app) previewCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "preview <merchant_id>",
		Short: "Dry-run the next stage transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target := domain.Stage(strings.ToUpper(strings.TrimSpace(to)))
			if target != domain.StageImplementing && target != domain.StageLive {
				return fmt.Errorf("--to must be implementing or live")
			}
			return a.withStore(ctx, func(st *store.Store) error {
				o := transition.NewOrchestrator(st, st)
				preview := o.PreviewTransitionToImplementing
				if target == domain.StageLive {
					preview = o.PreviewTransitionToLive
				}
				res, err := preview(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "implementing", "target stage: implementing or live")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <merchant_id>",
		Short: "List stage transitions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(st *store.Store) error {
				out, err := transition.NewOrchestrator(st, st).ListTransitions(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printJSON(out)
			})
		},
	}
}
