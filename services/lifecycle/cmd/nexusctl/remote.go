package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/pkg/lifecycleclient"
)

// transitionCmd executes through the API rather than the database so the change is
// attributed to the token's actor and passes the same checks as any other caller.
func (a *app) transitionCmd() *cobra.Command {
	var to, feedback, idemKey string
	var acks []string
	var ackAll bool
	cmd := &cobra.Command{
		Use:   "transition <merchant_id>",
		Short: "Move a merchant to the next stage through the lifecycle API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := domain.Stage(strings.ToUpper(strings.TrimSpace(to)))
			acknowledged, err := parseAcks(acks)
			if err != nil {
				return err
			}
			cfg, err := loadCLIConfig(a.v)
			if err != nil {
				return err
			}
			if cfg.Token == "" {
				return errors.New("an operator token is required (--token or token in config)")
			}
			c := lifecycleclient.New(cfg.ServerURL, cfg.Token)
			ctx := cmd.Context()

			if ackAll {
				p, err := c.PreviewTransition(ctx, args[0], target)
				if err != nil {
					return err
				}
				acknowledged = append(acknowledged, p.Warnings...)
			}
			res, err := c.Transition(ctx, args[0], target, lifecycleclient.TransitionRequest{
				UserFeedback:         feedback,
				AcknowledgedWarnings: acknowledged,
				IdempotencyKey:       idemKey,
			})
			if res != nil {
				if perr := a.printJSON(res); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&to, "to", "implementing", "target stage: implementing or live")
	cmd.Flags().StringVar(&feedback, "feedback", "", "note stored with the transition")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "replay key for safe retries")
	cmd.Flags().StringSliceVar(&acks, "ack", nil, "acknowledge a warning as TYPE:item, e.g. PSP_NOT_SUPPORTED:acme (repeatable)")
	cmd.Flags().BoolVar(&ackAll, "ack-all", false, "acknowledge every warning the preview reports")
	return cmd
}

func parseAcks(raw []string) ([]domain.TransitionWarning, error) {
	out := make([]domain.TransitionWarning, 0, len(raw))
	for _, r := range raw {
		typ, item, ok := strings.Cut(r, ":")
		if !ok || strings.TrimSpace(item) == "" {
			return nil, fmt.Errorf("--ack %q: expected TYPE:item", r)
		}
		w := domain.TransitionWarning{Type: domain.WarningType(strings.ToUpper(strings.TrimSpace(typ)))}
		switch w.Type {
		case domain.WarningPspNotSupported:
			w.ProcessorID = strings.TrimSpace(item)
		case domain.WarningPaymentMethodNotSupported:
			w.PaymentMethod = strings.TrimSpace(item)
		default:
			return nil, fmt.Errorf("--ack %q: unknown warning type", r)
		}
		out = append(out, w)
	}
	return out, nil
}
