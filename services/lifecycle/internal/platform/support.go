// Package platform checks a merchant's requested PSPs and payment methods against the
// platform catalog.
package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexuscrm/nexus/pkg/domain"
)

// Catalog is read-only reference data maintained outside this service.
type Catalog interface {
	// GetProcessors matches ids case-insensitively and keys the result by the
	// catalog's own id.
	GetProcessors(ctx context.Context, ids []string) (map[string]domain.PlatformProcessor, error)
	ListProcessorsByStatus(ctx context.Context, status domain.PlatformStatus) ([]domain.PlatformProcessor, error)
	ListCountryFeatures(ctx context.Context, processorIDs []string) ([]domain.CountryProcessorFeature, error)
}

type SupportRequest struct {
	Psps           []string `json:"psps"`
	PaymentMethods []string `json:"payment_methods"`
}

type SupportResult struct {
	FullySupported            bool                       `json:"fully_supported"`
	Warnings                  []domain.TransitionWarning `json:"warnings"`
	SupportedPsps             []string                   `json:"supported_psps"`
	UnsupportedPsps           []string                   `json:"unsupported_psps"`
	SupportedPaymentMethods   []string                   `json:"supported_payment_methods"`
	UnsupportedPaymentMethods []string                   `json:"unsupported_payment_methods"`
}

// PspSupported reports whether id was found LIVE by the check.
func (r SupportResult) PspSupported(id string) bool {
	return containsKey(r.SupportedPsps, id)
}

// PaymentMethodSupported compares case-insensitively.
func (r SupportResult) PaymentMethodSupported(method string) bool {
	return containsKey(r.SupportedPaymentMethods, method)
}

type Checker struct {
	catalog Catalog
}

func NewChecker(catalog Catalog) *Checker {
	return &Checker{catalog: catalog}
}

// Check never fails on unsupported items; it reports them as warnings. Only catalog
// read errors are returned.
func (c *Checker) Check(ctx context.Context, req SupportRequest) (SupportResult, error) {
	res := SupportResult{
		Warnings:                  []domain.TransitionWarning{},
		SupportedPsps:             []string{},
		UnsupportedPsps:           []string{},
		SupportedPaymentMethods:   []string{},
		UnsupportedPaymentMethods: []string{},
	}
	if err := c.checkPsps(ctx, dedupe(req.Psps), &res); err != nil {
		return SupportResult{}, err
	}
	if err := c.checkPaymentMethods(ctx, dedupe(req.PaymentMethods), &res); err != nil {
		return SupportResult{}, err
	}
	res.FullySupported = len(res.Warnings) == 0
	return res, nil
}

func (c *Checker) checkPsps(ctx context.Context, psps []string, res *SupportResult) error {
	if len(psps) == 0 {
		return nil
	}
	found, err := c.catalog.GetProcessors(ctx, psps)
	if err != nil {
		return fmt.Errorf("load processors: %w", err)
	}
	byKey := make(map[string]domain.PlatformProcessor, len(found))
	for id, p := range found {
		byKey[domain.NormalizeKey(id)] = p
	}
	for _, id := range psps {
		p, ok := byKey[domain.NormalizeKey(id)]
		switch {
		case !ok:
			res.UnsupportedPsps = append(res.UnsupportedPsps, id)
			res.Warnings = append(res.Warnings, domain.TransitionWarning{
				Type:        domain.WarningPspNotSupported,
				ProcessorID: id,
				Message:     fmt.Sprintf("PSP %s is not in platform", id),
			})
		case p.Status != domain.PlatformLive:
			res.UnsupportedPsps = append(res.UnsupportedPsps, id)
			res.Warnings = append(res.Warnings, domain.TransitionWarning{
				Type:        domain.WarningPspNotSupported,
				ProcessorID: id,
				Message:     fmt.Sprintf("PSP %s is %s", id, p.Status),
			})
		default:
			res.SupportedPsps = append(res.SupportedPsps, id)
		}
	}
	return nil
}

func (c *Checker) checkPaymentMethods(ctx context.Context, methods []string, res *SupportResult) error {
	if len(methods) == 0 {
		return nil
	}
	live, err := c.catalog.ListProcessorsByStatus(ctx, domain.PlatformLive)
	if err != nil {
		return fmt.Errorf("load live processors: %w", err)
	}
	if len(live) == 0 {
		for _, m := range methods {
			res.UnsupportedPaymentMethods = append(res.UnsupportedPaymentMethods, m)
			res.Warnings = append(res.Warnings, domain.TransitionWarning{
				Type:          domain.WarningPaymentMethodNotSupported,
				PaymentMethod: m,
				Message:       fmt.Sprintf("Payment method %s cannot be verified: no live PSPs on platform", m),
			})
		}
		return nil
	}
	ids := make([]string, 0, len(live))
	for _, p := range live {
		ids = append(ids, p.ProcessorID)
	}
	features, err := c.catalog.ListCountryFeatures(ctx, ids)
	if err != nil {
		return fmt.Errorf("load country features: %w", err)
	}
	offered := map[string]struct{}{}
	for _, f := range features {
		if f.Status != domain.PlatformLive {
			continue
		}
		for _, m := range f.SupportedMethods {
			offered[domain.NormalizeKey(m)] = struct{}{}
		}
	}
	for _, m := range methods {
		if _, ok := offered[domain.NormalizeKey(m)]; ok {
			res.SupportedPaymentMethods = append(res.SupportedPaymentMethods, m)
			continue
		}
		res.UnsupportedPaymentMethods = append(res.UnsupportedPaymentMethods, m)
		res.Warnings = append(res.Warnings, domain.TransitionWarning{
			Type:          domain.WarningPaymentMethodNotSupported,
			PaymentMethod: m,
			Message:       fmt.Sprintf("Payment method %s is not supported by any live PSP", m),
		})
	}
	return nil
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		k := domain.NormalizeKey(v)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsKey(list []string, v string) bool {
	k := domain.NormalizeKey(v)
	for _, x := range list {
		if domain.NormalizeKey(x) == k {
			return true
		}
	}
	return false
}
