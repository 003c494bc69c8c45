package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nexuscrm/nexus/pkg/domain"
)

func (s *Store) GetProcessors(ctx context.Context, ids []string) (map[string]domain.PlatformProcessor, error) {
	return getProcessors(ctx, s.DB, ids)
}

func (s *Store) ListProcessorsByStatus(ctx context.Context, status domain.PlatformStatus) ([]domain.PlatformProcessor, error) {
	return listProcessorsByStatus(ctx, s.DB, status)
}

func (s *Store) ListCountryFeatures(ctx context.Context, processorIDs []string) ([]domain.CountryProcessorFeature, error) {
	return listCountryFeatures(ctx, s.DB, processorIDs)
}

// The tx variants let an execute read the catalog on the connection it already holds.

func (t *txStore) GetProcessors(ctx context.Context, ids []string) (map[string]domain.PlatformProcessor, error) {
	return getProcessors(ctx, t.tx, ids)
}

func (t *txStore) ListProcessorsByStatus(ctx context.Context, status domain.PlatformStatus) ([]domain.PlatformProcessor, error) {
	return listProcessorsByStatus(ctx, t.tx, status)
}

func (t *txStore) ListCountryFeatures(ctx context.Context, processorIDs []string) ([]domain.CountryProcessorFeature, error) {
	return listCountryFeatures(ctx, t.tx, processorIDs)
}

func getProcessors(ctx context.Context, q querier, ids []string) (map[string]domain.PlatformProcessor, error) {
	out := map[string]domain.PlatformProcessor{}
	if len(ids) == 0 {
		return out, nil
	}
	lowered := make([]string, 0, len(ids))
	for _, id := range ids {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(id)))
	}
	rows, err := q.Query(ctx, `
SELECT processor_id,name,status,payouts,recurring,refunds,crypto,updated_at
FROM platform_processors
WHERE lower(processor_id) = ANY($1)
`, lowered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProcessor(rows)
		if err != nil {
			return nil, err
		}
		out[p.ProcessorID] = p
	}
	return out, rows.Err()
}

func listProcessorsByStatus(ctx context.Context, q querier, status domain.PlatformStatus) ([]domain.PlatformProcessor, error) {
	rows, err := q.Query(ctx, `
SELECT processor_id,name,status,payouts,recurring,refunds,crypto,updated_at
FROM platform_processors
WHERE status=$1
ORDER BY processor_id ASC
`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.PlatformProcessor{}
	for rows.Next() {
		p, err := scanProcessor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func listCountryFeatures(ctx context.Context, q querier, processorIDs []string) ([]domain.CountryProcessorFeature, error) {
	out := []domain.CountryProcessorFeature{}
	if len(processorIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
SELECT processor_id,country,supported_methods,payouts,recurring,refunds,crypto,status
FROM country_processor_features
WHERE processor_id = ANY($1)
ORDER BY processor_id ASC, country ASC
`, processorIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f domain.CountryProcessorFeature
		var status string
		if err := rows.Scan(&f.ProcessorID, &f.Country, &f.SupportedMethods, &f.Capabilities.Payouts, &f.Capabilities.Recurring,
			&f.Capabilities.Refunds, &f.Capabilities.Crypto, &status); err != nil {
			return nil, err
		}
		f.Status = domain.PlatformStatus(status)
		out = append(out, f)
	}
	return out, rows.Err()
}

type processorScanner interface {
	Scan(dest ...any) error
}

func scanProcessor(row processorScanner) (domain.PlatformProcessor, error) {
	var p domain.PlatformProcessor
	var status string
	err := row.Scan(&p.ProcessorID, &p.Name, &status, &p.Capabilities.Payouts, &p.Capabilities.Recurring,
		&p.Capabilities.Refunds, &p.Capabilities.Crypto, &p.UpdatedAt)
	p.Status = domain.PlatformStatus(status)
	return p, err
}

// CatalogFile is the YAML layout accepted by ImportCatalog.
type CatalogFile struct {
	Processors []domain.PlatformProcessor       `yaml:"processors"`
	Features   []domain.CountryProcessorFeature `yaml:"features"`
}

// ParseCatalog decodes and validates a catalog document. Unknown keys are rejected.
func ParseCatalog(r io.Reader) (CatalogFile, error) {
	var c CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return CatalogFile{}, fmt.Errorf("decode catalog: %w", err)
	}
	known := map[string]bool{}
	for i, p := range c.Processors {
		if strings.TrimSpace(p.ProcessorID) == "" {
			return CatalogFile{}, fmt.Errorf("processors[%d]: id is required", i)
		}
		if !p.Status.Valid() {
			return CatalogFile{}, fmt.Errorf("processor %s: invalid status %q", p.ProcessorID, p.Status)
		}
		if p.Name == "" {
			c.Processors[i].Name = p.ProcessorID
		}
		known[p.ProcessorID] = true
	}
	for i, f := range c.Features {
		if !known[f.ProcessorID] {
			return CatalogFile{}, fmt.Errorf("features[%d]: unknown processor %q", i, f.ProcessorID)
		}
		if strings.TrimSpace(f.Country) == "" {
			return CatalogFile{}, fmt.Errorf("features[%d]: country is required", i)
		}
		if f.Status != domain.PlatformNotSupported && f.Status != domain.PlatformInProgress && f.Status != domain.PlatformLive {
			return CatalogFile{}, fmt.Errorf("features[%d]: invalid status %q", i, f.Status)
		}
		c.Features[i].Country = strings.ToUpper(strings.TrimSpace(f.Country))
		c.Features[i].SupportedMethods = domain.MergeArrayValues(nil, f.SupportedMethods)
	}
	return c, nil
}

// ImportCatalog upserts every processor and feature in one transaction. Rows absent
// from the file are left alone.
func (s *Store) ImportCatalog(ctx context.Context, c CatalogFile) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range c.Processors {
		_, err := tx.Exec(ctx, `
INSERT INTO platform_processors(processor_id,name,status,payouts,recurring,refunds,crypto,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,now())
ON CONFLICT (processor_id) DO UPDATE SET
  name=EXCLUDED.name, status=EXCLUDED.status, payouts=EXCLUDED.payouts,
  recurring=EXCLUDED.recurring, refunds=EXCLUDED.refunds, crypto=EXCLUDED.crypto, updated_at=now()
`, p.ProcessorID, p.Name, string(p.Status), p.Capabilities.Payouts, p.Capabilities.Recurring, p.Capabilities.Refunds, p.Capabilities.Crypto)
		if err != nil {
			return fmt.Errorf("upsert processor %s: %w", p.ProcessorID, err)
		}
	}
	for _, f := range c.Features {
		_, err := tx.Exec(ctx, `
INSERT INTO country_processor_features(processor_id,country,supported_methods,payouts,recurring,refunds,crypto,status)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (processor_id,country) DO UPDATE SET
  supported_methods=EXCLUDED.supported_methods, payouts=EXCLUDED.payouts, recurring=EXCLUDED.recurring,
  refunds=EXCLUDED.refunds, crypto=EXCLUDED.crypto, status=EXCLUDED.status
`, f.ProcessorID, f.Country, nonNil(f.SupportedMethods), f.Capabilities.Payouts, f.Capabilities.Recurring, f.Capabilities.Refunds, f.Capabilities.Crypto, string(f.Status))
		if err != nil {
			return fmt.Errorf("upsert feature %s/%s: %w", f.ProcessorID, f.Country, err)
		}
	}
	return tx.Commit(ctx)
}
