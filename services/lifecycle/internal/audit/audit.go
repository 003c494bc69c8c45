// Package audit writes append-only change records for merchant data.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nexuscrm/nexus/pkg/domain"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx, so entries can join the
// caller's transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Writer is the write-only surface consumers of the audit trail depend on.
type Writer interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) (string, error)
}

func Validate(e domain.AuditLogEntry) error {
	if strings.TrimSpace(e.MerchantID) == "" {
		return fmt.Errorf("audit: merchant_id is required")
	}
	if strings.TrimSpace(e.TargetTable) == "" || strings.TrimSpace(e.TargetID) == "" {
		return fmt.Errorf("audit: target_table and target_id are required")
	}
	switch e.ChangeType {
	case domain.ChangeCreate, domain.ChangeUpdate, domain.ChangeStageChange:
	default:
		return fmt.Errorf("audit: invalid change_type %q", e.ChangeType)
	}
	if !e.ActorType.Valid() {
		return fmt.Errorf("audit: invalid actor_type %q", e.ActorType)
	}
	return nil
}

// Write inserts e and returns its id.
func Write(ctx context.Context, q Querier, e domain.AuditLogEntry) (string, error) {
	if err := Validate(e); err != nil {
		return "", err
	}
	oldJSON, err := json.Marshal(e.OldValue)
	if err != nil {
		return "", err
	}
	newJSON, err := json.Marshal(e.NewValue)
	if err != nil {
		return "", err
	}
	id := e.AuditID
	if id == "" {
		id = "aud_" + uuid.NewString()
	}
	var out string
	err = q.QueryRow(ctx, `
INSERT INTO audit_log_entries(audit_id,merchant_id,target_table,target_id,target_field,change_type,old_value,new_value,actor_type,actor_id,source_type,source_id,reason)
VALUES($1,$2,$3,$4,$5,$6,$7::jsonb,$8::jsonb,$9,$10,$11,$12,$13)
RETURNING audit_id
`, id, e.MerchantID, e.TargetTable, e.TargetID, nullable(e.TargetField), string(e.ChangeType), string(oldJSON), string(newJSON),
		string(e.ActorType), nullable(e.ActorID), nullable(e.SourceType), nullable(e.SourceID), nullable(e.Reason)).Scan(&out)
	if err != nil {
		return "", err
	}
	return out, nil
}

// StageChange builds the entry recorded when a merchant's lifecycle stage moves.
func StageChange(merchantID string, from, to domain.Stage, actor domain.Actor, transitionID string) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		MerchantID:  merchantID,
		TargetTable: "merchants",
		TargetID:    merchantID,
		TargetField: "lifecycle_stage",
		ChangeType:  domain.ChangeStageChange,
		OldValue:    string(from),
		NewValue:    string(to),
		ActorType:   domain.ActorUser,
		ActorID:     actor.ID,
		SourceType:  "stage_transition",
		SourceID:    transitionID,
	}
}

// FieldUpdate builds the entry for one changed field of a merchant-owned row.
func FieldUpdate(merchantID, table, targetID, field string, oldValue, newValue any, actor domain.Actor) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		MerchantID:  merchantID,
		TargetTable: table,
		TargetID:    targetID,
		TargetField: field,
		ChangeType:  domain.ChangeUpdate,
		OldValue:    oldValue,
		NewValue:    newValue,
		ActorType:   actor.Type,
		ActorID:     actor.ID,
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
