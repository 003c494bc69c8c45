package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/audit"
)

func (t *txStore) InsertStageTransition(ctx context.Context, st domain.StageTransition) error {
	var snapshot any
	if st.ScopeSnapshot != nil {
		b, err := json.Marshal(st.ScopeSnapshot)
		if err != nil {
			return fmt.Errorf("encode scope snapshot: %w", err)
		}
		snapshot = string(b)
	}
	warnings := st.WarningsAcknowledged
	if warnings == nil {
		warnings = []domain.TransitionWarning{}
	}
	wb, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("encode acknowledged warnings: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO stage_transitions(transition_id,merchant_id,from_stage,to_stage,status,transitioned_by,scope_snapshot,user_feedback,warnings_acknowledged,rejection_code,rejection_reason,created_at)
VALUES($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9::jsonb,$10,$11,$12)
`, st.TransitionID, st.MerchantID, string(st.FromStage), string(st.ToStage), string(st.Status), st.TransitionedBy,
		snapshot, nullable(st.UserFeedback), string(wb), nullable(string(st.RejectionCode)), nullable(st.RejectionReason), createdAt(st.CreatedAt))
	return err
}

// ListTransitions returns the merchant's history, newest first.
func (s *Store) ListTransitions(ctx context.Context, merchantID string) ([]domain.StageTransition, error) {
	rows, err := s.DB.Query(ctx, `
SELECT transition_id,merchant_id,from_stage,to_stage,status,transitioned_by,scope_snapshot,user_feedback,warnings_acknowledged,rejection_code,rejection_reason,created_at
FROM stage_transitions
WHERE merchant_id=$1
ORDER BY created_at DESC, transition_id DESC
`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.StageTransition{}
	for rows.Next() {
		var st domain.StageTransition
		var from, to, status string
		var snapshot, warnings []byte
		var feedback, code, reason *string
		if err := rows.Scan(&st.TransitionID, &st.MerchantID, &from, &to, &status, &st.TransitionedBy,
			&snapshot, &feedback, &warnings, &code, &reason, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.FromStage = domain.Stage(from)
		st.ToStage = domain.Stage(to)
		st.Status = domain.TransitionStatus(status)
		st.UserFeedback = deref(feedback)
		st.RejectionCode = domain.RejectionCode(deref(code))
		st.RejectionReason = deref(reason)
		if len(snapshot) > 0 {
			var doc domain.ScopeDocument
			if err := json.Unmarshal(snapshot, &doc); err != nil {
				return nil, fmt.Errorf("decode scope snapshot %s: %w", st.TransitionID, err)
			}
			st.ScopeSnapshot = &doc
		}
		st.WarningsAcknowledged = []domain.TransitionWarning{}
		if len(warnings) > 0 {
			if err := json.Unmarshal(warnings, &st.WarningsAcknowledged); err != nil {
				return nil, fmt.Errorf("decode acknowledged warnings %s: %w", st.TransitionID, err)
			}
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, e domain.AuditLogEntry) (string, error) {
	return audit.Write(ctx, s.DB, e)
}

func (t *txStore) CreateAuditLog(ctx context.Context, e domain.AuditLogEntry) (string, error) {
	return audit.Write(ctx, t.tx, e)
}

// ListAuditLog returns the merchant's audit trail, oldest first.
func (s *Store) ListAuditLog(ctx context.Context, merchantID string) ([]domain.AuditLogEntry, error) {
	rows, err := s.DB.Query(ctx, `
SELECT audit_id,merchant_id,target_table,target_id,target_field,change_type,old_value,new_value,actor_type,actor_id,source_type,source_id,reason,created_at
FROM audit_log_entries
WHERE merchant_id=$1
ORDER BY created_at ASC, audit_id ASC
`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.AuditLogEntry{}
	for rows.Next() {
		var e domain.AuditLogEntry
		var field, actorID, sourceType, sourceID, reason *string
		var changeType, actorType string
		var oldV, newV []byte
		if err := rows.Scan(&e.AuditID, &e.MerchantID, &e.TargetTable, &e.TargetID, &field, &changeType, &oldV, &newV,
			&actorType, &actorID, &sourceType, &sourceID, &reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TargetField = deref(field)
		e.ChangeType = domain.ChangeType(changeType)
		e.ActorType = domain.ActorType(actorType)
		e.ActorID = deref(actorID)
		e.SourceType = deref(sourceType)
		e.SourceID = deref(sourceID)
		e.Reason = deref(reason)
		if len(oldV) > 0 {
			e.OldValue = json.RawMessage(oldV)
		}
		if len(newV) > 0 {
			e.NewValue = json.RawMessage(newV)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
