package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/nexuscrm/nexus/pkg/domain"
)

type fakeRow struct {
	id  string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.id
	return nil
}

type fakeQuerier struct {
	sql  string
	args []any
	err  error
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.sql = sql
	f.args = args
	return fakeRow{id: args[0].(string), err: f.err}
}

func TestWriteStageChange(t *testing.T) {
	q := &fakeQuerier{}
	entry := StageChange("mrc_1", domain.StageScoping, domain.StageImplementing, domain.Actor{ID: "usr_1", Type: domain.ActorUser}, "stt_1")
	id, err := Write(context.Background(), q, entry)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.HasPrefix(id, "aud_") {
		t.Fatalf("expected generated aud_ id, got %q", id)
	}
	if !strings.Contains(q.sql, "INSERT INTO audit_log_entries") {
		t.Fatalf("unexpected sql: %s", q.sql)
	}
	if q.args[5] != "STAGE_CHANGE" || q.args[6] != `"SCOPING"` || q.args[7] != `"IMPLEMENTING"` || q.args[8] != "USER" {
		t.Fatalf("unexpected args: %#v", q.args)
	}
}

func TestWriteRejectsInvalidEntry(t *testing.T) {
	q := &fakeQuerier{}
	_, err := Write(context.Background(), q, domain.AuditLogEntry{MerchantID: "mrc_1", TargetTable: "merchants", TargetID: "mrc_1", ChangeType: "DELETE", ActorType: domain.ActorUser})
	if err == nil {
		t.Fatalf("expected invalid change_type error")
	}
	if q.sql != "" {
		t.Fatalf("expected no query for invalid entry")
	}
	_, err = Write(context.Background(), q, domain.AuditLogEntry{MerchantID: "mrc_1", TargetTable: "merchants", TargetID: "mrc_1", ChangeType: domain.ChangeUpdate, ActorType: "ROBOT"})
	if err == nil {
		t.Fatalf("expected invalid actor_type error")
	}
}

func TestWritePropagatesStoreError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("db down")}
	entry := FieldUpdate("mrc_1", "scope_documents", "scp_1", "psps", nil, []string{"stripe"}, domain.Actor{ID: "ai_1", Type: domain.ActorAI})
	if _, err := Write(context.Background(), q, entry); err == nil {
		t.Fatalf("expected error")
	}
}
