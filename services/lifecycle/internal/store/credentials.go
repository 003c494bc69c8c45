package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nexuscrm/nexus/pkg/authn"
	"github.com/nexuscrm/nexus/pkg/domain"
)

func (s *Store) LookupOperatorCredential(ctx context.Context, tokenHash string) (*authn.Identity, error) {
	var id authn.Identity
	var actorType string
	err := s.DB.QueryRow(ctx, `
SELECT credential_id,actor_id,actor_type,scopes
FROM operator_credentials
WHERE token_hash=$1
  AND revoked_at IS NULL
  AND (expires_at IS NULL OR expires_at > now())
`, tokenHash).Scan(&id.CredentialID, &id.Actor.ID, &actorType, &id.Scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authn.ErrUnauthorized
		}
		return nil, err
	}
	id.Actor.Type = domain.ActorType(actorType)
	return &id, nil
}

// CreateOperatorCredential stores only the token hash. An empty scope list grants
// every scope.
func (s *Store) CreateOperatorCredential(ctx context.Context, actor domain.Actor, tokenHash string, scopes []string, expiresAt *time.Time) (string, error) {
	if strings.TrimSpace(actor.ID) == "" || !actor.Type.Valid() {
		return "", domain.NewValidationError("actor", "actor id and a valid actor type are required")
	}
	if len(scopes) == 0 {
		scopes = authn.AllScopes
	}
	id := "crd_" + uuid.NewString()
	_, err := s.DB.Exec(ctx, `
INSERT INTO operator_credentials(credential_id,actor_id,actor_type,token_hash,scopes,expires_at)
VALUES($1,$2,$3,$4,$5,$6)
`, id, actor.ID, string(actor.Type), tokenHash, scopes, expiresAt)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) RevokeOperatorCredential(ctx context.Context, credentialID string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE operator_credentials SET revoked_at=now() WHERE credential_id=$1 AND revoked_at IS NULL`, credentialID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecordAuthFailure is best effort.
func (s *Store) RecordAuthFailure(ctx context.Context, endpoint, actorID, reason string) {
	_, _ = s.DB.Exec(ctx, `INSERT INTO auth_failures(endpoint,actor_id,reason) VALUES($1,$2,$3)`, endpoint, nullable(actorID), reason)
}
