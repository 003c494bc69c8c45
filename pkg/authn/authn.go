// Package authn resolves operator bearer tokens to actors. Tokens are stored only as
// sha256 hashes.
package authn

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/nexuscrm/nexus/pkg/domain"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	ScopeRead           = "lifecycle:read"
	ScopeTransition     = "lifecycle:transition"
	ScopeWriteScope     = "scope:write"
	ScopeImplementation = "implementation:write"
)

// AllScopes is granted to credentials minted without an explicit scope list.
var AllScopes = []string{ScopeRead, ScopeTransition, ScopeWriteScope, ScopeImplementation}

type Identity struct {
	CredentialID string
	Actor        domain.Actor
	Scopes       []string
}

// CredentialStore returns ErrUnauthorized for unknown or revoked hashes.
type CredentialStore interface {
	LookupOperatorCredential(ctx context.Context, tokenHash string) (*Identity, error)
}

// FailureRecorder persists rejected authentication attempts. Implementations must not
// fail the request.
type FailureRecorder interface {
	RecordAuthFailure(ctx context.Context, endpoint, actorID, reason string)
}

func Authenticate(ctx context.Context, st CredentialStore, authorization string) (*Identity, error) {
	token, ok := parseBearerToken(authorization)
	if !ok {
		return nil, ErrUnauthorized
	}
	id, err := st.LookupOperatorCredential(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if id == nil || !id.Actor.Type.Valid() || strings.TrimSpace(id.Actor.ID) == "" {
		return nil, ErrUnauthorized
	}
	return id, nil
}

func HasScope(scopes []string, required string) bool {
	for _, s := range scopes {
		if s == required {
			return true
		}
	}
	return false
}

// NewToken returns a fresh operator token and the hash to store for it.
func NewToken() (token, tokenHash string, err error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", "", err
	}
	token = "nxs_" + hex.EncodeToString(b[:])
	return token, HashToken(token), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}

func parseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
