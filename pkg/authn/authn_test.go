package authn

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nexuscrm/nexus/pkg/domain"
)

type fakeCredentials map[string]*Identity

func (f fakeCredentials) LookupOperatorCredential(ctx context.Context, tokenHash string) (*Identity, error) {
	id, ok := f[tokenHash]
	if !ok {
		return nil, ErrUnauthorized
	}
	return id, nil
}

func TestParseBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"bearer abc", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := parseBearerToken(tc.header)
		if got != tc.token || ok != tc.ok {
			t.Errorf("parseBearerToken(%q) = %q,%v want %q,%v", tc.header, got, ok, tc.token, tc.ok)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	token, hash, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if !strings.HasPrefix(token, "nxs_") || hash != HashToken(token) {
		t.Fatalf("unexpected token/hash pair %q %q", token, hash)
	}
	st := fakeCredentials{hash: {CredentialID: "cred_1", Actor: domain.Actor{ID: "usr_1", Type: domain.ActorUser}, Scopes: AllScopes}}

	id, err := Authenticate(context.Background(), st, "Bearer "+token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.Actor.ID != "usr_1" || !HasScope(id.Scopes, ScopeTransition) {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := Authenticate(context.Background(), st, "Bearer nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown token, got %v", err)
	}
	if _, err := Authenticate(context.Background(), st, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized without scheme, got %v", err)
	}
}

func TestAuthenticateRejectsIncompleteIdentity(t *testing.T) {
	st := fakeCredentials{HashToken("t"): {Actor: domain.Actor{ID: "usr_1", Type: "ROBOT"}}}
	if _, err := Authenticate(context.Background(), st, "Bearer t"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("expected no identity on empty context")
	}
	id := &Identity{Actor: domain.Actor{ID: "usr_1", Type: domain.ActorUser}}
	got, ok := FromContext(WithIdentity(context.Background(), id))
	if !ok || got != id {
		t.Fatalf("identity not carried through context")
	}
}
