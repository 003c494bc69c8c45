// Package idempotency replays stored responses for execute calls that carry an
// Idempotency-Key header.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/nexuscrm/nexus/pkg/canonhash"
)

// ErrKeyReused is returned when a key is presented again with a different request body.
var ErrKeyReused = errors.New("idempotency key reused with a different request")

type ActorContext struct {
	ActorID        string
	IdempotencyKey string
}

type Record struct {
	Fingerprint string
	Status      int
	Body        json.RawMessage
}

type Store interface {
	GetIdempotencyRecord(ctx context.Context, actorID, idempotencyKey, endpoint string) (Record, bool, error)
	SaveIdempotencyRecord(ctx context.Context, actorID, idempotencyKey, endpoint string, rec Record) error
}

// Fingerprint identifies a request by its target resource and the canonical form of
// its JSON body. Bodies that are not valid JSON are hashed byte for byte.
func Fingerprint(target string, body []byte) string {
	h, err := canonhash.SumJSON(body)
	if err != nil {
		raw := sha256.Sum256(body)
		h = hex.EncodeToString(raw[:])
	}
	sum := sha256.Sum256([]byte(target + "\n" + h))
	return hex.EncodeToString(sum[:])
}

func Replay(ctx context.Context, st Store, actor ActorContext, endpoint, fingerprint string) (Record, bool, error) {
	if actor.IdempotencyKey == "" {
		return Record{}, false, nil
	}
	rec, found, err := st.GetIdempotencyRecord(ctx, actor.ActorID, actor.IdempotencyKey, endpoint)
	if err != nil {
		return Record{}, false, err
	}
	if !found {
		return Record{}, false, nil
	}
	if rec.Fingerprint != "" && fingerprint != "" && rec.Fingerprint != fingerprint {
		return Record{}, false, ErrKeyReused
	}
	return rec, true, nil
}

func Save(ctx context.Context, st Store, actor ActorContext, endpoint, fingerprint string, status int, response any) error {
	if actor.IdempotencyKey == "" {
		return nil
	}
	body, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return st.SaveIdempotencyRecord(ctx, actor.ActorID, actor.IdempotencyKey, endpoint, Record{
		Fingerprint: fingerprint,
		Status:      status,
		Body:        body,
	})
}
