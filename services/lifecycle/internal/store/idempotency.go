package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/nexuscrm/nexus/services/lifecycle/internal/idempotency"
)

func (s *Store) GetIdempotencyRecord(ctx context.Context, actorID, idempotencyKey, endpoint string) (idempotency.Record, bool, error) {
	var rec idempotency.Record
	var body []byte
	err := s.DB.QueryRow(ctx, `
SELECT request_fingerprint,response_status,response_body
FROM idempotency_records
WHERE actor_id=$1 AND idempotency_key=$2 AND endpoint=$3
`, actorID, idempotencyKey, endpoint).Scan(&rec.Fingerprint, &rec.Status, &body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, err
	}
	rec.Body = body
	return rec, true, nil
}

// SaveIdempotencyRecord keeps the first response stored for a key.
func (s *Store) SaveIdempotencyRecord(ctx context.Context, actorID, idempotencyKey, endpoint string, rec idempotency.Record) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO idempotency_records(actor_id,idempotency_key,endpoint,request_fingerprint,response_status,response_body)
VALUES($1,$2,$3,$4,$5,$6::jsonb)
ON CONFLICT (actor_id,idempotency_key,endpoint) DO NOTHING
`, actorID, idempotencyKey, endpoint, rec.Fingerprint, rec.Status, string(rec.Body))
	return err
}
