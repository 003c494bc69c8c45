// Package canonhash fingerprints JSON values so that key order and whitespace do
// not change the result.
package canonhash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SumObject hashes the json.Marshal encoding of v. Map keys are emitted sorted, so
// equal maps hash equally.
func SumObject(v any) (string, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), b, nil
}

// SumJSON decodes raw and hashes its canonical form. Numbers keep their literal
// spelling. An empty document hashes like JSON null.
func SumJSON(raw []byte) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		h, _, err := SumObject(nil)
		return h, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	h, _, err := SumObject(v)
	return h, err
}
