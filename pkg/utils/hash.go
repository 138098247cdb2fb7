package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// HashState creates a deterministic fingerprint for a reasoning state.
// String values are NFC-normalized first so visually identical thoughts hash
// equal regardless of Unicode composition. Map keys are sorted by the JSON
// encoder, making the digest stable across runs.
func HashState(state map[string]interface{}) string {
	canonical := NormalizeValue(state)

	data, err := json.Marshal(canonical)
	if err != nil {
		// Fall back to the formatted representation for unmarshalable values
		data = []byte(fmt.Sprintf("%#v", canonical))
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// NormalizeValue recursively NFC-normalizes all string content in a value.
// Non-string scalars pass through unchanged.
func NormalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[norm.NFC.String(k)] = NormalizeValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	default:
		return v
	}
}
