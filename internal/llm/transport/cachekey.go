package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CurrentCanonicalVersion defines the canonicalization format version.
// Increment when canonicalization changes so stale shared-cache entries miss.
const CurrentCanonicalVersion = "v1"

// CanonicalKey is the value-equality shape of a cacheable request: two
// requests share a cache slot iff their canonical serializations match.
type CanonicalKey struct {
	Messages   []CanonicalMessage `json:"messages"`
	Model      string             `json:"model"`
	Parameters Parameters         `json:"parameters"`
	Schema     any                `json:"schema,omitempty"`
	Version    string             `json:"version"`
}

// CanonicalMessage is a role/content pair. Structured parts are kept in order.
type CanonicalMessage struct {
	Role    Role          `json:"role"`
	Content string        `json:"content"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// BuildCanonicalKey extracts the cache-relevant fields of req. Message text
// is kept verbatim: distinct whitespace is a distinct prompt.
func BuildCanonicalKey(req *Request) (*CanonicalKey, error) {
	key := &CanonicalKey{
		Messages:   make([]CanonicalMessage, len(req.Messages)),
		Model:      req.Model,
		Parameters: req.Parameters,
		Version:    CurrentCanonicalVersion,
	}

	for i, m := range req.Messages {
		key.Messages[i] = CanonicalMessage{Role: m.Role, Content: m.Content, Parts: m.Parts}
	}

	if len(req.Schema) > 0 {
		var schema any
		if err := json.Unmarshal(req.Schema, &schema); err != nil {
			return nil, fmt.Errorf("schema is not valid JSON: %w", err)
		}
		key.Schema = schema
	}

	return key, nil
}

// Hash returns the SHA-256 hex digest of the canonical serialization.
func (k *CanonicalKey) Hash() (string, error) {
	b, err := stableJSON(k)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical key: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// CacheKey builds the canonical key for req and hashes it.
func CacheKey(req *Request) (string, error) {
	key, err := BuildCanonicalKey(req)
	if err != nil {
		return "", err
	}
	return key.Hash()
}

// stableJSON produces deterministic JSON: struct fields in declaration order
// and every object key sorted, however the caller's maps were built.
func stableJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}

	return json.Marshal(sortKeys(normalized))
}

// sortKeys walks decoded JSON and rebuilds objects with sorted keys.
// encoding/json already sorts map keys on output; rebuilding keeps the
// ordering explicit for nested arrays of objects.
func sortKeys(v any) any {
	switch v := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sorted := make(map[string]any, len(v))
		for _, k := range keys {
			sorted[k] = sortKeys(v[k])
		}
		return sorted

	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = sortKeys(elem)
		}
		return out

	default:
		return v
	}
}
