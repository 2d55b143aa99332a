// Package cache implements the content-addressed intermediate cache shared
// by the audio and video phases. Entries are keyed by a SHA-256 digest of
// their canonicalized generation parameters, so any parameter change yields
// a new file and stale outputs are never reused.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Key is a set of generation parameters identifying one cached artifact.
// Values must be JSON-serializable.
type Key map[string]any

// Hash returns the hex SHA-256 digest of the canonical JSON encoding. Map
// keys are sorted at every level so logically equal keys always hash the
// same.
func (k Key) Hash() (string, error) {
	canon, err := canonicalize(map[string]any(k))
	if err != nil {
		return "", fmt.Errorf("canonicalizing cache key: %w", err)
	}
	data, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("encoding cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize rebuilds nested maps with sorted keys. encoding/json already
// sorts map[string]any keys, but values decoded from YAML may carry
// map[any]any which it rejects, so normalize those too.
func canonicalize(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c, err := canonicalize(val[k])
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			s, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string map key %v", k)
			}
			c, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			out[s] = c
		}
		return canonicalize(out)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	default:
		return v, nil
	}
}
