package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"
)

// ComputeRequestHash fingerprints a request as SHA-256(canonical_json(body) + method + path).
// Keys of JSON objects are ordered so that equivalent bodies hash the same.
func ComputeRequestHash(body json.RawMessage, method, path string) string {
	h := sha256.New()
	h.Write(canonicalJSON(body))
	h.Write([]byte(method))
	h.Write([]byte(path))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalJSON(data json.RawMessage) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return data
		}
		b, _ := json.Marshal(v)
		return b
	}
	out := []byte{'{'}
	for i, k := range slices.Sorted(maps.Keys(obj)) {
		if i > 0 {
			out = append(out, ',')
		}
		kb, _ := json.Marshal(k)
		out = append(out, kb...)
		out = append(out, ':')
		out = append(out, canonicalJSON(obj[k])...)
	}
	return append(out, '}')
}
