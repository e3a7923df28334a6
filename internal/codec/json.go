package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
)

// CanonicalJSON renders the decoded arguments as a JSON object with
// sorted keys and integers encoded as decimal strings, so that
// replaying the same log byte-for-byte reproduces the same event_data
// column (spec.md §4.2).
func (a OrderedArgs) CanonicalJSON() ([]byte, error) {
	m, err := a.StringMap()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, fmt.Errorf("codec: marshal %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// StringMap converts decoded values into JSON-safe scalars: *big.Int
// becomes a decimal string, everything else passes through unchanged.
func (a OrderedArgs) StringMap() (map[string]any, error) {
	out := make(map[string]any, len(a.names))
	for _, name := range a.names {
		v, ok := a.values[name]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case *big.Int:
			out[name] = t.String()
		default:
			out[name] = t
		}
	}
	return out, nil
}
