package referral

import (
	"bytes"
	"encoding/json"
)

// Kind identifies which response shape a referral payload arrived in.
type Kind int

const (
	KindUnknown Kind = iota
	KindFlatArray
	KindWrappedArray
	KindWrappedTree
	KindDirectTree
)

func (k Kind) String() string {
	switch k {
	case KindFlatArray:
		return "flat_array"
	case KindWrappedArray:
		return "wrapped_array"
	case KindWrappedTree:
		return "wrapped_tree"
	case KindDirectTree:
		return "direct_tree"
	default:
		return "unknown"
	}
}

// RawRecord is a single referral record as the backend sent it.
type RawRecord map[string]any

// Input is a payload reduced to one flat, ordered sequence of raw records.
// Nested shapes are flattened in pre-order and children that carry no sponsor
// field inherit their parent's id.
type Input struct {
	Kind    Kind
	Records []RawRecord
}

var (
	childrenKeys = []string{"children", "hijos"}
	sponsorKeys  = []string{"sponsor_id", "parent_id", "patrocinador_id", "sponsorId"}
	idKeys       = []string{"usuario_id", "id", "user_id"}
)

// Decode parses a JSON payload and discriminates its shape. Invalid JSON or an
// unrecognised shape yields an empty Input of KindUnknown.
func Decode(payload []byte) Input {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Input{Kind: KindUnknown}
	}
	return Discriminate(v)
}

// Discriminate inspects an already decoded JSON value.
func Discriminate(v any) Input {
	switch t := v.(type) {
	case []any:
		return Input{Kind: KindFlatArray, Records: flatten(t, nil)}
	case map[string]any:
		if arr, ok := t["referidos"].([]any); ok {
			return Input{Kind: KindWrappedArray, Records: flatten(arr, nil)}
		}
		if data, ok := t["data"]; ok {
			return discriminateData(data)
		}
		if hasAny(t, idKeys) {
			return Input{Kind: KindDirectTree, Records: flatten([]any{t}, nil)}
		}
	}
	return Input{Kind: KindUnknown}
}

func discriminateData(data any) Input {
	switch d := data.(type) {
	case []any:
		return Input{Kind: KindWrappedArray, Records: flatten(d, nil)}
	case map[string]any:
		switch arbol := d["arbol"].(type) {
		case map[string]any:
			return Input{Kind: KindWrappedTree, Records: flatten([]any{arbol}, nil)}
		case []any:
			return Input{Kind: KindWrappedTree, Records: flatten(arbol, nil)}
		}
		if arr, ok := d["referidos"].([]any); ok {
			return Input{Kind: KindWrappedArray, Records: flatten(arr, nil)}
		}
	}
	return Input{Kind: KindUnknown}
}

func flatten(nodes []any, parentID any) []RawRecord {
	out := make([]RawRecord, 0, len(nodes))
	for _, n := range nodes {
		m, ok := n.(map[string]any)
		if !ok {
			continue
		}

		rec := make(RawRecord, len(m))
		var children []any
		for k, v := range m {
			if isChildrenKey(k) {
				if arr, ok := v.([]any); ok {
					children = append(children, arr...)
				}
				continue
			}
			rec[k] = v
		}
		if parentID != nil && !hasAny(m, sponsorKeys) {
			rec["sponsor_id"] = parentID
		}
		out = append(out, rec)

		if len(children) > 0 {
			out = append(out, flatten(children, firstOf(m, idKeys))...)
		}
	}
	return out
}

func isChildrenKey(k string) bool {
	for _, c := range childrenKeys {
		if k == c {
			return true
		}
	}
	return false
}

func hasAny(m map[string]any, keys []string) bool {
	return firstOf(m, keys) != nil
}

func firstOf(m map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
