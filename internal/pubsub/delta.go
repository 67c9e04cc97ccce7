package pubsub

import (
	"encoding/json"
	"reflect"
)

// deepEqualJSON compares two decoded JSON documents (as produced by
// json.Unmarshal into `any`) for semantic equality, treating numbers,
// object key order, and map/slice nilness the way JSON equality should.
func deepEqualJSON(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// deltaOp describes a single top-level key mutation between an old and
// new JSON object.
type deltaOp struct {
	Op    string          `json:"op"` // "set" or "remove"
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// computeDelta produces a structural delta from `from` to `to`, modeled on
// the original implementation's delta(old, new, max_size) helper (see
// SPEC_FULL.md supplement 4 and
// _examples/original_source/source/pubsub/node.cpp's node::update). Only
// top-level JSON-object keys are diffed; if either side isn't a JSON
// object, or the encoded delta would exceed budget bytes, computeDelta
// reports ok=false and the caller falls back to storing no delta at all
// (the version still advances).
func computeDelta(from, to json.RawMessage, budget int) (encoded []byte, ok bool, err error) {
	fromObj, fromIsObj := decodeObject(from)
	toObj, toIsObj := decodeObject(to)
	if !fromIsObj || !toIsObj {
		return nil, false, nil
	}

	var ops []deltaOp
	for key, toVal := range toObj {
		fromVal, existed := fromObj[key]
		if !existed || !deepEqualJSON(decodeAny(fromVal), decodeAny(toVal)) {
			ops = append(ops, deltaOp{Op: "set", Key: key, Value: toVal})
		}
	}
	for key := range fromObj {
		if _, stillPresent := toObj[key]; !stillPresent {
			ops = append(ops, deltaOp{Op: "remove", Key: key})
		}
	}

	// Keep delta output deterministic for tests despite Go's randomized
	// map iteration order.
	sortDeltaOps(ops)

	buf, merr := json.Marshal(ops)
	if merr != nil {
		return nil, false, merr
	}
	if len(buf) > budget {
		return nil, false, nil
	}
	return buf, true, nil
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func decodeAny(raw json.RawMessage) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

func sortDeltaOps(ops []deltaOp) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && ops[j].Key < ops[j-1].Key; j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
}

// ApplyDelta applies a delta produced by computeDelta to a JSON object,
// returning the resulting object. It exists so tests can exercise the
// "delta correctness" property from spec §8: applying the retained deltas
// from any version in the ring back to the base value reproduces the
// current value exactly.
func ApplyDelta(base json.RawMessage, delta json.RawMessage) (json.RawMessage, error) {
	obj, isObj := decodeObject(base)
	if !isObj {
		obj = map[string]json.RawMessage{}
	}
	var ops []deltaOp
	if err := json.Unmarshal(delta, &ops); err != nil {
		return nil, err
	}
	for _, op := range ops {
		switch op.Op {
		case "set":
			obj[op.Key] = op.Value
		case "remove":
			delete(obj, op.Key)
		}
	}
	return json.Marshal(obj)
}
