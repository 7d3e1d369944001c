package model

import (
	"bytes"
	"encoding/json"
	"sort"
)

// object is a decoded JSON object that remembers its member order and the
// exact bytes of every member. A nil values map means the value was built in
// Go rather than decoded.
type object struct {
	keys   []string
	values map[string]json.RawMessage
}

// decodeObject splits data into its members. ok is false when data is valid
// JSON but not an object.
func decodeObject(data []byte) (obj object, ok bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return object{}, false, err
	}
	if d, isDelim := tok.(json.Delim); !isDelim || d != '{' {
		return object{}, false, nil
	}

	obj.values = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return object{}, false, err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return object{}, false, err
		}
		// later duplicates win but keep the first position
		if _, seen := obj.values[key]; !seen {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return object{}, false, err
	}
	return obj, true, nil
}

func (o object) decoded() bool {
	return o.values != nil
}

// stringField stores the member to emit for a string-valued field. A decoded
// member is re-emitted as it was, whatever its JSON type, as long as cur still
// equals what it decoded to. Members absent from a decoded object stay absent
// while cur is empty.
func (o object) stringField(out map[string]json.RawMessage, key, cur string) {
	raw, present := o.values[key]
	switch {
	case present && stringValue(raw) == cur:
		out[key] = raw
		return
	case !present && o.decoded() && cur == "":
		return
	}
	out[key], _ = json.Marshal(cur)
}

// encode writes members in the decoded order first, then known keys in the
// given order, then anything else sorted.
func (o object) encode(members map[string]json.RawMessage, known []string) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	written := make(map[string]bool, len(members))
	emit := func(key string) {
		raw, ok := members[key]
		if !ok || written[key] {
			return
		}
		if len(written) > 0 {
			buf.WriteByte(',')
		}
		written[key] = true
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
	}
	for _, k := range o.keys {
		emit(k)
	}
	for _, k := range known {
		emit(k)
	}
	rest := make([]string, 0, len(members))
	for k := range members {
		if !written[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		emit(k)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// stringValue decodes raw as a JSON string. Any other JSON type yields "".
func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func copyRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func equalRaw(a, b map[string]json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !bytes.Equal(v, w) {
			return false
		}
	}
	return true
}
