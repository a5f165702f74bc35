package graphapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind tags the type held by a Value.
type ValueKind int

const (
	KindRaw ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindLink
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindLink:
		return "link"
	}
	return "raw"
}

// Link references output slot Slot of node NodeID. In the API workflow
// format it is serialized as a two element array: ["4", 0].
type Link struct {
	NodeID string
	Slot   int
}

// Value is a node input. Inputs can be one of:
//
//	string
//	number (kept in its original textual form)
//	bool
//	link  [node-id, slot-index]
//	raw   anything else, passed through untouched
type Value struct {
	kind ValueKind
	str  string
	num  json.Number
	b    bool
	link Link
	raw  json.RawMessage
}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func FloatValue(f float64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(f, 'f', -1, 64))}
}

func IntValue(i int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(i, 10))}
}

func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func LinkValue(nodeID string, slot int) Value {
	return Value{kind: KindLink, link: Link{NodeID: nodeID, Slot: slot}}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if i, err := v.num.Int64(); err == nil {
		return i, true
	}
	f, err := v.num.Float64()
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsLink() (Link, bool) {
	return v.link, v.kind == KindLink
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindLink:
		return fmt.Sprintf("[%s, %d]", v.link.NodeID, v.link.Slot)
	}
	return string(v.raw)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.num), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindLink:
		return json.Marshal([]interface{}{v.link.NodeID, v.link.Slot})
	}
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty input value")
	}

	switch c := trimmed[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case c == 't' || c == 'f':
		var bv bool
		if err := json.Unmarshal(trimmed, &bv); err != nil {
			return err
		}
		*v = BoolValue(bv)
		return nil
	case c == '-' || (c >= '0' && c <= '9'):
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return err
		}
		*v = Value{kind: KindNumber, num: n}
		return nil
	case c == '[':
		if link, ok := parseLink(trimmed); ok {
			*v = Value{kind: KindLink, link: link}
			return nil
		}
	}

	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	*v = Value{kind: KindRaw, raw: raw}
	return nil
}

// parseLink recognizes ["node-id", slot-index].
func parseLink(b []byte) (Link, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil || len(parts) != 2 {
		return Link{}, false
	}
	var id string
	if err := json.Unmarshal(parts[0], &id); err != nil {
		return Link{}, false
	}
	var slot int
	if err := json.Unmarshal(parts[1], &slot); err != nil {
		return Link{}, false
	}
	return Link{NodeID: id, Slot: slot}, true
}
