package value

import (
	"encoding/json"
	"fmt"
)

type wireValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes v as {"kind": "...", "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindBool:
		payload = v.i != 0
	case KindInt:
		payload = v.i
	case KindFloat:
		payload = v.num[0]
	case KindVector:
		payload, _ = v.AsVector()
	case KindColor:
		payload, _ = v.AsColor()
	case KindString:
		payload = v.s
	case KindBlob:
		payload, _ = v.AsBlob()
	default:
		return nil, fmt.Errorf("marshal value: %w", ErrUnknownKind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return json.Marshal(wireValue{Kind: v.kind.String(), Value: raw})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	kind, err := ParseKind(w.Kind)
	if err != nil {
		return err
	}
	if len(w.Value) == 0 {
		return fmt.Errorf("%w: missing value for kind %s", ErrInvalidValue, kind)
	}

	decode := func(dst any) error {
		if err := json.Unmarshal(w.Value, dst); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, kind, err)
		}
		return nil
	}

	switch kind {
	case KindBool:
		var b bool
		if err := decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case KindInt:
		var i int64
		if err := decode(&i); err != nil {
			return err
		}
		*v = Int(i)
	case KindFloat:
		var f float64
		if err := decode(&f); err != nil {
			return err
		}
		*v = Float(f)
	case KindVector:
		var vec Vector
		if err := decode(&vec); err != nil {
			return err
		}
		*v = Vec(vec.X, vec.Y, vec.Z)
	case KindColor:
		var c Color
		if err := decode(&c); err != nil {
			return err
		}
		*v = RGBA(c.R, c.G, c.B, c.A)
	case KindString:
		var s string
		if err := decode(&s); err != nil {
			return err
		}
		*v = String(s)
	case KindBlob:
		var b Blob
		if err := decode(&b); err != nil {
			return err
		}
		if b.Ref == "" {
			return fmt.Errorf("%w: blob ref must not be empty", ErrInvalidValue)
		}
		*v = BlobRef(b.Ref, b.Size)
	}
	return nil
}
