// Package value defines the typed snapshot of a property at one instant.
//
// A Value is a small tagged union. It is copied by value and never mutated
// after construction, so a Value handed to a track can be shared freely
// between readers.
package value

import (
	"fmt"
	"strings"
)

// Kind identifies which member of the union a Value holds.
type Kind uint8

// Supported kinds.
const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindVector
	KindColor
	KindString
	KindBlob
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt:     "int",
	KindFloat:   "float",
	KindVector:  "vector",
	KindColor:   "color",
	KindString:  "string",
	KindBlob:    "blob",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a kind name (case-insensitive) back to a Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if k != int(KindInvalid) && n == name {
			return Kind(k), nil
		}
	}
	return KindInvalid, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Vector is a struct of three floats.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Color is a linear RGBA color.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Blob references opaque data owned by the caller. Only the reference and
// its size are recorded.
type Blob struct {
	Ref  string `json:"ref"`
	Size int64  `json:"size,omitempty"`
}

// Value holds exactly one of the supported kinds.
type Value struct {
	kind Kind
	num  [4]float64 // float, vector xyz, color rgba
	i    int64      // int, bool (0/1), blob size
	s    string     // string, blob ref
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, num: [4]float64{f}} }

// Vec returns a vector value.
func Vec(x, y, z float64) Value { return Value{kind: KindVector, num: [4]float64{x, y, z}} }

// RGBA returns a color value.
func RGBA(r, g, b, a float64) Value { return Value{kind: KindColor, num: [4]float64{r, g, b, a}} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// BlobRef returns a blob reference value.
func BlobRef(ref string, size int64) Value { return Value{kind: KindBlob, s: ref, i: size} }

// Kind reports the held kind. The zero Value is KindInvalid.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v was built by one of the constructors.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Interpolable reports whether v can be linearly blended.
func (v Value) Interpolable() bool {
	switch v.kind {
	case KindInt, KindFloat, KindVector, KindColor:
		return true
	default:
		return false
	}
}

// AsBool returns the flag of a Bool value.
func (v Value) AsBool() (bool, bool) { return v.i != 0, v.kind == KindBool }

// AsInt returns the integer of an Int value.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the numeric value of Float and Int kinds.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.num[0], true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsVector returns the components of a Vector value.
func (v Value) AsVector() (Vector, bool) {
	return Vector{X: v.num[0], Y: v.num[1], Z: v.num[2]}, v.kind == KindVector
}

// AsColor returns the channels of a Color value.
func (v Value) AsColor() (Color, bool) {
	return Color{R: v.num[0], G: v.num[1], B: v.num[2], A: v.num[3]}, v.kind == KindColor
}

// AsString returns the text of a String value.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBlob returns the reference of a Blob value.
func (v Value) AsBlob() (Blob, bool) { return Blob{Ref: v.s, Size: v.i}, v.kind == KindBlob }

// Equal reports exact equality of kind and payload.
func Equal(a, b Value) bool {
	return a.kind == b.kind && a.num == b.num && a.i == b.i && a.s == b.s
}

// Lerp blends a toward b by alpha in [0,1]. Int operands blend in float space
// and produce a Float. When the kinds differ or are not interpolable, a is
// returned unchanged.
func Lerp(a, b Value, alpha float64) Value {
	if !a.Interpolable() || !b.Interpolable() {
		return a
	}
	switch {
	case alpha <= 0:
		return a
	case alpha >= 1:
		return b
	}
	if a.kind == KindInt || b.kind == KindInt {
		fa, okA := a.AsFloat()
		fb, okB := b.AsFloat()
		if !okA || !okB {
			return a
		}
		return Float(fa + (fb-fa)*alpha)
	}
	if a.kind != b.kind {
		return a
	}
	out := Value{kind: a.kind}
	for i := range out.num {
		out.num[i] = a.num[i] + (b.num[i]-a.num[i])*alpha
	}
	return out
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%t", v.i != 0)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.num[0])
	case KindVector:
		return fmt.Sprintf("(%g, %g, %g)", v.num[0], v.num[1], v.num[2])
	case KindColor:
		return fmt.Sprintf("rgba(%g, %g, %g, %g)", v.num[0], v.num[1], v.num[2], v.num[3])
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindBlob:
		return fmt.Sprintf("blob(%s, %d)", v.s, v.i)
	default:
		return "<invalid>"
	}
}
