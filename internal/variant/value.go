package variant

import (
	"fmt"
	"math"

	"github.com/serval-engine/serval/internal/hashid"
)

// Value is a tagged union holding exactly one payload of a supported kind.
//
// Values are plain comparable structs with no indirection; copying a Value
// copies its payload. The zero Value is invalid.
type Value struct {
	tag Tag
	raw [maxPayload]byte
}

// Encode wraps a native value.
func Encode[T Kind](v T) Value {
	var out Value
	out.tag = TagOf[T]()
	entryFor[T]().put(out.raw[:], v)
	return out
}

// Decode unwraps a value as T. The result is the zero T when the value
// does not hold a T; callers that cannot be sure should check Tag first or
// use As.
func Decode[T Kind](v Value) T {
	if v.tag != TagOf[T]() {
		var zero T
		return zero
	}
	return entryFor[T]().get(v.raw[:])
}

// As unwraps a value as T and reports whether the tag matched.
func As[T Kind](v Value) (T, bool) {
	if v.tag != TagOf[T]() {
		var zero T
		return zero, false
	}
	return entryFor[T]().get(v.raw[:]), true
}

// FromBytes builds a value from a tag and its raw little-endian payload.
func FromBytes(t Tag, b []byte) (Value, error) {
	if !t.Valid() {
		return Value{}, fmt.Errorf("invalid value tag %d", uint8(t))
	}
	if len(b) != Size(t) {
		return Value{}, fmt.Errorf("%s payload is %d bytes, want %d", t, len(b), Size(t))
	}
	var out Value
	out.tag = t
	copy(out.raw[:], b)
	return out, nil
}

// Tag returns the kind held by v.
func (v Value) Tag() Tag { return v.tag }

// IsValid reports whether v holds a payload.
func (v Value) IsValid() bool { return v.tag.Valid() }

// Size returns the payload size of v in bytes.
func (v Value) Size() int { return Size(v.tag) }

// Bytes returns a copy of the raw payload.
func (v Value) Bytes() []byte {
	out := make([]byte, Size(v.tag))
	copy(out, v.raw[:])
	return out
}

// AppendTo appends the raw payload to dst.
func (v Value) AppendTo(dst []byte) []byte {
	return append(dst, v.raw[:Size(v.tag)]...)
}

// CopyInto writes the payload of src into out when src holds a value of
// kind dst. On a kind mismatch, an invalid source or a short destination
// out is left untouched and CopyInto returns false.
func CopyInto(src Value, dst Tag, out []byte) bool {
	if !src.tag.Valid() || src.tag != dst {
		return false
	}
	n := Size(dst)
	if len(out) < n {
		return false
	}
	copy(out[:n], src.raw[:n])
	return true
}

// Assign is the typed form of CopyInto.
func Assign[T Kind](src Value, dst *T) bool {
	v, ok := As[T](src)
	if !ok {
		return false
	}
	*dst = v
	return true
}

// Interface returns the payload as its native Go type, or nil when v is
// invalid.
func (v Value) Interface() any {
	switch v.tag {
	case Byte:
		return Decode[uint8](v)
	case Boolean:
		return Decode[bool](v)
	case Integer:
		return Decode[int32](v)
	case Integer64:
		return Decode[int64](v)
	case Scalar:
		return Decode[float32](v)
	case Entity:
		return Decode[EntityID](v)
	case Id:
		return Decode[hashid.Id](v)
	case Vec2:
		return Decode[Vector2](v)
	case Vec3:
		return Decode[Vector3](v)
	case Vec4:
		return Decode[Vector4](v)
	case Rotation:
		return Decode[Quat](v)
	case Container:
		return Decode[ContainerHandle](v)
	case Handle:
		return Decode[ResourceHandle](v)
	default:
		return nil
	}
}

// FromInterface is the runtime counterpart of Encode for callers that only
// have an untyped value, such as decoded configuration.
func FromInterface(x any) (Value, error) {
	switch val := x.(type) {
	case uint8:
		return Encode(val), nil
	case bool:
		return Encode(val), nil
	case int32:
		return Encode(val), nil
	case int64:
		return Encode(val), nil
	case float32:
		return Encode(val), nil
	case EntityID:
		return Encode(val), nil
	case hashid.Id:
		return Encode(val), nil
	case Vector2:
		return Encode(val), nil
	case Vector3:
		return Encode(val), nil
	case Vector4:
		return Encode(val), nil
	case Quat:
		return Encode(val), nil
	case ContainerHandle:
		return Encode(val), nil
	case ResourceHandle:
		return Encode(val), nil
	default:
		return Value{}, fmt.Errorf("unsupported value kind %T", x)
	}
}

// Equal compares payload bits, so NaN scalars equal themselves.
func (v Value) Equal(o Value) bool {
	return v == o
}

func (v Value) String() string {
	if !v.IsValid() {
		return "invalid"
	}
	switch v.tag {
	case Scalar:
		f := Decode[float32](v)
		if math.IsNaN(float64(f)) {
			return "scalar(NaN)"
		}
		return fmt.Sprintf("scalar(%g)", f)
	case Id:
		return "id(" + Decode[hashid.Id](v).String() + ")"
	case Container:
		return Decode[ContainerHandle](v).String()
	default:
		return fmt.Sprintf("%s(%v)", v.tag, v.Interface())
	}
}
