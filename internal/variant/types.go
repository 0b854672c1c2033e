package variant

import "github.com/serval-engine/serval/internal/hashid"

// EntityID is an entity handle issued by the host's entity store.
type EntityID uint32

// NullEntity is the sentinel for "no entity".
const NullEntity EntityID = 0xffffffff

// ResourceHandle is an opaque handle to any host resource that is not
// representable as a plain value.
type ResourceHandle uint32

// Vector2 is a two-component float vector.
type Vector2 struct{ X, Y float32 }

// Vector3 is a three-component float vector.
type Vector3 struct{ X, Y, Z float32 }

// Vector4 is a four-component float vector.
type Vector4 struct{ X, Y, Z, W float32 }

// Quat is a rotation quaternion stored x, y, z, w.
type Quat struct{ X, Y, Z, W float32 }

// IdentityQuat is the rotation that does nothing.
var IdentityQuat = Quat{W: 1}

// Kind is the closed set of native kinds a Value can hold.
//
// Instantiating a generic function of this package with any other type is
// a compile error.
type Kind interface {
	uint8 | bool | int32 | int64 | float32 |
		EntityID | hashid.Id |
		Vector2 | Vector3 | Vector4 | Quat |
		ContainerHandle | ResourceHandle
}

// TagOf returns the tag a kind encodes as.
func TagOf[T Kind]() Tag {
	var zero T
	return tagOfAny(zero)
}

// tagOfAny is the runtime form of TagOf. It returns Invalid for any type
// outside the Kind set.
func tagOfAny(v any) Tag {
	switch v.(type) {
	case uint8:
		return Byte
	case bool:
		return Boolean
	case int32:
		return Integer
	case int64:
		return Integer64
	case float32:
		return Scalar
	case EntityID:
		return Entity
	case hashid.Id:
		return Id
	case Vector2:
		return Vec2
	case Vector3:
		return Vec3
	case Vector4:
		return Vec4
	case Quat:
		return Rotation
	case ContainerHandle:
		return Container
	case ResourceHandle:
		return Handle
	default:
		return Invalid
	}
}
