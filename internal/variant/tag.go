package variant

import "fmt"

// Tag identifies a value kind on the wire.
type Tag uint8

const (
	Invalid   Tag = 0
	Byte      Tag = 1
	Boolean   Tag = 2
	Integer   Tag = 3
	Integer64 Tag = 4
	Scalar    Tag = 5
	Entity    Tag = 6
	Id        Tag = 7
	Vec2      Tag = 8
	Vec3      Tag = 9
	Vec4      Tag = 10
	Rotation  Tag = 11
	reserved1 Tag = 12
	reserved2 Tag = 13
	Container Tag = 14
	Handle    Tag = 15
)

// MaxTag is the largest tag value; tags fit in 4 bits.
const MaxTag = Handle

// maxPayload is the largest fixed payload size (Vec4 and Rotation).
const maxPayload = 16

// Tags lists every valid tag in wire order. Invalid and the reserved
// slots are not included.
var Tags = []Tag{
	Byte, Boolean, Integer, Integer64, Scalar, Entity, Id,
	Vec2, Vec3, Vec4, Rotation, Container, Handle,
}

var tagNames = map[Tag]string{
	Invalid:   "invalid",
	Byte:      "byte",
	Boolean:   "boolean",
	Integer:   "integer",
	Integer64: "integer64",
	Scalar:    "scalar",
	Entity:    "entity",
	Id:        "id",
	Vec2:      "vec2",
	Vec3:      "vec3",
	Vec4:      "vec4",
	Rotation:  "rotation",
	Container: "container",
	Handle:    "handle",
}

// Valid reports whether t names a kind (not Invalid, not reserved).
func (t Tag) Valid() bool {
	return t != Invalid && t != reserved1 && t != reserved2 && t <= MaxTag
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// ParseTag resolves a tag from its String form.
func ParseTag(name string) (Tag, error) {
	for tag, n := range tagNames {
		if n == name && tag != Invalid {
			return tag, nil
		}
	}
	return Invalid, fmt.Errorf("unknown value kind %q", name)
}

// Size returns the fixed payload size of a tag in bytes.
// Invalid, reserved and out-of-range tags have size 0.
func Size(t Tag) int {
	if !t.Valid() {
		return 0
	}
	return reg.byTag[t].size()
}
