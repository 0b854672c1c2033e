package variant

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serval-engine/serval/internal/hashid"
)

func roundTrip[T Kind](t *testing.T, v T) {
	t.Helper()
	enc := Encode(v)
	require.Equal(t, TagOf[T](), enc.Tag())
	assert.Equal(t, v, Decode[T](enc))
	got, ok := As[T](enc)
	assert.True(t, ok)
	assert.Equal(t, v, got)
}

func TestEncodeDecode_RoundTripsEveryKind(t *testing.T) {
	roundTrip(t, uint8(0))
	roundTrip(t, uint8(255))
	roundTrip(t, true)
	roundTrip(t, false)
	roundTrip(t, int32(math.MinInt32))
	roundTrip(t, int32(math.MaxInt32))
	roundTrip(t, int64(math.MinInt64))
	roundTrip(t, int64(-1))
	roundTrip(t, float32(3.25))
	roundTrip(t, float32(math.Inf(-1)))
	roundTrip(t, EntityID(42))
	roundTrip(t, NullEntity)
	roundTrip(t, hashid.Of("bodies"))
	roundTrip(t, Vector2{X: 1, Y: -2})
	roundTrip(t, Vector3{X: 1, Y: 2, Z: 3})
	roundTrip(t, Vector4{X: 1, Y: 2, Z: 3, W: 4})
	roundTrip(t, IdentityQuat)
	roundTrip(t, ContainerHandle(0xdeadbeef))
	roundTrip(t, ResourceHandle(7))
}

func TestEncodeDecode_ScalarBitsPreserved(t *testing.T) {
	for _, bits := range []uint32{0x7fc00001, 0xffc00000, 0x80000000, 0x00000001} {
		f := math.Float32frombits(bits)
		got := Decode[float32](Encode(f))
		assert.Equal(t, bits, math.Float32bits(got), "bits %#x", bits)
	}
}

func TestEncode_LittleEndianLayout(t *testing.T) {
	v := Encode(int32(0x01020304))
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, v.Bytes())

	vec := Encode(Vector2{X: 1})
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0}, vec.Bytes())
}

func TestDecode_MismatchReturnsZero(t *testing.T) {
	v := Encode(int32(9))

	assert.Equal(t, int64(0), Decode[int64](v))
	_, ok := As[int64](v)
	assert.False(t, ok)
}

func TestSize_MatchesKinds(t *testing.T) {
	want := map[Tag]int{
		Invalid:   0,
		Byte:      1,
		Boolean:   1,
		Integer:   4,
		Integer64: 8,
		Scalar:    4,
		Entity:    4,
		Id:        4,
		Vec2:      8,
		Vec3:      12,
		Vec4:      16,
		Rotation:  16,
		Container: 4,
		Handle:    4,
		reserved1: 0,
		reserved2: 0,
		Tag(200):  0,
	}
	for tag, size := range want {
		assert.Equal(t, size, Size(tag), "size of %s", tag)
	}
}

func TestTagOf_CoversClosedSet(t *testing.T) {
	assert.Equal(t, Byte, TagOf[uint8]())
	assert.Equal(t, Boolean, TagOf[bool]())
	assert.Equal(t, Integer, TagOf[int32]())
	assert.Equal(t, Integer64, TagOf[int64]())
	assert.Equal(t, Scalar, TagOf[float32]())
	assert.Equal(t, Entity, TagOf[EntityID]())
	assert.Equal(t, Id, TagOf[hashid.Id]())
	assert.Equal(t, Vec2, TagOf[Vector2]())
	assert.Equal(t, Vec3, TagOf[Vector3]())
	assert.Equal(t, Vec4, TagOf[Vector4]())
	assert.Equal(t, Rotation, TagOf[Quat]())
	assert.Equal(t, Container, TagOf[ContainerHandle]())
	assert.Equal(t, Handle, TagOf[ResourceHandle]())

	assert.Equal(t, Invalid, tagOfAny("text"))
	assert.Equal(t, Invalid, tagOfAny(float64(1)))
}

func TestCopyInto(t *testing.T) {
	src := Encode(int32(-5))

	t.Run("matching tag copies", func(t *testing.T) {
		out := []byte{0xaa, 0xaa, 0xaa, 0xaa}
		require.True(t, CopyInto(src, Integer, out))
		assert.Equal(t, src.Bytes(), out)
	})

	t.Run("mismatched tag leaves destination", func(t *testing.T) {
		out := []byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
		assert.False(t, CopyInto(src, Integer64, out))
		assert.Equal(t, []byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}, out)
	})

	t.Run("invalid source never copies", func(t *testing.T) {
		out := []byte{0xaa}
		assert.False(t, CopyInto(Value{}, Invalid, out))
		assert.Equal(t, []byte{0xaa}, out)
	})

	t.Run("short destination", func(t *testing.T) {
		out := []byte{0xaa, 0xaa}
		assert.False(t, CopyInto(src, Integer, out))
		assert.Equal(t, []byte{0xaa, 0xaa}, out)
	})
}

func TestAssign(t *testing.T) {
	dst := Vector3{X: 9, Y: 9, Z: 9}
	assert.False(t, Assign(Encode(Vector2{X: 1, Y: 2}), &dst))
	assert.Equal(t, Vector3{X: 9, Y: 9, Z: 9}, dst)

	assert.True(t, Assign(Encode(Vector3{X: 1, Y: 2, Z: 3}), &dst))
	assert.Equal(t, Vector3{X: 1, Y: 2, Z: 3}, dst)
}

func TestFromBytes(t *testing.T) {
	v, err := FromBytes(Integer, []byte{1, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, int32(1), Decode[int32](v))
	assert.Equal(t, Encode(int32(1)), v)

	_, err = FromBytes(Integer, []byte{1, 0})
	assert.Error(t, err)

	_, err = FromBytes(Invalid, nil)
	assert.Error(t, err)
}

func TestFromInterface(t *testing.T) {
	v, err := FromInterface(Vector4{X: 1, Y: 2, Z: 3, W: 4})
	require.NoError(t, err)
	assert.Equal(t, Vector4{X: 1, Y: 2, Z: 3, W: 4}, v.Interface())

	_, err = FromInterface("nope")
	assert.Error(t, err)
}

func TestValue_ZeroIsInvalid(t *testing.T) {
	var v Value
	assert.False(t, v.IsValid())
	assert.Equal(t, Invalid, v.Tag())
	assert.Nil(t, v.Interface())
	assert.Empty(t, v.Bytes())
	assert.Equal(t, "invalid", v.String())
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "integer(7)", Encode(int32(7)).String())
	assert.Equal(t, "scalar(1.5)", Encode(float32(1.5)).String())
	assert.Equal(t, "id(0x811c9dc5)", Encode(hashid.Of("")).String())
}

func TestParseTag(t *testing.T) {
	for _, tag := range Tags {
		got, err := ParseTag(tag.String())
		require.NoError(t, err)
		assert.Equal(t, tag, got)
	}
	_, err := ParseTag("invalid")
	assert.Error(t, err)
	_, err = ParseTag("double")
	assert.Error(t, err)
}
