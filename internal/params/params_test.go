package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/variant"
)

func TestEncode_Empty(t *testing.T) {
	d, buf := Encode(Of(), nil)

	assert.Equal(t, Descriptor(0), d)
	assert.Equal(t, 0, d.Count())
	assert.Empty(t, buf)
}

func TestEncode_DescriptorLayout(t *testing.T) {
	d, buf := Encode(Of3(uint8(7), true, int32(-1)), nil)

	// count=3, tags Byte(1), Boolean(2), Integer(3) in 3-bit fields from bit 3.
	want := Descriptor(3 | 1<<3 | 2<<6 | 3<<9)
	assert.Equal(t, want, d)
	assert.Equal(t, []byte{7, 1, 0xff, 0xff, 0xff, 0xff}, buf)
}

func TestEncode_WideTagsUseExtensionPlane(t *testing.T) {
	d, _ := Encode(Of2(variant.Vector2{}, variant.ResourceHandle(1)), nil)

	// Vec2 = 0b1000, Handle = 0b1111.
	assert.Equal(t, uint8(0b000), d.Field(0))
	assert.Equal(t, uint8(0b111), d.Field(1))
	assert.Equal(t, uint32(1), uint32(d)>>18&1)
	assert.Equal(t, uint32(1), uint32(d)>>19&1)
	assert.Equal(t, []variant.Tag{variant.Vec2, variant.Handle}, d.Tags())
}

func TestEncode_BufferLengthIsSumOfSizes(t *testing.T) {
	lists := []List{
		Of(),
		Of1(int64(1)),
		Of2(variant.Vector3{X: 1, Y: 2, Z: 3}, float32(2)),
		Of3(variant.EntityID(4), hashid.Of("hit"), variant.IdentityQuat),
		Of4(true, uint8(1), int32(2), int64(3)),
		Of5(variant.Vector4{}, variant.Vector2{}, variant.ContainerHandle(9), variant.ResourceHandle(2), false),
	}
	for _, l := range lists {
		d, buf := Encode(l, nil)
		sum := 0
		for _, v := range l.Values() {
			sum += variant.Size(v.Tag())
		}
		assert.Equal(t, sum, len(buf), "list %s", l)
		assert.Equal(t, l.Len(), d.Count())
		assert.Equal(t, sum, d.PayloadSize())
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	lists := []List{
		Of(),
		Of1(variant.NullEntity),
		Of2(hashid.Of("bodies"), variant.Vector3{X: 1, Y: -1, Z: 0.5}),
		Of5(uint8(1), true, int32(3), int64(4), float32(5)),
		Of5(variant.EntityID(6), hashid.Of("x"), variant.Vector2{X: 7, Y: 8}, variant.IdentityQuat, variant.ContainerHandle(10)),
	}
	for _, l := range lists {
		d, buf := Encode(l, nil)
		require.NoError(t, d.Validate())

		got, err := Decode(d, buf)
		require.NoError(t, err)
		assert.Equal(t, l.Values(), got.Values())

		tags := make([]variant.Tag, 0, l.Len())
		for _, v := range l.Values() {
			tags = append(tags, v.Tag())
		}
		assert.Equal(t, tags, d.Tags())
	}
}

func TestEncode_ReusesScratch(t *testing.T) {
	scratch := make([]byte, 0, 64)
	_, buf := Encode(Of2(int32(1), int32(2)), scratch)

	assert.Equal(t, 8, len(buf))
	assert.Same(t, &scratch[:1][0], &buf[0], "scratch with enough capacity is reused")
}

func TestFromValues(t *testing.T) {
	v := variant.Encode(int32(1))

	l, err := FromValues(v, v, v)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())

	_, err = FromValues(v, v, v, v, v, v)
	assert.ErrorIs(t, err, ErrTooManyParams)

	_, err = FromValues(v, variant.Value{})
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestDecode_RejectsMalformed(t *testing.T) {
	d, buf := Encode(Of2(int32(1), int64(2)), nil)

	_, err := Decode(d, buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(Descriptor(6), nil)
	assert.ErrorIs(t, err, ErrTooManyParams)

	// Count 1 with a reserved tag (12 = 0b100 low, ext bit set).
	bad := Descriptor(1 | 0b100<<3 | 1<<18)
	_, err = Decode(bad, make([]byte, 0))
	assert.ErrorIs(t, err, ErrMalformed)

	// Stray bits beyond the described parameters.
	_, err = Decode(d|1<<30, buf)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestList_At(t *testing.T) {
	l := Of2(int32(1), true)
	assert.Equal(t, variant.Encode(true), l.At(1))
	assert.Panics(t, func() { l.At(2) })
}

func TestList_String(t *testing.T) {
	assert.Equal(t, "(integer(1), boolean(true))", Of2(int32(1), true).String())
	assert.Equal(t, "()", None.String())
}
