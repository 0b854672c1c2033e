package params

import (
	"fmt"

	"github.com/serval-engine/serval/internal/variant"
)

// Descriptor is the 32-bit word describing a packed parameter buffer.
type Descriptor uint32

const (
	countMask     = 0x7
	fieldBase     = 3
	fieldWidth    = 3
	fieldMask     = 0x7
	extensionBase = fieldBase + MaxParams*fieldWidth
)

// Count returns the number of parameters.
func (d Descriptor) Count() int {
	return int(d & countMask)
}

// Tag returns the tag of parameter i.
func (d Descriptor) Tag(i int) variant.Tag {
	if i < 0 || i >= MaxParams {
		return variant.Invalid
	}
	low := uint32(d) >> (fieldBase + fieldWidth*i) & fieldMask
	high := uint32(d) >> (extensionBase + i) & 1
	return variant.Tag(high<<3 | low)
}

// Field returns the raw 3-bit field of parameter i.
func (d Descriptor) Field(i int) uint8 {
	if i < 0 || i >= MaxParams {
		return 0
	}
	return uint8(uint32(d) >> (fieldBase + fieldWidth*i) & fieldMask)
}

// Tags returns the tags of all parameters in order.
func (d Descriptor) Tags() []variant.Tag {
	out := make([]variant.Tag, 0, d.Count())
	for i := 0; i < d.Count() && i < MaxParams; i++ {
		out = append(out, d.Tag(i))
	}
	return out
}

// PayloadSize sums the sizes of the described parameters.
func (d Descriptor) PayloadSize() int {
	total := 0
	for _, t := range d.Tags() {
		total += variant.Size(t)
	}
	return total
}

// Validate checks that the count is in range, every described tag is a
// valid kind, and no unused bits are set.
func (d Descriptor) Validate() error {
	n := d.Count()
	if n > MaxParams {
		return fmt.Errorf("%w: count %d", ErrTooManyParams, n)
	}
	for i := 0; i < n; i++ {
		if t := d.Tag(i); !t.Valid() {
			return fmt.Errorf("%w: parameter %d has tag %d", ErrMalformed, i, uint8(t))
		}
	}
	var used uint32 = countMask
	for i := 0; i < n; i++ {
		used |= fieldMask << (fieldBase + fieldWidth*i)
		used |= 1 << (extensionBase + i)
	}
	if uint32(d)&^used != 0 {
		return fmt.Errorf("%w: stray bits %#x", ErrMalformed, uint32(d)&^used)
	}
	return nil
}

func (d Descriptor) withTag(i int, t variant.Tag) Descriptor {
	v := uint32(d)
	v |= (uint32(t) & fieldMask) << (fieldBase + fieldWidth*i)
	v |= (uint32(t) >> 3 & 1) << (extensionBase + i)
	return Descriptor(v)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("descriptor(%d %v)", d.Count(), d.Tags())
}
