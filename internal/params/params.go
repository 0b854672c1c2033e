package params

import (
	"errors"
	"fmt"
	"strings"

	"github.com/serval-engine/serval/internal/variant"
)

// MaxParams is the largest number of parameters one descriptor can carry.
const MaxParams = 5

var (
	ErrTooManyParams = errors.New("too many parameters")
	ErrInvalidParam  = errors.New("invalid parameter")
	ErrMalformed     = errors.New("malformed parameter buffer")
)

// List is an ordered set of at most MaxParams values.
type List struct {
	n    uint8
	vals [MaxParams]variant.Value
}

// None is the empty parameter list.
var None = List{}

// Of returns the empty list.
func Of() List { return List{} }

// Of1 builds a one-parameter list.
func Of1[A variant.Kind](a A) List {
	return List{n: 1, vals: [MaxParams]variant.Value{variant.Encode(a)}}
}

// Of2 builds a two-parameter list.
func Of2[A, B variant.Kind](a A, b B) List {
	return List{n: 2, vals: [MaxParams]variant.Value{variant.Encode(a), variant.Encode(b)}}
}

// Of3 builds a three-parameter list.
func Of3[A, B, C variant.Kind](a A, b B, c C) List {
	return List{n: 3, vals: [MaxParams]variant.Value{
		variant.Encode(a), variant.Encode(b), variant.Encode(c),
	}}
}

// Of4 builds a four-parameter list.
func Of4[A, B, C, D variant.Kind](a A, b B, c C, d D) List {
	return List{n: 4, vals: [MaxParams]variant.Value{
		variant.Encode(a), variant.Encode(b), variant.Encode(c), variant.Encode(d),
	}}
}

// Of5 builds a five-parameter list.
func Of5[A, B, C, D, E variant.Kind](a A, b B, c C, d D, e E) List {
	return List{n: 5, vals: [MaxParams]variant.Value{
		variant.Encode(a), variant.Encode(b), variant.Encode(c), variant.Encode(d), variant.Encode(e),
	}}
}

// FromValues builds a list from already-encoded values.
func FromValues(vals ...variant.Value) (List, error) {
	if len(vals) > MaxParams {
		return List{}, fmt.Errorf("%w: %d > %d", ErrTooManyParams, len(vals), MaxParams)
	}
	var l List
	for i, v := range vals {
		if !v.IsValid() {
			return List{}, fmt.Errorf("%w: parameter %d holds no value", ErrInvalidParam, i)
		}
		l.vals[i] = v
	}
	l.n = uint8(len(vals))
	return l, nil
}

// Len returns the parameter count.
func (l List) Len() int { return int(l.n) }

// At returns parameter i. It panics when i is out of range.
func (l List) At(i int) variant.Value {
	if i < 0 || i >= int(l.n) {
		panic(fmt.Sprintf("params: index %d out of range [0,%d)", i, l.n))
	}
	return l.vals[i]
}

// Values returns the parameters as a fresh slice.
func (l List) Values() []variant.Value {
	out := make([]variant.Value, l.n)
	copy(out, l.vals[:l.n])
	return out
}

// Size returns the packed payload size in bytes.
func (l List) Size() int {
	total := 0
	for _, v := range l.vals[:l.n] {
		total += variant.Size(v.Tag())
	}
	return total
}

// Descriptor returns the descriptor word for the list.
func (l List) Descriptor() Descriptor {
	d := Descriptor(l.n)
	for i, v := range l.vals[:l.n] {
		d = d.withTag(i, v.Tag())
	}
	return d
}

func (l List) String() string {
	parts := make([]string, l.n)
	for i, v := range l.vals[:l.n] {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Encode packs l into scratch, reusing its capacity when it is large
// enough. The buffer is sized once, before any payload is written, and
// payloads are laid out back to back in parameter order.
func Encode(l List, scratch []byte) (Descriptor, []byte) {
	size := l.Size()
	buf := scratch[:0]
	if cap(buf) < size {
		buf = make([]byte, 0, size)
	}
	for _, v := range l.vals[:l.n] {
		buf = v.AppendTo(buf)
	}
	return l.Descriptor(), buf
}

// Decode unpacks a buffer produced by Encode.
func Decode(d Descriptor, buf []byte) (List, error) {
	if err := d.Validate(); err != nil {
		return List{}, err
	}
	if want := d.PayloadSize(); want != len(buf) {
		return List{}, fmt.Errorf("%w: buffer is %d bytes, descriptor needs %d", ErrMalformed, len(buf), want)
	}

	var l List
	offset := 0
	for i := 0; i < d.Count(); i++ {
		tag := d.Tag(i)
		size := variant.Size(tag)
		v, err := variant.FromBytes(tag, buf[offset:offset+size])
		if err != nil {
			return List{}, fmt.Errorf("%w: parameter %d: %v", ErrMalformed, i, err)
		}
		l.vals[i] = v
		offset += size
	}
	l.n = uint8(d.Count())
	return l, nil
}
