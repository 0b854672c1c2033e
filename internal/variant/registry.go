package variant

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/serval-engine/serval/internal/hashid"
)

// entry is one row of the kind table.
type entry interface {
	tag() Tag
	size() int
	goType() reflect.Type
	// selfTag is what TagOf reports for the entry's Go type.
	selfTag() Tag
}

type kindEntry[T Kind] struct {
	t   Tag
	n   int
	put func(dst []byte, v T)
	get func(src []byte) T
}

func (e *kindEntry[T]) tag() Tag             { return e.t }
func (e *kindEntry[T]) size() int            { return e.n }
func (e *kindEntry[T]) goType() reflect.Type { return reflect.TypeFor[T]() }
func (e *kindEntry[T]) selfTag() Tag         { return TagOf[T]() }

type registry struct {
	byTag [MaxTag + 1]entry
	all   []entry
}

func add[T Kind](r *registry, t Tag, n int, put func([]byte, T), get func([]byte) T) {
	r.all = append(r.all, &kindEntry[T]{t: t, n: n, put: put, get: get})
}

var le = binary.LittleEndian

func putFloats(dst []byte, fs ...float32) {
	for i, f := range fs {
		le.PutUint32(dst[4*i:], math.Float32bits(f))
	}
}

func getFloat(src []byte, i int) float32 {
	return math.Float32frombits(le.Uint32(src[4*i:]))
}

// newRegistry builds the kind table. The table is the only place that
// knows how each kind is laid out.
func newRegistry() *registry {
	r := &registry{}

	add(r, Byte, 1,
		func(b []byte, v uint8) { b[0] = v },
		func(b []byte) uint8 { return b[0] })
	add(r, Boolean, 1,
		func(b []byte, v bool) {
			if v {
				b[0] = 1
			} else {
				b[0] = 0
			}
		},
		func(b []byte) bool { return b[0] != 0 })
	add(r, Integer, 4,
		func(b []byte, v int32) { le.PutUint32(b, uint32(v)) },
		func(b []byte) int32 { return int32(le.Uint32(b)) })
	add(r, Integer64, 8,
		func(b []byte, v int64) { le.PutUint64(b, uint64(v)) },
		func(b []byte) int64 { return int64(le.Uint64(b)) })
	add(r, Scalar, 4,
		func(b []byte, v float32) { putFloats(b, v) },
		func(b []byte) float32 { return getFloat(b, 0) })
	add(r, Entity, 4,
		func(b []byte, v EntityID) { le.PutUint32(b, uint32(v)) },
		func(b []byte) EntityID { return EntityID(le.Uint32(b)) })
	add(r, Id, 4,
		func(b []byte, v hashid.Id) { le.PutUint32(b, uint32(v)) },
		func(b []byte) hashid.Id { return hashid.Id(le.Uint32(b)) })
	add(r, Vec2, 8,
		func(b []byte, v Vector2) { putFloats(b, v.X, v.Y) },
		func(b []byte) Vector2 { return Vector2{getFloat(b, 0), getFloat(b, 1)} })
	add(r, Vec3, 12,
		func(b []byte, v Vector3) { putFloats(b, v.X, v.Y, v.Z) },
		func(b []byte) Vector3 { return Vector3{getFloat(b, 0), getFloat(b, 1), getFloat(b, 2)} })
	add(r, Vec4, 16,
		func(b []byte, v Vector4) { putFloats(b, v.X, v.Y, v.Z, v.W) },
		func(b []byte) Vector4 {
			return Vector4{getFloat(b, 0), getFloat(b, 1), getFloat(b, 2), getFloat(b, 3)}
		})
	add(r, Rotation, 16,
		func(b []byte, v Quat) { putFloats(b, v.X, v.Y, v.Z, v.W) },
		func(b []byte) Quat {
			return Quat{getFloat(b, 0), getFloat(b, 1), getFloat(b, 2), getFloat(b, 3)}
		})
	add(r, Container, 4,
		func(b []byte, v ContainerHandle) { le.PutUint32(b, uint32(v)) },
		func(b []byte) ContainerHandle { return ContainerHandle(le.Uint32(b)) })
	add(r, Handle, 4,
		func(b []byte, v ResourceHandle) { le.PutUint32(b, uint32(v)) },
		func(b []byte) ResourceHandle { return ResourceHandle(le.Uint32(b)) })

	return r
}

// validate indexes the table by tag and checks it is a bijection between
// Tags and the Kind set with consistent sizes.
func (r *registry) validate() error {
	seenTypes := make(map[reflect.Type]Tag, len(r.all))

	for _, e := range r.all {
		t := e.tag()
		if !t.Valid() {
			return fmt.Errorf("kind %s registered under invalid tag %d", e.goType(), t)
		}
		if r.byTag[t] != nil {
			return fmt.Errorf("tag %s registered twice (%s and %s)", t, r.byTag[t].goType(), e.goType())
		}
		if prev, ok := seenTypes[e.goType()]; ok {
			return fmt.Errorf("kind %s registered under both %s and %s", e.goType(), prev, t)
		}
		if e.selfTag() != t {
			return fmt.Errorf("kind %s maps to %s but is registered under %s", e.goType(), e.selfTag(), t)
		}
		if want := binary.Size(reflect.New(e.goType()).Elem().Interface()); want != e.size() {
			return fmt.Errorf("tag %s declares size %d but %s encodes to %d bytes", t, e.size(), e.goType(), want)
		}
		if e.size() > maxPayload {
			return fmt.Errorf("tag %s size %d exceeds payload capacity %d", t, e.size(), maxPayload)
		}
		r.byTag[t] = e
		seenTypes[e.goType()] = t
	}

	for _, t := range Tags {
		if r.byTag[t] == nil {
			return fmt.Errorf("tag %s has no registered kind", t)
		}
	}
	return nil
}

var reg = mustRegistry()

func mustRegistry() *registry {
	r := newRegistry()
	if err := r.validate(); err != nil {
		panic("variant: invalid kind registry: " + err.Error())
	}
	return r
}

func entryFor[T Kind]() *kindEntry[T] {
	return reg.byTag[TagOf[T]()].(*kindEntry[T])
}
