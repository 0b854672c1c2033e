// Package persist implements the save and load streams handed to state
// and system callbacks.
//
// A save is a list of sections, one per owner, each holding (key, value)
// records. Values are variant values stored as tag plus raw payload. The
// whole save encodes as canonical CBOR, so equal saves are byte-equal.
package persist

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/variant"
)

// Version is the current save layout.
const Version = 1

var (
	ErrVersion = errors.New("unsupported save version")
	ErrCorrupt = errors.New("corrupt save")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("persist: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

type record struct {
	Key  uint32 `cbor:"1,keyasint"`
	Tag  uint8  `cbor:"2,keyasint"`
	Data []byte `cbor:"3,keyasint,omitempty"`
}

type section struct {
	Owner   string   `cbor:"1,keyasint"`
	Records []record `cbor:"2,keyasint,omitempty"`
}

type document struct {
	Version  uint8     `cbor:"1,keyasint"`
	Sections []section `cbor:"2,keyasint,omitempty"`
}

// Writer collects sections for one save.
type Writer struct {
	mu       sync.Mutex
	order    []string
	sections map[string]*Section
}

// NewWriter returns an empty save.
func NewWriter() *Writer {
	return &Writer{sections: make(map[string]*Section)}
}

// Section returns the section for owner, creating it on first use.
func (w *Writer) Section(owner string) *Section {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.sections[owner]; ok {
		return s
	}
	s := &Section{owner: owner, vals: make(map[hashid.Id]variant.Value)}
	w.sections[owner] = s
	w.order = append(w.order, owner)
	return s
}

// Marshal encodes the save. Sections keep creation order; records within
// a section are sorted by key.
func (w *Writer) Marshal() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	doc := document{Version: Version}
	for _, owner := range w.order {
		doc.Sections = append(doc.Sections, w.sections[owner].encode())
	}
	return encMode.Marshal(doc)
}

// WriteTo writes the encoded save to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	data, err := w.Marshal()
	if err != nil {
		return 0, err
	}
	n, err := dst.Write(data)
	return int64(n), err
}

// Section is one owner's records.
type Section struct {
	owner string
	mu    sync.Mutex
	vals  map[hashid.Id]variant.Value
}

// Owner returns the section owner.
func (s *Section) Owner() string { return s.owner }

// Put stores v under key, replacing any earlier value.
func (s *Section) Put(key hashid.Id, v variant.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = v
}

// Len returns the number of records.
func (s *Section) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vals)
}

func (s *Section) encode() section {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]hashid.Id, 0, len(s.vals))
	for k := range s.vals {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := section{Owner: s.owner, Records: make([]record, 0, len(keys))}
	for _, k := range keys {
		v := s.vals[k]
		out.Records = append(out.Records, record{Key: uint32(k), Tag: uint8(v.Tag()), Data: v.Bytes()})
	}
	return out
}

// Put encodes value and stores it in s.
func Put[T variant.Kind](s *Section, key hashid.Id, value T) {
	s.Put(key, variant.Encode(value))
}

// Reader gives load callbacks access to a decoded save.
type Reader struct {
	order    []string
	sections map[string]*SectionReader
}

// SectionReader reads one owner's records.
type SectionReader struct {
	owner string
	keys  []hashid.Id
	vals  map[hashid.Id]variant.Value
}

// Unmarshal decodes a save produced by Writer.
func Unmarshal(data []byte) (*Reader, error) {
	var doc document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	r := &Reader{sections: make(map[string]*SectionReader, len(doc.Sections))}
	for _, sec := range doc.Sections {
		if _, dup := r.sections[sec.Owner]; dup {
			return nil, fmt.Errorf("%w: duplicate section %q", ErrCorrupt, sec.Owner)
		}
		sr := &SectionReader{owner: sec.Owner, vals: make(map[hashid.Id]variant.Value, len(sec.Records))}
		for _, rec := range sec.Records {
			v, err := variant.FromBytes(variant.Tag(rec.Tag), rec.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: section %q key %s: %v", ErrCorrupt, sec.Owner, hashid.Id(rec.Key), err)
			}
			key := hashid.Id(rec.Key)
			sr.keys = append(sr.keys, key)
			sr.vals[key] = v
		}
		r.sections[sec.Owner] = sr
		r.order = append(r.order, sec.Owner)
	}
	return r, nil
}

// ReadFrom decodes a save from src.
func ReadFrom(src io.Reader) (*Reader, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Owners returns section owners in save order.
func (r *Reader) Owners() []string { return slices.Clone(r.order) }

// Section returns owner's records. A missing section reads as empty.
func (r *Reader) Section(owner string) *SectionReader {
	if sr, ok := r.sections[owner]; ok {
		return sr
	}
	return &SectionReader{owner: owner, vals: map[hashid.Id]variant.Value{}}
}

// Owner returns the section owner.
func (s *SectionReader) Owner() string { return s.owner }

// Len returns the number of records.
func (s *SectionReader) Len() int { return len(s.keys) }

// Value returns the raw value under key.
func (s *SectionReader) Value(key hashid.Id) (variant.Value, bool) {
	v, ok := s.vals[key]
	return v, ok
}

// Each calls fn for every record in key order.
func (s *SectionReader) Each(fn func(hashid.Id, variant.Value)) {
	for _, k := range s.keys {
		fn(k, s.vals[k])
	}
}

// Get returns the value under key if it is of kind T.
func Get[T variant.Kind](s *SectionReader, key hashid.Id) (T, bool) {
	v, ok := s.vals[key]
	if !ok {
		var zero T
		return zero, false
	}
	return variant.As[T](v)
}
