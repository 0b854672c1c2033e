// Package params packs up to five typed values into a byte buffer plus a
// single 32-bit descriptor word, the form in which message and stream
// payloads cross the extension boundary.
//
// Descriptor layout (bit 0 is the least significant):
//
//	 2..0   parameter count (0-5)
//	 5..3   tag of parameter 0, low 3 bits
//	 8..6   tag of parameter 1, low 3 bits
//	11..9   tag of parameter 2, low 3 bits
//	14..12  tag of parameter 3, low 3 bits
//	17..15  tag of parameter 4, low 3 bits
//	22..18  bit 3 of the tag of parameters 0..4 (extension plane)
//	31..23  zero
//
// Tags are four bits wide; the extension plane carries the high bit so
// Vec2 and later kinds survive the round trip while the 3-bit fields keep
// their positions.
//
// The arity limit is enforced by the constructors: Of through Of5 exist,
// nothing accepts six typed arguments. FromValues is the checked path for
// dynamic callers.
package params
