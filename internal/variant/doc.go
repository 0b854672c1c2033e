// Package variant is the closed value-kind registry that every payload
// crossing the extension boundary is encoded on.
//
// A fixed set of native Go kinds maps one-to-one onto compact tags with
// known byte sizes. The mapping is checked twice:
//   - at compile time, through the Kind constraint: TagOf, Encode, Decode
//     and Assign cannot be instantiated with a type outside the set;
//   - at process start, when the registry table is built and validated
//     (every tag has exactly one kind, every kind exactly one tag, and the
//     declared size matches the Go type's encoded size).
//
// Payloads are stored little-endian with no padding. Tag values match the
// host engine's wire values, including the two reserved slots.
package variant
