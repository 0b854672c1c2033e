// Package command implements deferred, typed command delivery.
//
// A command is addressed to a target stream and carries a command-type id
// plus a payload of an exact, pre-registered byte size. Streams declare the
// (type, size) slots they accept; an allocation that does not match a slot
// fails with a *MismatchError and a logged warning.
//
// Delivery is deferred. Commands allocated during a tick are written into
// the stream's pending area and become a numbered generation when the host
// publishes at the end-of-tick sync point. A reader sees the generations
// in its window: the host gives each scheduler every generation published
// since its previous tick, so consumers on slower schedulers lose nothing.
// A generation is recycled once no consumer still has to read it.
package command
