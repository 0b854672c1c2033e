// Package hashid provides the universal 32-bit name hash used as the key
// namespace for schedulers, tasks, resources, game-state classes, systems,
// streams, commands, messages and named entities.
//
// The hash is 32-bit FNV-1a over the raw bytes of the name, which is the
// same function the host engine uses, so ids computed on either side of
// the extension boundary agree.
//
// Every domain shares one hash space. Collisions between two names are not
// prevented; the Names table only reports them.
package hashid
