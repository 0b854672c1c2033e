// Package engine hosts extensions: it owns the schedulers they register
// tasks on, their game-state classes and systems, and the command,
// message and notification plumbing tasks use to talk to each other.
//
// Extensions see the host through three capabilities:
//
//   - Init, while loading: schedulers, tasks, state classes, systems and
//     streams. Everything registered through one Init is owned by it and
//     is removed by Host.RemoveOwned.
//   - SystemSetup, in a system's create, destroy and reset events: tasks
//     that are removed with the system.
//   - Runtime, inside tasks: entity and state operations, commands,
//     messages, stream readers, the timeline and resources.
//
// Frames:
//
// Host.Step advances every scheduler's fixed-step accumulator by the
// elapsed time. Schedulers with a tick due run it in parallel, each on
// its own worker pool. After each round the end-of-tick sync point runs:
//
//  1. queued entity creates, destroys and tags (constructors run here)
//  2. queued state stack transitions (leave/enter callbacks run here)
//  3. command and notification streams publish a new generation
//
// Each scheduler reads every generation published since its previous
// tick, so a slower scheduler does not miss batches written by a faster
// one. A generation is released once every scheduler has read past it.
//
// Ops queued by constructors and state callbacks are drained in further
// rounds, bounded by DefaultMaxSyncRounds. Anything left over waits for
// the next sync point.
//
// Registration errors the host cannot recover from, such as a duplicate
// scheduler, state class or system name, are logged and end the process
// through the exit func (WithExit in tests).
package engine
