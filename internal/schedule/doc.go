// Package schedule implements resource-declared task scheduling.
//
// Tasks do not say what order they run in. They say what they touch:
// a read-only set and a read-write set of resource ids, plus an optional
// sync-point flag. From those declarations each Scheduler derives a
// conflict graph:
//
//	A -> B  iff  A was registered before B, and
//	             A and B share a resource that at least one of them writes,
//	             or either of them is a sync point.
//
// The graph is the only ordering between tasks. Each tick dispatches the
// whole graph on a pool of workers: a task starts once every predecessor
// has finished, and tasks with no path between them may run concurrently.
// Finishing a predecessor happens-before starting its successor, so writes
// made under a declared resource are visible downstream.
//
// Resource ids are scheduling tokens only. Nothing checks that a task
// touches only what it declared.
//
// Schedulers are independent of each other; no ordering is implied between
// tasks of different schedulers. Ticks are not cancellable: a dispatched
// tick always runs every task to completion.
package schedule
