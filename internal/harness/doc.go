// Package harness runs scheduling scenarios against a real host.
//
// A scenario (YAML, or CUE when the file ends in .cue) names schedulers
// with their tick intervals and tasks with their read, write, sync and
// wait_for declarations. Run registers them the way an extension would,
// steps the host on a step clock for a fixed number of frames, and
// returns the conflict graphs together with every tick's finish order.
//
// Every tick is checked against its graph: each task finishes exactly
// once and after all of its predecessors. Scenario assertions add
// targeted checks on top:
//
//	assertions:
//	  - type: edge
//	    scheduler: physics
//	    from: integrate
//	    to: collide
//	  - type: concurrent
//	    scheduler: physics
//	    from: collide
//	    to: audio
//
// Golden files under testdata/golden capture graphs and tick counts in
// canonical JSON. Finish order is captured only for single-worker
// scenarios, where dispatch order is fixed.
package harness
