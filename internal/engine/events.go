package engine

import (
	"github.com/serval-engine/serval/internal/attributes"
	"github.com/serval-engine/serval/internal/persist"
)

// StateEvents is the callback set of a game-state class.
//
// Enter and Leave run at the end-of-tick sync point when the state stack
// changes. The load and save callbacks run inside Host.Load and Host.Save.
type StateEvents interface {
	OnEnter(rt *Runtime, attrs *attributes.Attributes)
	OnLeave(rt *Runtime)
	OnLoadBegin(rt *Runtime)
	OnLoad(rt *Runtime, r *persist.SectionReader)
	OnLoadEnd(rt *Runtime)
	OnSaveBegin(rt *Runtime)
	OnSave(rt *Runtime, w *persist.Section)
	OnSaveEnd(rt *Runtime)
}

// SystemEvents is the callback set of a system.
type SystemEvents interface {
	// OnCreate runs right after registration. Systems add their tasks here.
	OnCreate(setup *SystemSetup)
	// OnDestroy runs before the system is removed, after which its tasks
	// are removed too.
	OnDestroy(setup *SystemSetup)
	OnReset(setup *SystemSetup)
	OnActivate(rt *Runtime)
	OnDeactivate(rt *Runtime)
	// OnLoad and OnSave run for active and inactive systems alike.
	OnLoad(rt *Runtime, r *persist.SectionReader)
	OnSave(rt *Runtime, w *persist.Section)
}

// StateFactory creates a game-state instance.
type StateFactory func() StateEvents

// SystemFactory creates a system instance.
type SystemFactory func() SystemEvents

// BaseState implements StateEvents with no-ops, for embedding.
type BaseState struct{}

func (BaseState) OnEnter(*Runtime, *attributes.Attributes) {}
func (BaseState) OnLeave(*Runtime)                         {}
func (BaseState) OnLoadBegin(*Runtime)                     {}
func (BaseState) OnLoad(*Runtime, *persist.SectionReader)  {}
func (BaseState) OnLoadEnd(*Runtime)                       {}
func (BaseState) OnSaveBegin(*Runtime)                     {}
func (BaseState) OnSave(*Runtime, *persist.Section)        {}
func (BaseState) OnSaveEnd(*Runtime)                       {}

// BaseSystem implements SystemEvents with no-ops, for embedding.
type BaseSystem struct{}

func (BaseSystem) OnCreate(*SystemSetup)                   {}
func (BaseSystem) OnDestroy(*SystemSetup)                  {}
func (BaseSystem) OnReset(*SystemSetup)                    {}
func (BaseSystem) OnActivate(*Runtime)                     {}
func (BaseSystem) OnDeactivate(*Runtime)                   {}
func (BaseSystem) OnLoad(*Runtime, *persist.SectionReader) {}
func (BaseSystem) OnSave(*Runtime, *persist.Section)       {}
