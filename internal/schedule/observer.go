package schedule

// Observer is notified around every task run. Calls arrive from worker
// goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	TaskStarted(scheduler string, tick uint64, task string)
	TaskFinished(scheduler string, tick uint64, task string)
}

type nopObserver struct{}

func (nopObserver) TaskStarted(string, uint64, string)  {}
func (nopObserver) TaskFinished(string, uint64, string) {}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Started  func(scheduler string, tick uint64, task string)
	Finished func(scheduler string, tick uint64, task string)
}

func (o ObserverFuncs) TaskStarted(scheduler string, tick uint64, task string) {
	if o.Started != nil {
		o.Started(scheduler, tick, task)
	}
}

func (o ObserverFuncs) TaskFinished(scheduler string, tick uint64, task string) {
	if o.Finished != nil {
		o.Finished(scheduler, tick, task)
	}
}
