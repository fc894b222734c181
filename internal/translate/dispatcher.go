package translate

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Dispatcher runs conversion jobs asynchronously while a single traversal
// worker keeps walking the hierarchy. It is only engaged at thread count
// zero; the per-context locks are enabled whenever a dispatcher exists.
type Dispatcher struct {
	group errgroup.Group
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{}
	d.group.SetLimit(runtime.GOMAXPROCS(0))
	return d
}

// Run schedules one conversion job.
func (d *Dispatcher) Run(job func()) {
	d.group.Go(func() error {
		job()
		return nil
	})
}

// Wait blocks until every scheduled job has finished.
func (d *Dispatcher) Wait() {
	_ = d.group.Wait()
}
