package processor

import (
	"context"
	"sync"

	"github.com/snow-ghost/llmbench/core"
)

// StateObserver is notified of every run state transition.
type StateObserver func(ctx context.Context, cfg core.RunConfig, from, to core.RunState)

var transitions = map[core.RunState][]core.RunState{
	core.RunPending: {core.RunRunning, core.RunFailed},
	core.RunRunning: {core.RunCompleted, core.RunFailed, core.RunTimedOut},
}

// run tracks the lifecycle of one Execute call.
type run struct {
	mu        sync.Mutex
	state     core.RunState
	config    core.RunConfig
	observers []StateObserver
}

func newRun(cfg core.RunConfig, observers []StateObserver) *run {
	return &run{state: core.RunPending, config: cfg, observers: observers}
}

// moveTo performs a transition. Illegal transitions panic: they can only
// come from a bug in this package.
func (r *run) moveTo(ctx context.Context, to core.RunState) {
	r.mu.Lock()
	from := r.state
	allowed := false
	for _, s := range transitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		r.mu.Unlock()
		panic("processor: illegal run transition " + string(from) + " -> " + string(to))
	}
	r.state = to
	r.mu.Unlock()

	for _, obs := range r.observers {
		obs(ctx, r.config, from, to)
	}
}

func (r *run) State() core.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
