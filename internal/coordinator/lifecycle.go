package coordinator

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// Coordinator lifecycle states. A coordinator sits idle between ticks,
// fetches under the account lock, publishes a merged snapshot and
// returns to idle. There is no terminal state: shutdown just stops the
// ticks.
const (
	StateIdle     = "idle"
	StateFetching = "fetching"
	StateMerged   = "merged"
)

const (
	eventFetch  = "fetch"
	eventMerge  = "merge"
	eventSettle = "settle"
	eventAbort  = "abort"
)

// lifecycle guards the refresh cycle of one coordinator.
type lifecycle struct {
	mu  sync.Mutex
	fsm *fsm.FSM
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		fsm: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: eventFetch, Src: []string{StateIdle}, Dst: StateFetching},
				{Name: eventMerge, Src: []string{StateFetching}, Dst: StateMerged},
				{Name: eventSettle, Src: []string{StateMerged}, Dst: StateIdle},
				{Name: eventAbort, Src: []string{StateFetching}, Dst: StateIdle},
			},
			fsm.Callbacks{},
		),
	}
}

// begin moves idle -> fetching. Returns false when a cycle is already in
// flight; the superseded tick is simply dropped.
func (l *lifecycle) begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fsm.Event(context.Background(), eventFetch) == nil
}

// merged moves fetching -> merged -> idle after a snapshot was published.
func (l *lifecycle) merged() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.fsm.Event(context.Background(), eventMerge)
	_ = l.fsm.Event(context.Background(), eventSettle)
}

// abort moves fetching -> idle after a failed cycle.
func (l *lifecycle) abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.fsm.Event(context.Background(), eventAbort)
}

// current returns the lifecycle state for introspection endpoints.
func (l *lifecycle) current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fsm.Current()
}
