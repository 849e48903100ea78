// Package devicetest provides an in-memory device for tests.
package devicetest

import (
	"context"
	"sync"

	"github.com/rahul/uipilot/internal/device"
)

// Fake records executed actions and serves a fixed snapshot.
// Failures maps an action type to the error returned when it is executed.
type Fake struct {
	mu       sync.Mutex
	platform string
	snapshot device.Snapshot
	executed []device.Action
	failures map[device.ActionType]error
	snaps    int
}

func New(snapshot device.Snapshot) *Fake {
	platform := snapshot.Platform
	if platform == "" {
		platform = "web"
	}
	return &Fake{
		platform: platform,
		snapshot: snapshot,
		failures: make(map[device.ActionType]error),
	}
}

var _ device.Device = (*Fake)(nil)

func (f *Fake) Platform() string {
	return f.platform
}

// FailOn makes every action of type t fail with err.
func (f *Fake) FailOn(t device.ActionType, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[t] = err
}

func (f *Fake) SetSnapshot(s device.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = s
}

func (f *Fake) Execute(_ context.Context, a device.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, a)
	if err := f.failures[a.Type]; err != nil {
		return &device.ActionError{Action: a, Err: err}
	}
	return nil
}

func (f *Fake) Snapshot(context.Context) (device.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps++
	return f.snapshot, nil
}

// Executed returns a copy of all actions executed so far.
func (f *Fake) Executed() []device.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]device.Action, len(f.executed))
	copy(out, f.executed)
	return out
}

// SnapshotCalls returns how many times Snapshot was called.
func (f *Fake) SnapshotCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps
}
