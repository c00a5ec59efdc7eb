package procmon

import (
	"context"
	"time"

	"github.com/cuemby/lookout/pkg/events"
)

const (
	// DefaultInterval is the time between two snapshots
	DefaultInterval = 10 * time.Second

	ActionStarted = "started"
	ActionExited  = "exited"
	ActionOpened  = "opened"
	ActionClosed  = "closed"
)

// diff returns the values present only in cur and only in prev
func diff[K comparable, V any](prev, cur map[K]V) (added, removed []V) {
	for k, v := range cur {
		if _, ok := prev[k]; !ok {
			added = append(added, v)
		}
	}
	for k, v := range prev {
		if _, ok := cur[k]; !ok {
			removed = append(removed, v)
		}
	}
	return added, removed
}

// wait blocks for d or until ctx is done, reporting whether d elapsed
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func matchAction(actions []string, action string) bool {
	if len(actions) == 0 {
		return true
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// snapshotter is embedded by the polling publishers
type snapshotter struct {
	interval time.Duration
}

func (s snapshotter) Cooldown() time.Duration { return time.Millisecond }

func (s snapshotter) SetUp() error { return nil }

func (s snapshotter) Configure([]*events.Subscription) {}

func (s snapshotter) TearDown() {}
