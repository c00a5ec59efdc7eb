package subscribers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/inotify"
	"github.com/cuemby/lookout/pkg/storage"
	"github.com/cuemby/lookout/pkg/types"
)

// FileEventsName is the file_events subscriber name
const FileEventsName = "file_events"

// FileEvents records file changes under the configured path categories
type FileEvents struct {
	base

	mu    sync.RWMutex
	paths map[string][]string
}

// NewFileEvents creates the file_events subscriber
func NewFileEvents(store storage.Store, paths map[string][]string) *FileEvents {
	s := &FileEvents{base: newBase(FileEventsName, inotify.PublisherName, store)}
	s.SetPaths(paths)
	return s
}

// SetPaths replaces the category to pattern map. It takes effect on the
// next Init, which the bus runs on Reload.
func (s *FileEvents) SetPaths(paths map[string][]string) {
	cp := make(map[string][]string, len(paths))
	for category, patterns := range paths {
		cp[category] = append([]string(nil), patterns...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = cp
}

// Init subscribes once per configured pattern
func (s *FileEvents) Init(r events.Registrar) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]string, 0, len(s.paths))
	for category := range s.paths {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		for _, path := range s.paths[category] {
			raw := r.NewSubscriptionContext()
			sc, ok := raw.(*inotify.SubscriptionContext)
			if !ok {
				return fmt.Errorf("%w: %T", events.ErrContextType, raw)
			}
			sc.Category = category
			sc.Path = path
			if err := r.Subscribe(sc, events.Typed(s.callback)); err != nil {
				return fmt.Errorf("failed to subscribe %s: %w", path, err)
			}
		}
	}
	return nil
}

func (s *FileEvents) callback(ec *inotify.EventContext, sc *inotify.SubscriptionContext) error {
	ev := &types.FileEvent{
		Target:   ec.Path,
		Category: sc.Category,
		Action:   ec.Action.String(),
		Time:     ec.EventTime(),
	}
	return s.persist(ev.Time, ev.Row())
}
