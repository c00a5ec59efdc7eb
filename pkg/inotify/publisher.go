package inotify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/pattern"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// PublisherName is the name the file publisher registers under
const PublisherName = "inotify"

const (
	// DefaultMaxWatches caps the number of watched paths
	DefaultMaxWatches = 8192

	// DefaultInterval bounds how long one Run waits for a change
	DefaultInterval = 200 * time.Millisecond
)

// SubscriptionContext selects file changes beneath Path. Path may contain
// '%' (one path segment) and '%%' (anything below). A trailing '/' limits
// the subscription to the directory and its direct children. A zero Mask
// matches every action.
type SubscriptionContext struct {
	Category string
	Path     string
	Mask     Action
}

// resolvedPath is a subscription path expanded against the filesystem.
// A shallow path only matches its roots and their direct children.
type resolvedPath struct {
	roots   []string
	shallow bool
}

// EventContext is one file change
type EventContext struct {
	events.EventBase
	Path   string
	Action Action
}

// Publisher watches files and directories with fsnotify
type Publisher struct {
	logger     zerolog.Logger
	interval   time.Duration
	maxWatches int

	mu         sync.RWMutex
	watcher    *fsnotify.Watcher
	exclusions *pattern.ExclusionSet
	resolved   map[*SubscriptionContext]resolvedPath
	recursive  []string
	desired    map[string]struct{}
	watched    map[string]struct{}
}

// Option configures a Publisher
type Option func(*Publisher)

// WithExclusions sets the globs whose matches never fire
func WithExclusions(globs ...string) Option {
	return func(p *Publisher) {
		for _, g := range globs {
			if err := p.exclusions.Add(g); err != nil {
				p.logger.Warn().Err(err).Str("pattern", g).Msg("Invalid exclude path")
			}
		}
	}
}

// WithInterval sets how long one Run waits for a change
func WithInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxWatches caps the number of watched paths
func WithMaxWatches(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.maxWatches = n
		}
	}
}

// NewPublisher creates the file publisher
func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{
		logger:     log.WithPublisher(PublisherName),
		interval:   DefaultInterval,
		maxWatches: DefaultMaxWatches,
		exclusions: pattern.NewExclusionSet(),
		resolved:   make(map[*SubscriptionContext]resolvedPath),
		desired:    make(map[string]struct{}),
		watched:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Name() string { return PublisherName }

func (p *Publisher) NewSubscriptionContext() events.SubscriptionContext {
	return &SubscriptionContext{}
}

// Cooldown is short because Run already waits up to the interval
func (p *Publisher) Cooldown() time.Duration { return time.Millisecond }

func (p *Publisher) SetUp() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.watcher = w
	p.syncWatches()
	return nil
}

// SetExclusions replaces the exclusion globs. They are resolved on the
// next Configure.
func (p *Publisher) SetExclusions(globs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exclusions.Reset()
	for _, g := range globs {
		if err := p.exclusions.Add(g); err != nil {
			p.logger.Warn().Err(err).Str("pattern", g).Msg("Invalid exclude path")
		}
	}
}

// Configure expands every subscription path against the filesystem and
// updates the watch set. Paths are deduplicated, so repeated patterns
// produce one watch.
func (p *Publisher) Configure(subs []*events.Subscription) {
	resolved := make(map[*SubscriptionContext]resolvedPath, len(subs))
	var recursive []string
	var paths []string

	for _, sub := range subs {
		sc, ok := sub.Context().(*SubscriptionContext)
		if !ok || sc.Path == "" {
			continue
		}

		roots, err := pattern.Expand(sc.Path)
		if err != nil {
			p.logger.Warn().Err(err).Str("path", sc.Path).Msg("Failed to expand subscription path")
			continue
		}
		recursivePath := pattern.IsRecursive(sc.Path)
		resolved[sc] = resolvedPath{
			roots:   roots,
			shallow: !recursivePath && strings.HasSuffix(sc.Path, "/"),
		}

		if recursivePath {
			recursive = append(recursive, roots...)
			for _, root := range roots {
				paths = append(paths, p.walkDirs(root)...)
			}
			continue
		}
		paths = append(paths, roots...)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.exclusions.Resolve()
	p.resolved = resolved
	p.recursive = pattern.Dedup(recursive)

	p.desired = make(map[string]struct{})
	for _, path := range pattern.Dedup(paths) {
		if p.exclusions.Excludes(path) {
			continue
		}
		if len(p.desired) >= p.maxWatches {
			p.logger.Warn().Int("max", p.maxWatches).Msg("Watch limit reached")
			break
		}
		p.desired[path] = struct{}{}
	}

	if p.watcher != nil {
		p.syncWatches()
	}
}

// walkDirs returns root and every directory beneath it
func (p *Publisher) walkDirs(root string) []string {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if len(dirs) >= p.maxWatches {
				return filepath.SkipAll
			}
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		p.logger.Debug().Err(err).Str("root", root).Msg("Failed to walk directory")
	}
	return dirs
}

// syncWatches must be called with mu held
func (p *Publisher) syncWatches() {
	for path := range p.watched {
		if _, ok := p.desired[path]; ok {
			continue
		}
		if err := p.watcher.Remove(path); err != nil {
			p.logger.Debug().Err(err).Str("path", path).Msg("Failed to remove watch")
		}
		delete(p.watched, path)
	}

	for path := range p.desired {
		if _, ok := p.watched[path]; ok {
			continue
		}
		if err := p.watcher.Add(path); err != nil {
			p.logger.Debug().Err(err).Str("path", path).Msg("Failed to add watch")
			continue
		}
		p.watched[path] = struct{}{}
	}

	metrics.RegisterComponent("inotify_watches", true, fmt.Sprintf("%d watches", len(p.watched)))
	p.logger.Debug().Int("watches", len(p.watched)).Msg("Watches updated")
}

// Watching returns the paths currently watched
func (p *Publisher) Watching() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.watched))
	for path := range p.watched {
		out = append(out, path)
	}
	return pattern.Dedup(out)
}

// Run waits up to the interval for changes and returns every change
// available at that point.
func (p *Publisher) Run(ctx context.Context) ([]events.EventContext, error) {
	p.mu.RLock()
	w := p.watcher
	p.mu.RUnlock()
	if w == nil {
		return nil, errors.New("watcher not set up")
	}

	var out []events.EventContext

	select {
	case <-ctx.Done():
		return nil, nil
	case err, ok := <-w.Errors:
		if !ok {
			return nil, events.ErrPublisherDone
		}
		p.logger.Debug().Err(err).Msg("Watcher error")
		return nil, nil
	case <-time.After(p.interval):
		return nil, nil
	case ev, ok := <-w.Events:
		if !ok {
			return nil, events.ErrPublisherDone
		}
		out = p.convert(out, ev)
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return out, nil
			}
			out = p.convert(out, ev)
		default:
			return out, nil
		}
	}
}

func (p *Publisher) convert(out []events.EventContext, ev fsnotify.Event) []events.EventContext {
	now := time.Now()
	for _, action := range actionsFromOp(ev.Op) {
		if action == ActionCreated {
			p.watchNewDir(ev.Name)
		}
		out = append(out, &EventContext{
			EventBase: events.EventBase{Time: now},
			Path:      ev.Name,
			Action:    action,
		})
	}
	return out
}

// watchNewDir adds a watch for a directory created under a recursive root
func (p *Publisher) watchNewDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher == nil || p.exclusions.Excludes(path) {
		return
	}
	for _, root := range p.recursive {
		if !pattern.Contains(root, path) {
			continue
		}
		if err := p.watcher.Add(path); err == nil {
			p.desired[path] = struct{}{}
			p.watched[path] = struct{}{}
		}
		return
	}
}

func (p *Publisher) TearDown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher == nil {
		return
	}
	if err := p.watcher.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to close watcher")
	}
	p.watcher = nil
	p.watched = make(map[string]struct{})
}

// ShouldFire matches the action mask, then requires the path to be inside
// one of the subscription's resolved roots and outside every exclusion.
func (p *Publisher) ShouldFire(sc events.SubscriptionContext, ec events.EventContext) bool {
	s, ok := sc.(*SubscriptionContext)
	if !ok {
		return false
	}
	e, ok := ec.(*EventContext)
	if !ok {
		return false
	}
	if s.Mask != 0 && s.Mask&e.Action == 0 {
		return false
	}

	p.mu.RLock()
	rp := p.resolved[s]
	excluded := p.exclusions.Excludes(e.Path)
	p.mu.RUnlock()

	if excluded {
		return false
	}
	for _, root := range rp.roots {
		if rp.shallow {
			if e.Path == root || filepath.Dir(e.Path) == root {
				return true
			}
			continue
		}
		if pattern.Contains(root, e.Path) {
			return true
		}
	}
	return false
}
