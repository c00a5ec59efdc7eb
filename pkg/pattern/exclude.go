package pattern

import (
	"path/filepath"
	"strings"
	"sync"
)

// ExclusionSet holds paths that never fire, regardless of what a
// subscription includes.
//
// Entries come in three shapes:
//   - a literal path excludes itself and everything beneath it
//   - a path with a trailing slash excludes the directory and its direct children
//   - a wildcard glob excludes regex matches, and after Resolve also
//     everything beneath the directories it currently expands to
type ExclusionSet struct {
	mu       sync.RWMutex
	entries  map[string]*Pattern
	literals map[string]struct{}
	resolved map[string]struct{}
	aliases  []*Pattern
}

// NewExclusionSet creates an exclusion set from the given globs
func NewExclusionSet(globs ...string) *ExclusionSet {
	s := &ExclusionSet{
		entries:  make(map[string]*Pattern),
		literals: make(map[string]struct{}),
		resolved: make(map[string]struct{}),
	}
	for _, g := range globs {
		_ = s.Add(g)
	}
	return s
}

// Add inserts a glob. Adding the same glob twice is a no-op.
func (s *ExclusionSet) Add(glob string) error {
	if glob == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[glob]; ok {
		return nil
	}
	if _, ok := s.literals[glob]; ok {
		return nil
	}

	if !HasWildcard(glob) && !strings.HasSuffix(glob, "/") {
		s.literals[filepath.Clean(glob)] = struct{}{}
		return nil
	}

	p, err := Compile(glob)
	if err != nil {
		return err
	}
	s.entries[glob] = p
	return nil
}

// Reset drops every entry
func (s *ExclusionSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Pattern)
	s.literals = make(map[string]struct{})
	s.resolved = make(map[string]struct{})
	s.aliases = nil
}

// Resolve expands the wildcard entries against the filesystem. Symlinked
// literals are recorded under both names.
func (s *ExclusionSet) Resolve() {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := make(map[string]struct{})
	var aliases []*Pattern
	for glob := range s.entries {
		if !HasWildcard(glob) {
			dir := filepath.Clean(glob)
			if real, err := filepath.EvalSymlinks(dir); err == nil && real != dir {
				if p, err := Compile(strings.TrimSuffix(real, "/") + "/"); err == nil {
					aliases = append(aliases, p)
				}
			}
			continue
		}
		paths, err := Expand(glob)
		if err != nil {
			continue
		}
		for _, p := range paths {
			resolved[p] = struct{}{}
			if real, err := filepath.EvalSymlinks(p); err == nil {
				resolved[real] = struct{}{}
			}
		}
	}
	for lit := range s.literals {
		if real, err := filepath.EvalSymlinks(lit); err == nil && real != lit {
			resolved[real] = struct{}{}
		}
	}
	s.resolved = resolved
	s.aliases = aliases
}

// Len returns the number of globs in the set
func (s *ExclusionSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) + len(s.literals)
}

// Excludes reports whether path is covered by any entry
func (s *ExclusionSet) Excludes(path string) bool {
	if path == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for lit := range s.literals {
		if Contains(lit, path) {
			return true
		}
	}
	for root := range s.resolved {
		if Contains(root, path) {
			return true
		}
	}
	for _, p := range s.entries {
		if p.Match(path) {
			return true
		}
	}
	for _, p := range s.aliases {
		if p.Match(path) {
			return true
		}
	}
	return false
}
