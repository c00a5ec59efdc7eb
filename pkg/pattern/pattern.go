package pattern

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// SegmentWildcard matches any run of characters within one path segment
	SegmentWildcard = "%"
	// RecursiveWildcard matches any run of characters across segments
	RecursiveWildcard = "%%"
)

// Pattern is a compiled path glob
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// HasWildcard reports whether the glob contains % or * tokens
func HasWildcard(glob string) bool {
	return strings.ContainsAny(glob, "%*")
}

// IsRecursive reports whether the glob ends in a recursive wildcard, for
// example /var/www/%%.
func IsRecursive(glob string) bool {
	return strings.HasSuffix(glob, "/"+RecursiveWildcard) || strings.HasSuffix(glob, "/**")
}

// Translate converts a path glob into an anchored regular expression.
//
// %% (or **) crosses directory boundaries, % (or *) stays inside one
// segment, and a trailing slash selects the directory and its direct
// children.
func Translate(glob string) string {
	var b strings.Builder
	b.WriteString("^")

	trailing := len(glob) > 1 && strings.HasSuffix(glob, "/")
	if glob == "/" {
		trailing = true
		glob = ""
	} else if trailing {
		glob = strings.TrimSuffix(glob, "/")
	}

	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '%', '*':
			if i+1 < len(glob) && glob[i+1] == c {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	if trailing {
		b.WriteString("(/[^/]*)?")
	}
	b.WriteString("$")
	return b.String()
}

// Compile translates and compiles a glob
func Compile(glob string) (*Pattern, error) {
	re, err := regexp.Compile(Translate(glob))
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %w", glob, err)
	}
	return &Pattern{raw: glob, re: re}, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(glob string) *Pattern {
	p, err := Compile(glob)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original glob
func (p *Pattern) String() string {
	return p.raw
}

// Match reports whether path matches the whole pattern
func (p *Pattern) Match(path string) bool {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	return p.re.MatchString(path)
}

// Contains reports whether child is parent or lives beneath it. The check
// is textual; neither path needs to exist.
func Contains(parent, child string) bool {
	if parent == "" || child == "" {
		return false
	}
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)

	if parent == child {
		return true
	}
	if parent == "/" {
		return strings.HasPrefix(child, "/")
	}
	return strings.HasPrefix(child, parent+"/")
}

// Expand resolves a glob against the filesystem.
//
// A glob without wildcards is returned as-is, whether or not it exists. A
// recursive glob resolves to its base directory, which the caller treats
// as a containment root. Other wildcards resolve to the currently existing
// matches only; directories created later are picked up on the next call.
func Expand(glob string) ([]string, error) {
	if glob == "" {
		return nil, nil
	}
	if !HasWildcard(glob) {
		return []string{filepath.Clean(glob)}, nil
	}

	if IsRecursive(glob) {
		base := glob[:strings.LastIndex(glob, "/")]
		if base == "" {
			base = "/"
		}
		if HasWildcard(base) {
			return Expand(base)
		}
		if _, err := os.Stat(base); err != nil {
			return nil, nil
		}
		return []string{filepath.Clean(base)}, nil
	}

	matches, err := doublestar.FilepathGlob(toDoublestar(glob))
	if err != nil {
		return nil, fmt.Errorf("failed to expand %q: %w", glob, err)
	}
	for i := range matches {
		matches[i] = filepath.Clean(matches[i])
	}
	sort.Strings(matches)
	return matches, nil
}

// Dedup returns the unique, sorted set of paths
func Dedup(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// toDoublestar rewrites a glob for doublestar. Only % and * are wildcards;
// every other doublestar metacharacter is escaped so it matches literally,
// as it does in Translate.
func toDoublestar(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '%', '*':
			if i+1 < len(glob) && glob[i+1] == c {
				b.WriteString("**")
				i++
			} else {
				b.WriteByte('*')
			}
		case '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
