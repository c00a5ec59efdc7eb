package pattern

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExclusionSet_Excludes mirrors the common /etc noise exclusions
func TestExclusionSet_Excludes(t *testing.T) {
	set := NewExclusionSet("/etc/ssh/%%", "/etc/", "/etc/ssl/openssl.cnf", "/")

	tests := []struct {
		path     string
		excluded bool
	}{
		{"/etc/ssh/ssh_config", true},
		{"/etc/passwd", true},
		{"/etc/group", true},
		{"/etc/ssl/openssl.cnf", true},
		{"/etc/ssl/certs/", false},
		{"/etc/ssl/certs/ca.pem", false},
		{"/tmp", true},
		{"/tmp/file", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.excluded, set.Excludes(tt.path))
		})
	}
}

func TestExclusionSet_LiteralContainment(t *testing.T) {
	set := NewExclusionSet("/var/log")

	assert.True(t, set.Excludes("/var/log"))
	assert.True(t, set.Excludes("/var/log/syslog"))
	assert.True(t, set.Excludes("/var/log/nginx/access.log"))
	assert.False(t, set.Excludes("/var/logger"))
	assert.False(t, set.Excludes("/var"))
}

func TestExclusionSet_AddIsIdempotent(t *testing.T) {
	set := NewExclusionSet()
	require.NoError(t, set.Add("/etc/%%"))
	require.NoError(t, set.Add("/etc/%%"))
	require.NoError(t, set.Add("/var/log"))
	require.NoError(t, set.Add("/var/log"))
	require.NoError(t, set.Add(""))

	assert.Equal(t, 2, set.Len())

	set.Reset()
	assert.Equal(t, 0, set.Len())
	assert.False(t, set.Excludes("/etc/passwd"))
}

// TestExclusionSet_Resolve tests containment after wildcard resolution
func TestExclusionSet_Resolve(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cache", "deep"), 0755))

	set := NewExclusionSet(root + "/%")
	deep := filepath.Join(root, "cache", "deep", "file")

	// Before resolution only the direct match is excluded
	assert.True(t, set.Excludes(filepath.Join(root, "cache")))
	assert.False(t, set.Excludes(deep))

	set.Resolve()
	assert.True(t, set.Excludes(deep))
}

// TestExclusionDominatesInclusion checks that no included path escapes an
// exclusion that contains it.
func TestExclusionDominatesInclusion(t *testing.T) {
	includes := []string{"/", "/etc", "/etc/ssh", "/home/alice"}
	excludes := []string{"/etc/ssh", "/home/alice/.cache", "/proc"}
	events := []string{
		"/etc/ssh/sshd_config",
		"/etc/ssh",
		"/home/alice/.cache/thumbs/1.png",
		"/proc/1/status",
		"/etc/hosts",
		"/home/alice/notes.txt",
	}

	set := NewExclusionSet(excludes...)
	for _, inc := range includes {
		for _, ev := range events {
			included := Contains(inc, ev)
			fires := included && !set.Excludes(ev)

			for _, ex := range excludes {
				if Contains(ex, ev) {
					assert.False(t, fires, "include=%s event=%s exclude=%s", inc, ev, ex)
				}
			}
		}
	}
}
