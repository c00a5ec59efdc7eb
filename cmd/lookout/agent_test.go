package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/lookout/pkg/audit"
	"github.com/cuemby/lookout/pkg/config"
	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/inotify"
	"github.com/cuemby/lookout/pkg/subscribers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, watched string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Audit.Disable = true
	cfg.Server = config.ServerConfig{}
	cfg.Events.Expiry = 0
	cfg.Events.FileInterval = 20 * time.Millisecond
	cfg.FilePaths = map[string][]string{"watched": {watched + "/%%"}}
	return cfg
}

func storedFiles(t *testing.T, a *agent) int {
	t.Helper()
	n, err := a.store.Count(subscribers.FileEventsName)
	require.NoError(t, err)
	return n
}

func TestAgentRecordsFileEvents(t *testing.T) {
	dir := t.TempDir()
	a, err := newAgent(testConfig(t, dir))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer a.Stop()

	require.Eventually(t, func() bool {
		st, err := a.bus.State(inotify.PublisherName)
		return err == nil && st == events.StateRunning && contains(a.files.Watching(), dir)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		return storedFiles(t, a) > 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestAgentReloadPaths(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	a, err := newAgent(testConfig(t, first))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer a.Stop()

	a.Reload(testConfig(t, second))

	require.Eventually(t, func() bool {
		return contains(a.files.Watching(), second)
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, contains(a.files.Watching(), first))

	require.NoError(t, os.WriteFile(filepath.Join(second, "b.txt"), []byte("x"), 0o644))
	assert.Eventually(t, func() bool {
		return storedFiles(t, a) > 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestNewAgentWithoutAudit(t *testing.T) {
	a, err := newAgent(testConfig(t, t.TempDir()))
	require.NoError(t, err)
	defer a.Stop()

	assert.Nil(t, a.driver)
	names := make([]string, 0)
	for _, st := range a.bus.Status() {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{inotify.PublisherName}, names)
}

func TestNewAgentRegistersAuditSubscribers(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Audit.Disable = false
	cfg.Audit.AllowProcessEvents = true
	cfg.Audit.AllowFIMEvents = true
	cfg.Audit.FIM.Include = []string{"/etc"}

	a, err := newAgent(cfg)
	require.NoError(t, err)
	defer a.Stop()

	require.NotNil(t, a.driver)
	subs, err := a.bus.Subscriptions(audit.PublisherName)
	require.NoError(t, err)
	var names []string
	for _, sub := range subs {
		names = append(names, sub.Subscriber())
	}
	assert.ElementsMatch(t, []string{subscribers.ProcessEventsName, subscribers.FimEventsName}, names)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
