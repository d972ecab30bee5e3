package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, envPath string, p *Processor) *ConfigWatcher {
	t.Helper()
	cw, err := NewConfigWatcher(&Config{EnvFile: envPath, Processor: p})
	require.NoError(t, err)
	t.Cleanup(cw.Stop)
	return cw
}

func TestConfigWatcherHandleEventsReloadsProcessor(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("SQUARE_ACCESS_TOKEN=old\n"), 0o600))

	p, err := NewProcessor(map[string]string{EnvAccessToken: "old"})
	require.NoError(t, err)

	cw := newTestWatcher(t, envPath, p)

	reloaded := make(chan []string, 1)
	cw.SetReloadCallback(func(changed []string) { reloaded <- changed })

	events := make(chan fsnotify.Event, 2)
	errs := make(chan error, 1)
	go cw.handleEvents(events, errs)

	require.NoError(t, os.WriteFile(envPath, []byte("SQUARE_ACCESS_TOKEN=new\nSQUARE_TEST_MODE=true\n"), 0o600))
	events <- fsnotify.Event{Name: filepath.Join(dir, "other.txt"), Op: fsnotify.Write}
	events <- fsnotify.Event{Name: envPath, Op: fsnotify.Write}

	select {
	case changed := <-reloaded:
		assert.ElementsMatch(t, []string{EnvAccessToken, EnvTestMode}, changed)
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback not invoked")
	}

	require.Eventually(t, func() bool {
		return p.Active().TestMode
	}, time.Second, 10*time.Millisecond)
	p.SetTestMode(false)
	assert.Equal(t, "new", p.Active().AccessToken)
}

func TestConfigWatcherIgnoresInvalidReload(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("SQUARE_TEST_MODE=banana\nSQUARE_ACCESS_TOKEN=new\n"), 0o600))

	p, err := NewProcessor(map[string]string{EnvAccessToken: "old"})
	require.NoError(t, err)

	cw := newTestWatcher(t, envPath, p)
	cw.ReloadConfig()

	assert.Equal(t, "old", p.Active().AccessToken)
}
