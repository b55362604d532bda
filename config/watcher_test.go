package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testPoll    = 10 * time.Millisecond
	testTimeout = 2 * time.Second
)

// touch rewrites path and pushes its modification time forward so the
// change is visible regardless of filesystem timestamp resolution.
func touch(t *testing.T, path, content string, offset time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	mod := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func startReloader(t *testing.T, path string) *Reloader {
	t.Helper()
	r, err := NewReloader(path, DefaultConfig(),
		WithPollInterval(testPoll),
		WithDebounceDelay(0),
		WithReloaderLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Stop)
	return r
}

// --- Constructor ---

func TestNewReloader_Defaults(t *testing.T) {
	path := writeConfig(t, "streamer:\n  max_reads: 2\n")

	r, err := NewReloader(path, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, time.Second, r.pollInterval)
	assert.Equal(t, 100*time.Millisecond, r.debounceDelay)
	assert.Equal(t, DefaultEnvPrefix, r.envPrefix)
	assert.False(t, r.IsRunning())
	assert.Equal(t, DefaultConfig(), r.Current())
}

func TestNewReloader_EmptyPath(t *testing.T) {
	_, err := NewReloader("", DefaultConfig())
	assert.Error(t, err)
}

func TestNewReloader_NonExistentPathWarns(t *testing.T) {
	r, err := NewReloader(filepath.Join(t.TempDir(), "later.yaml"), DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, r)
}

// --- Start / Stop ---

func TestReloader_StartStop(t *testing.T) {
	path := writeConfig(t, "")
	r, err := NewReloader(path, DefaultConfig(), WithPollInterval(testPoll))
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start(context.Background()), "second start fails")

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()

	require.NoError(t, r.Start(context.Background()), "restart after stop")
	r.Stop()
}

func TestReloader_StopsWithContext(t *testing.T) {
	path := writeConfig(t, "")
	r, err := NewReloader(path, DefaultConfig(), WithPollInterval(testPoll))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	cancel()

	select {
	case <-r.done:
	case <-time.After(testTimeout):
		t.Fatal("poll loop did not exit on context cancel")
	}
	r.Stop()
}

// --- Reload ---

func TestReloader_PublishesValidChange(t *testing.T) {
	path := writeConfig(t, "streamer:\n  max_reads: 2\n")
	r := startReloader(t, path)

	touch(t, path, "streamer:\n  max_reads: 5\n", time.Second)

	select {
	case cfg := <-r.Updates():
		assert.Equal(t, 5, cfg.Streamer.MaxReads)
		assert.Same(t, cfg, r.Current())
	case <-time.After(testTimeout):
		t.Fatal("no config update published")
	}

	reloads, failures := r.Stats()
	assert.Equal(t, 1, reloads)
	assert.Equal(t, 0, failures)
}

func TestReloader_SkipsInvalidChange(t *testing.T) {
	path := writeConfig(t, "streamer:\n  max_reads: 2\n")
	r := startReloader(t, path)
	initial := r.Current()

	touch(t, path, "streamer:\n  max_reads: -4\n", time.Second)

	require.Eventually(t, func() bool {
		_, failures := r.Stats()
		return failures == 1
	}, testTimeout, testPoll)

	assert.Same(t, initial, r.Current())
	select {
	case <-r.Updates():
		t.Fatal("invalid config must not be published")
	default:
	}

	touch(t, path, "streamer:\n  max_reads: 9\n", 2*time.Second)
	select {
	case cfg := <-r.Updates():
		assert.Equal(t, 9, cfg.Streamer.MaxReads)
	case <-time.After(testTimeout):
		t.Fatal("recovery config not published")
	}
}

func TestReloader_KeepsOnlyNewestPending(t *testing.T) {
	path := writeConfig(t, "streamer:\n  max_reads: 1\n")
	r := startReloader(t, path)

	touch(t, path, "streamer:\n  max_reads: 2\n", time.Second)
	require.Eventually(t, func() bool {
		reloads, _ := r.Stats()
		return reloads == 1
	}, testTimeout, testPoll)

	touch(t, path, "streamer:\n  max_reads: 3\n", 2*time.Second)
	require.Eventually(t, func() bool {
		reloads, _ := r.Stats()
		return reloads == 2
	}, testTimeout, testPoll)

	cfg := <-r.Updates()
	assert.Equal(t, 3, cfg.Streamer.MaxReads)
	select {
	case <-r.Updates():
		t.Fatal("stale update left in channel")
	default:
	}
}

func TestReloader_DetectsCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.yaml")
	r := startReloader(t, path)

	touch(t, path, "workers:\n  queue_size: 12\n", time.Second)

	select {
	case cfg := <-r.Updates():
		assert.Equal(t, 12, cfg.Workers.QueueSize)
	case <-time.After(testTimeout):
		t.Fatal("created file not picked up")
	}
}
