package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load("")
	assert.Equal(t, 10, cfg.TickMS)
	assert.Equal(t, 2, cfg.TaskTimerPeriod)
	assert.Equal(t, 3, cfg.MaxLevel)
	assert.Equal(t, 3, cfg.MainLevel, "main level defaults to the top level")
	assert.Equal(t, 32768, cfg.StackBytes)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval())

	assert.Equal(t, cfg, Load(filepath.Join(t.TempDir(), "missing.yml")))
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := "tick_ms: 5\ntask_timer_period: 4\nmax_level: 7\nmain_level: 2\nstack_limit: 65536\ntrace_csv: trace.csv\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.TickMS)
	assert.Equal(t, 4, cfg.TaskTimerPeriod)
	assert.Equal(t, 7, cfg.MaxLevel)
	assert.Equal(t, 2, cfg.MainLevel)
	assert.Equal(t, 65536, cfg.StackLimit)
	assert.Equal(t, "trace.csv", cfg.TraceCSV)
	assert.Equal(t, 32768, cfg.StackBytes)
}

func TestLoadFileClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := "tick_ms: -1\ntask_timer_period: 0\nmax_level: 2\nmain_level: 9\nstack_bytes: 12\nstack_limit: -5\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.TickMS)
	assert.Equal(t, 2, cfg.TaskTimerPeriod)
	assert.Equal(t, 2, cfg.MaxLevel)
	assert.Equal(t, 2, cfg.MainLevel)
	assert.Equal(t, 32768, cfg.StackBytes)
	assert.Zero(t, cfg.StackLimit)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("tick_ms: [1, 2\n"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
	assert.Equal(t, Default(), Load(path))
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("tick_ms: 10\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Config, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c Config) {
			select {
			case got <- c:
			default:
			}
		}, nil)
	}()

	// the watcher registers asynchronously; keep writing until it reports
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("tick_ms: 25\n"), 0o644); err != nil {
			return false
		}
		select {
		case c := <-got:
			return c.TickMS == 25
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "config.yml")

	var reported []error
	err := Watch(context.Background(), path, func(Config) {
		t.Error("no reload expected")
	}, func(err error) {
		reported = append(reported, err)
	})

	assert.NoError(t, err)
	require.Len(t, reported, 1)
	assert.True(t, errors.Is(reported[0], fs.ErrNotExist))
	assert.Equal(t, Default(), Load(path))
}
