package sched

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceWritesLinesAndCSV(t *testing.T) {
	var out bytes.Buffer
	tr := NewTrace(&out)
	path := filepath.Join(t.TempDir(), "trace.csv")
	require.NoError(t, tr.EnableCSVLogging(path))

	ch := make(chan StatusEvent, 2)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ch <- StatusEvent{Time: at, Kind: StatusDispatch, TaskID: 3, Level: 2}
	ch <- StatusEvent{Time: at, Kind: StatusSleep, TaskID: 3, Level: 2}
	close(ch)

	require.NoError(t, tr.Run(context.Background(), ch))

	assert.Contains(t, out.String(), "Dispatch")
	assert.Contains(t, out.String(), "Task: 0003, Level: 2")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"timestamp", "event", "task_id", "level"}, records[0])
	assert.Equal(t, []string{at.Format(time.RFC3339Nano), "Dispatch", "3", "2"}, records[1])
	assert.Equal(t, "Sleep", records[2][1])
}

func TestTraceStopsOnCancel(t *testing.T) {
	tr := NewTrace(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, tr.Run(ctx, make(chan StatusEvent)))
}

func TestTraceBadPath(t *testing.T) {
	tr := NewTrace(nil)
	assert.Error(t, tr.EnableCSVLogging(filepath.Join(t.TempDir(), "missing", "trace.csv")))
}
