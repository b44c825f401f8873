package sched

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Trace prints scheduler status events and optionally records them as CSV.
type Trace struct {
	out io.Writer

	// logging-related
	csvFile   *os.File
	csvWriter *csv.Writer
}

// NewTrace creates a trace printing one line per event to out. A nil out
// prints nothing.
func NewTrace(out io.Writer) *Trace {
	if out == nil {
		out = io.Discard
	}
	return &Trace{out: out}
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (tr *Trace) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"timestamp", "event", "task_id", "level"}); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	tr.csvFile = f
	tr.csvWriter = w
	return nil
}

// Run consumes events until ch is closed or ctx is done.
func (tr *Trace) Run(ctx context.Context, ch <-chan StatusEvent) error {
	defer tr.close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := tr.handleEvent(ev); err != nil {
				return err
			}
		}
	}
}

func (tr *Trace) close() {
	if tr.csvFile != nil {
		tr.csvWriter.Flush()
		tr.csvFile.Close()
		tr.csvFile = nil
	}
}

func (tr *Trace) handleEvent(ev StatusEvent) error {
	// an auxiliary function to center the event kind in the output
	center := func(str string, width int) string {
		spaces := int(float64(width-len(str)) / 2)
		return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
	}

	fmt.Fprintf(tr.out, "%s [%s] => Task: %04d, Level: %d\n",
		ev.Time.Format("Jan 02 15:04:05.000"),
		center(ev.Kind.String(), 10),
		ev.TaskID,
		ev.Level,
	)

	// CSV output
	if tr.csvWriter != nil {
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			strconv.Itoa(ev.Level),
		}
		if err := tr.csvWriter.Write(rec); err != nil {
			return err
		}
		tr.csvWriter.Flush()
		return tr.csvWriter.Error()
	}
	return nil
}
