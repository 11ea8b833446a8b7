package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"time"

	"runcapture/internal/run"
	"runcapture/pkg/outputindex"
)

// ErrIndexMismatch is returned when the index holds more records than the
// output log holds lines.
var ErrIndexMismatch = errors.New("output index has more records than output lines")

// Entry is one captured line together with its index record.
type Entry struct {
	Time   time.Time
	Stream outputindex.Stream
	Line   []byte // includes the trailing newline, if any
}

// Playback returns the captured output of r in completion order. Every
// iteration reopens the files and starts from the beginning. The files are
// opened while holding the run's capture lock; reading happens without it.
//
// A line without a matching index record ends the sequence with an error
// wrapping outputindex.ErrTruncated.
func Playback(r *run.Run) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		output, index, err := openForPlayback(r)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		defer func() {
			_ = output.Close()
			_ = index.Close()
		}()

		lines := bufio.NewReader(output)
		records := bufio.NewReader(index)
		for n := 1; ; n++ {
			line, err := lines.ReadBytes('\n')
			if len(line) == 0 {
				if err != io.EOF {
					yield(Entry{}, fmt.Errorf("failed to read output line %d: %w", n, err))
					return
				}
				if _, err := outputindex.ReadRecord(records); err != io.EOF {
					if err == nil {
						err = ErrIndexMismatch
					}
					yield(Entry{}, fmt.Errorf("after %d output lines: %w", n-1, err))
				}
				return
			}
			if err != nil && err != io.EOF {
				yield(Entry{}, fmt.Errorf("failed to read output line %d: %w", n, err))
				return
			}

			rec, err := outputindex.ReadRecord(records)
			if err == io.EOF {
				err = fmt.Errorf("index ended before output line %d: %w", n, outputindex.ErrTruncated)
			}
			if err != nil {
				yield(Entry{}, err)
				return
			}

			if !yield(Entry{Time: rec.Time, Stream: rec.Stream, Line: line}, nil) {
				return
			}
		}
	}
}

func openForPlayback(r *run.Run) (*os.File, *os.File, error) {
	mu := lockFor(r)
	mu.Lock()
	defer mu.Unlock()

	output, err := os.Open(r.PathFor(run.OutputName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output file: %w", err)
	}
	index, err := os.Open(r.PathFor(run.OutputIndexName))
	if err != nil {
		_ = output.Close()
		return nil, nil, fmt.Errorf("failed to open output index file: %w", err)
	}
	return output, index, nil
}

// Filter keeps only the entries of the given streams. Errors are passed
// through.
func Filter(seq iter.Seq2[Entry, error], streams ...outputindex.Stream) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for e, err := range seq {
			if err == nil && !slices.Contains(streams, e.Stream) {
				continue
			}
			if !yield(e, err) {
				return
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, error) {
	var entries []Entry
	for e, err := range seq {
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
