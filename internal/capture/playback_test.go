package capture

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"runcapture/internal/run"
	"runcapture/pkg/outputindex"
)

// writeCapture writes output and index files directly.
func writeCapture(t *testing.T, r *run.Run, output string, records ...outputindex.Record) {
	t.Helper()
	var index []byte
	for _, rec := range records {
		index = outputindex.AppendRecord(index, rec)
	}
	require.NoError(t, os.WriteFile(r.PathFor(run.OutputName), []byte(output), 0600))
	require.NoError(t, os.WriteFile(r.PathFor(run.OutputIndexName), index, 0600))
}

func TestPlayback(t *testing.T) {
	r := newTestRun(t)
	base := time.Date(2025, 1, 7, 12, 0, 0, 0, time.UTC)
	writeCapture(t, r, "hello\noops\n",
		outputindex.NewRecord(base, outputindex.Stdout),
		outputindex.NewRecord(base.Add(time.Millisecond), outputindex.Stderr),
	)

	entries, err := Collect(Playback(r))

	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "hello\n", string(entries[0].Line))
	require.Equal(t, outputindex.Stdout, entries[0].Stream)
	require.True(t, entries[0].Time.Equal(base))
	require.Equal(t, "oops\n", string(entries[1].Line))
	require.Equal(t, outputindex.Stderr, entries[1].Stream)
}

func TestPlayback_Restartable(t *testing.T) {
	r := newTestRun(t)
	captureShell(t, r, "echo a; echo b >&2; echo c", WithQuiet(true))
	seq := Playback(r)

	// Partially consume the first pass.
	for range seq {
		break
	}

	first, err := Collect(seq)
	require.NoError(t, err)
	second, err := Collect(seq)
	require.NoError(t, err)

	require.Len(t, first, 3)
	require.Equal(t, first, second)
}

func TestPlayback_Empty(t *testing.T) {
	r := newTestRun(t)
	writeCapture(t, r, "")

	entries, err := Collect(Playback(r))

	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPlayback_IndexShorterThanOutput(t *testing.T) {
	r := newTestRun(t)
	writeCapture(t, r, "one\ntwo\n", outputindex.NewRecord(time.Now(), outputindex.Stdout))

	entries, err := Collect(Playback(r))

	require.ErrorIs(t, err, outputindex.ErrTruncated)
	require.Len(t, entries, 1)
}

func TestPlayback_TruncatedRecord(t *testing.T) {
	r := newTestRun(t)
	rec := outputindex.Encode(outputindex.NewRecord(time.Now(), outputindex.Stdout))
	require.NoError(t, os.WriteFile(r.PathFor(run.OutputName), []byte("one\n"), 0600))
	require.NoError(t, os.WriteFile(r.PathFor(run.OutputIndexName), rec[:5], 0600))

	_, err := Collect(Playback(r))

	require.ErrorIs(t, err, outputindex.ErrTruncated)
}

func TestPlayback_IndexLongerThanOutput(t *testing.T) {
	r := newTestRun(t)
	now := time.Now()
	writeCapture(t, r, "one\n",
		outputindex.NewRecord(now, outputindex.Stdout),
		outputindex.NewRecord(now, outputindex.Stdout),
	)

	_, err := Collect(Playback(r))

	require.ErrorIs(t, err, ErrIndexMismatch)
}

func TestPlayback_LastLineWithoutNewline(t *testing.T) {
	r := newTestRun(t)
	now := time.Now()
	writeCapture(t, r, "one\ntwo",
		outputindex.NewRecord(now, outputindex.Stdout),
		outputindex.NewRecord(now, outputindex.Stderr),
	)

	entries, err := Collect(Playback(r))

	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "two", string(entries[1].Line))
}

func TestPlayback_MissingFiles(t *testing.T) {
	_, err := Collect(Playback(newTestRun(t)))

	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPlayback_EarlyBreak(t *testing.T) {
	r := newTestRun(t)
	now := time.Now()
	writeCapture(t, r, "a\nb\nc\n",
		outputindex.NewRecord(now, outputindex.Stdout),
		outputindex.NewRecord(now, outputindex.Stdout),
		outputindex.NewRecord(now, outputindex.Stdout),
	)

	count := 0
	for _, err := range Playback(r) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}

	require.Equal(t, 2, count)
}

func TestFilter(t *testing.T) {
	r := newTestRun(t)
	now := time.Now()
	writeCapture(t, r, "out\nerr\nout2\n",
		outputindex.NewRecord(now, outputindex.Stdout),
		outputindex.NewRecord(now, outputindex.Stderr),
		outputindex.NewRecord(now, outputindex.Stdout),
	)

	entries, err := Collect(Filter(Playback(r), outputindex.Stderr))

	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "err\n", string(entries[0].Line))
}

func TestPlayback_WhileCaptureOpen(t *testing.T) {
	r := newTestRun(t)
	s := New(r, WithLogger(discardLogger()), WithQuiet(true))
	cmd, proc := startShell(t, "echo ready; sleep 0.3")
	require.NoError(t, s.Open(proc))

	require.Eventually(t, func() bool {
		entries, err := Collect(s.Entries())
		return err == nil && len(entries) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.WaitAndClose(10*time.Second))
	require.NoError(t, cmd.Wait())
}
