// Package capture tees the stdout and stderr of a child process to the
// terminal and into a run's output log and output index, and plays the
// captured output back later.
package capture

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"runcapture/internal/run"
	"runcapture/pkg/outputindex"
)

// DefaultWaitTimeout is used by Wait when no positive timeout is given.
const DefaultWaitTimeout = 10 * time.Second

var (
	ErrAlreadyOpen    = errors.New("capture session already open")
	ErrNotOpen        = errors.New("capture session not open")
	ErrNotPipe        = errors.New("stream not a pipe")
	ErrReadersRunning = errors.New("capture readers still running")
)

// runLocks holds one mutex per run directory. Capture sessions and playback
// of the same run share it, so a playback never opens the files between a
// line being written and its index record being appended.
var runLocks sync.Map // map[string]*sync.Mutex

func lockFor(r *run.Run) *sync.Mutex {
	key, err := filepath.Abs(r.Dir)
	if err != nil {
		key = filepath.Clean(r.Dir)
	}
	mu, _ := runLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Option configures a Session.
type Option func(*Session)

// WithQuiet disables mirroring to the terminal.
func WithQuiet(quiet bool) Option {
	return func(s *Session) { s.quiet = quiet }
}

// WithMirror sets the writers that receive the live stdout and stderr bytes.
// By default these are os.Stdout and os.Stderr.
func WithMirror(stdout, stderr io.Writer) Option {
	return func(s *Session) {
		s.mirrorOut = stdout
		s.mirrorErr = stderr
	}
}

// WithLogger sets the logger used for errors inside the reader goroutines.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithClock replaces time.Now for index timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session captures the output of one child process into a run.
//
// A Session is either closed or open. When open it owns the output and index
// files and two reader goroutines, one per stream. The state methods (Open,
// Wait, Close, Interrupt) are safe to call from different goroutines.
type Session struct {
	run       *run.Run
	quiet     bool
	mirrorOut io.Writer
	mirrorErr io.Writer
	logger    *slog.Logger
	now       func() time.Time

	// mu is shared with playback of the same run. The readers hold it for
	// each byte they process.
	mu       *sync.Mutex
	lastTime time.Time // guarded by mu
	writeErr error     // guarded by mu

	stateMu sync.Mutex
	open    bool
	proc    *Process
	output  *os.File
	index   *os.File
	outDone chan struct{}
	errDone chan struct{}
}

// New returns a closed Session writing into r.
func New(r *run.Run, opts ...Option) *Session {
	s := &Session{
		run:       r,
		mirrorOut: os.Stdout,
		mirrorErr: os.Stderr,
		logger:    slog.Default(),
		now:       time.Now,
		mu:        lockFor(r),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Closed reports whether the session is closed.
func (s *Session) Closed() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return !s.open
}

// Open truncates the run's output and index files and starts one reader per
// stream of p. On error the session stays closed.
func (s *Session) Open(p *Process) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.open {
		return ErrAlreadyOpen
	}
	if p == nil || p.Stdout == nil {
		return fmt.Errorf("process stdout: %w", ErrNotPipe)
	}
	if p.Stderr == nil {
		return fmt.Errorf("process stderr: %w", ErrNotPipe)
	}

	output, err := os.OpenFile(s.run.PathFor(run.OutputName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	index, err := os.OpenFile(s.run.PathFor(run.OutputIndexName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		_ = output.Close()
		return fmt.Errorf("failed to open output index file: %w", err)
	}

	s.mu.Lock()
	s.lastTime = time.Time{}
	s.writeErr = nil
	s.mu.Unlock()

	var mirrorOut, mirrorErr io.Writer
	if !s.quiet {
		mirrorOut, mirrorErr = s.mirrorOut, s.mirrorErr
	}

	indexWriter := outputindex.NewWriter(index)
	s.outDone = make(chan struct{})
	s.errDone = make(chan struct{})
	go s.tee(p.Stdout, mirrorOut, outputindex.Stdout, output, indexWriter, s.outDone)
	go s.tee(p.Stderr, mirrorErr, outputindex.Stderr, output, indexWriter, s.errDone)

	s.proc = p
	s.output = output
	s.index = index
	s.open = true

	s.logger.Debug("Capture started", "run", s.run.ID, "dir", s.run.Dir, "pid", p.Pid())
	return nil
}

// tee reads in one byte at a time until end of stream. Every byte is
// mirrored and buffered under the lock; a newline commits the buffered line
// to the output file and appends its index record.
func (s *Session) tee(in io.Reader, mirror io.Writer, stream outputindex.Stream, output io.Writer, index *outputindex.Writer, done chan<- struct{}) {
	defer close(done)

	b := make([]byte, 1)
	var line []byte
	for {
		n, err := in.Read(b)
		if n == 0 {
			if err != nil && err != io.EOF && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Error("Failed to read process output", "stream", stream, "error", err)
			}
			if len(line) > 0 {
				s.logger.Debug("Discarding unterminated line", "stream", stream, "bytes", len(line))
			}
			return
		}

		s.mu.Lock()
		if mirror != nil {
			_, _ = mirror.Write(b)
		}
		line = append(line, b[0])
		if b[0] == '\n' {
			s.commit(output, index, line, stream)
			line = line[:0]
		}
		s.mu.Unlock()
	}
}

// commit writes one complete line and its index record. Must hold s.mu.
func (s *Session) commit(output io.Writer, index *outputindex.Writer, line []byte, stream outputindex.Stream) {
	if s.writeErr != nil {
		return
	}

	if _, err := output.Write(line); err != nil {
		s.writeErr = fmt.Errorf("failed to write output: %w", err)
		s.logger.Error("Failed to write output line", "stream", stream, "error", err)
		return
	}

	// The wall clock may step backwards; index timestamps must not.
	ts := s.now()
	if ts.Before(s.lastTime) {
		ts = s.lastTime
	}
	s.lastTime = ts

	if err := index.Write(outputindex.NewRecord(ts, stream)); err != nil {
		s.writeErr = err
		s.logger.Error("Failed to write output index", "stream", stream, "error", err)
	}
}

// Wait blocks until both readers have finished or timeout elapses. A timeout
// is not an error: use Done to find out whether the readers have stopped.
func (s *Session) Wait(timeout time.Duration) error {
	s.stateMu.Lock()
	if !s.open {
		s.stateMu.Unlock()
		return ErrNotOpen
	}
	outDone, errDone := s.outDone, s.errDone
	s.stateMu.Unlock()

	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, done := range []chan struct{}{outDone, errDone} {
		select {
		case <-done:
		case <-timer.C:
			s.logger.Warn("Timed out waiting for capture readers", "run", s.run.ID, "timeout", timeout)
			return nil
		}
	}
	return nil
}

// Done reports whether both readers have finished. It returns false for a
// closed session.
func (s *Session) Done() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.open && s.readersDone()
}

// readersDone must be called with stateMu held on an open session.
func (s *Session) readersDone() bool {
	for _, done := range []chan struct{}{s.outDone, s.errDone} {
		select {
		case <-done:
		default:
			return false
		}
	}
	return true
}

// Close flushes and closes the output and index files. Both readers must have
// finished; otherwise Close fails with ErrReadersRunning and the session
// stays open.
func (s *Session) Close() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !s.open {
		return ErrNotOpen
	}
	if !s.readersDone() {
		return ErrReadersRunning
	}

	var errs []error
	for _, f := range []*os.File{s.output, s.index} {
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("failed to sync %s: %w", f.Name(), err))
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", f.Name(), err))
		}
	}

	s.mu.Lock()
	if s.writeErr != nil {
		errs = append(errs, s.writeErr)
	}
	s.mu.Unlock()

	s.proc = nil
	s.output = nil
	s.index = nil
	s.outDone = nil
	s.errDone = nil
	s.open = false

	s.logger.Debug("Capture closed", "run", s.run.ID)
	return errors.Join(errs...)
}

// WaitAndClose is Wait followed by Close.
func (s *Session) WaitAndClose(timeout time.Duration) error {
	if err := s.Wait(timeout); err != nil {
		return err
	}
	return s.Close()
}

// Interrupt closes the process's output pipes so that blocked readers return
// without waiting for the child to close them. Streams that cannot be closed
// are left alone. The session stays open; call Wait and Close afterwards.
func (s *Session) Interrupt() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !s.open {
		return ErrNotOpen
	}

	var errs []error
	for _, stream := range []io.Reader{s.proc.Stdout, s.proc.Stderr} {
		c, ok := stream.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	s.logger.Info("Interrupted capture readers", "run", s.run.ID)
	return errors.Join(errs...)
}

// Entries plays back the output captured for the session's run.
func (s *Session) Entries() iter.Seq2[Entry, error] {
	return Playback(s.run)
}
