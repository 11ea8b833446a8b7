// Package replayws streams the captured output of runs over WebSocket.
package replayws

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gorilla/websocket"

	"runcapture/internal/capture"
	"runcapture/internal/run"
	"runcapture/pkg/outputindex"
)

var runIDRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// Message is one JSON message sent to the client. A replay is a sequence of
// "line" messages followed by exactly one "end" or "error" message. Time is
// in milliseconds since the epoch.
type Message struct {
	Type   string `json:"type"`
	Time   int64  `json:"time,omitempty"`
	Stream string `json:"stream,omitempty"`
	Line   string `json:"line,omitempty"`
	Lines  int    `json:"lines,omitempty"`
	Error  string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		// Only same-origin browsers and non-browser clients
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := r.Host
		for _, expected := range []string{"http://" + host, "https://" + host} {
			if origin == expected {
				return true
			}
		}
		slog.Warn("Rejected WebSocket connection from unauthorized origin", "origin", origin, "host", host)
		return false
	},
}

// Server replays runs stored below a common root directory.
type Server struct {
	runsRoot     string
	writeTimeout time.Duration
	logger       *slog.Logger
}

// New returns a Server for the runs stored in runsRoot. Run IDs are the
// names of the directories inside runsRoot.
func New(runsRoot string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runsRoot:     runsRoot,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /runs/{id}/output", s.handleReplay)
	return mux
}

// handleReplay plays back one run. The optional query parameter stream
// limits the replay to "stdout" or "stderr".
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !runIDRe.MatchString(id) {
		http.Error(w, "invalid run ID", http.StatusBadRequest)
		return
	}

	var streams []outputindex.Stream
	if name := r.URL.Query().Get("stream"); name != "" {
		stream, err := outputindex.ParseStream(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		streams = append(streams, stream)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Failed to close WebSocket connection", "error", err)
		}
	}()

	target := run.New(id, filepath.Join(s.runsRoot, id))
	seq := capture.Playback(target)
	if len(streams) > 0 {
		seq = capture.Filter(seq, streams...)
	}

	lines := 0
	for entry, err := range seq {
		if err != nil {
			s.logger.Error("Replay failed", "run", id, "error", err)
			_ = s.send(conn, Message{Type: "error", Error: err.Error()})
			return
		}
		msg := Message{
			Type:   "line",
			Time:   entry.Time.UnixMilli(),
			Stream: entry.Stream.String(),
			Line:   string(entry.Line),
		}
		if err := s.send(conn, msg); err != nil {
			s.logger.Info("Replay client went away", "run", id, "error", err)
			return
		}
		lines++
	}

	if err := s.send(conn, Message{Type: "end", Lines: lines}); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.writeTimeout))
}

func (s *Server) send(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ListenAndServe serves the replay routes on addr until the server fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Serving run output", "addr", addr, "root", s.runsRoot)
	return srv.ListenAndServe()
}
