// Package server hosts the ingest daemon: a localhost HTTP server carrying
// producer websocket connections and consumer queries, plus a raw TCP
// listener for length-prefixed byte-stream producers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/devlogs/config"
	"github.com/grovetools/devlogs/internal/ingest"
	"github.com/grovetools/devlogs/internal/reader"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/sirupsen/logrus"
)

// Server manages the daemon's listeners and the pipelines feeding off them.
type Server struct {
	cfg    *config.Config
	reg    *registry.Registry
	reader *reader.Reader
	logger *logrus.Entry

	httpServer  *http.Server
	tcpListener net.Listener
	upgrader    websocket.Upgrader

	mu        sync.Mutex
	pipelines map[*ingest.Pipeline]struct{}
	closed    bool
}

// New creates a Server over a registry.
func New(cfg *config.Config, reg *registry.Registry, logger *logrus.Entry) *Server {
	return &Server{
		cfg:    cfg,
		reg:    reg,
		reader: reader.New(reg, logger),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// Producers are local tooling; the server binds localhost only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pipelines: make(map[*ingest.Pipeline]struct{}),
	}
}

// ListenAndServe starts the HTTP server and the raw TCP listener. It blocks
// until the HTTP server stops or fails.
func (s *Server) ListenAndServe() error {
	if s.cfg.Listen.TCPAddr != "" {
		listener, err := net.Listen("tcp", s.cfg.Listen.TCPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen.TCPAddr, err)
		}
		s.tcpListener = listener
		go s.acceptTCP(listener)
		s.logger.WithField("addr", s.cfg.Listen.TCPAddr).Info("Stream listener ready")
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Listen.HTTPAddr,
		Handler: s.routes(),
	}

	s.logger.WithField("addr", s.cfg.Listen.HTTPAddr).Info("Daemon listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/api/logs", s.handleGetLogs)
	mux.HandleFunc("/api/sessions", s.handleGetSessions)
	return mux
}

// Shutdown stops the listeners and finalizes every open pipeline, so live
// sessions end cleanly rather than waiting for the sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	s.mu.Lock()
	s.closed = true
	open := make([]*ingest.Pipeline, 0, len(s.pipelines))
	for p := range s.pipelines {
		open = append(open, p)
	}
	s.mu.Unlock()

	if s.tcpListener != nil {
		_ = s.tcpListener.Close()
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	for _, p := range open {
		p.Close()
	}
	return err
}

func (s *Server) newPipeline(projectDir, descriptor string, framing ingest.Framing) *ingest.Pipeline {
	p := ingest.NewPipeline(s.reg, ingest.Options{
		ProjectDir:    projectDir,
		Descriptor:    descriptor,
		Framing:       framing,
		MaxFrameBytes: s.cfg.Ingest.MaxFrameBytes,
		RateLimit:     s.cfg.Ingest.RateLimit,
		Archive:       s.cfg.Retention.Days > 0,
	}, s.logger)

	s.mu.Lock()
	s.pipelines[p] = struct{}{}
	s.mu.Unlock()
	return p
}

func (s *Server) releasePipeline(p *ingest.Pipeline) {
	s.mu.Lock()
	delete(s.pipelines, p)
	s.mu.Unlock()
	p.Close()
}

// handleWebsocket carries one page-connection producer. Project attribution
// is mandatory at connect time: records arriving before any start record
// land in the query project's session instead of being guessed at.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	projectDir := r.URL.Query().Get("project")
	if projectDir == "" {
		http.Error(w, "missing required query parameter: project", http.StatusBadRequest)
		return
	}
	descriptor := r.URL.Query().Get("descriptor")
	if descriptor == "" {
		descriptor = r.Header.Get("Origin")
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	p := s.newPipeline(projectDir, descriptor, ingest.FramingLengthPrefix)
	defer s.releasePipeline(p)

	s.logger.WithField("project", projectDir).Info("Producer connected")
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithError(err).Debug("Producer connection dropped")
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			// Binary messages are arbitrary chunks of the
			// length-prefixed stream; the decoder reassembles.
			p.Feed(data)
		case websocket.TextMessage:
			// Text messages arrive already framed, one record each.
			p.HandleFrame(data)
		}
	}
}

// acceptTCP serves raw byte-stream producers speaking the length-prefixed
// framing directly over TCP.
func (s *Server) acceptTCP(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.WithError(err).Warn("Stream accept failed")
			}
			return
		}
		go s.serveTCP(conn)
	}
}

func (s *Server) serveTCP(conn net.Conn) {
	defer conn.Close()

	// Raw stream producers carry no query string; attribution waits for
	// their start record.
	p := s.newPipeline("", conn.RemoteAddr().String(), ingest.FramingLengthPrefix)
	defer s.releasePipeline(p)

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			p.Feed(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// handleGetLogs serves the aggregate read: ?lines=&files=&project=&scope=.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lines, _ := strconv.Atoi(q.Get("lines"))
	files, _ := strconv.Atoi(q.Get("files"))
	liveOnly := q.Get("scope") != "archived"

	text, err := s.reader.ReadRecent(lines, files, q.Get("project"), liveOnly)
	if err != nil {
		s.logger.WithError(err).Error("Log read failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

type sessionResponse struct {
	ID         string    `json:"id"`
	ProjectDir string    `json:"projectDir"`
	StartTime  time.Time `json:"startTime"`
	Descriptor string    `json:"descriptor,omitempty"`
}

// handleGetSessions returns live sessions as JSON, newest first.
func (s *Server) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.reader.ListActiveSessions(r.URL.Query().Get("project"))
	if err != nil {
		s.logger.WithError(err).Error("Session listing failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			ID:         sess.ID,
			ProjectDir: sess.ProjectDir,
			StartTime:  sess.StartTime,
			Descriptor: sess.Descriptor,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
