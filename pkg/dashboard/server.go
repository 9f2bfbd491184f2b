// Package dashboard serves a read-only view of the sync engine over HTTP and
// streams finished runs to WebSocket subscribers.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/harrisonrobin/todovault/pkg/engine"
)

// DefaultAddr is used when Config.Addr is empty.
const DefaultAddr = "127.0.0.1:8765"

const (
	writeTimeout = 5 * time.Second
	// frameBuffer is how many frames a slow subscriber may fall behind
	// before new ones are dropped for it.
	frameBuffer = 8
)

// FrameKind names what a frame carries.
type FrameKind string

const (
	// FrameStats is sent once when a subscriber connects.
	FrameStats FrameKind = "stats"
	// FrameResult is sent after every engine operation, with the stats as
	// they stood when it finished.
	FrameResult FrameKind = "result"
)

// Frame is one message on the /ws stream.
type Frame struct {
	Kind   FrameKind      `json:"kind"`
	At     time.Time      `json:"at"`
	Stats  *engine.Stats  `json:"stats,omitempty"`
	Result *engine.Result `json:"result,omitempty"`
}

// StatsSource supplies the snapshots served on /api/stats. *engine.Engine
// implements it.
type StatsSource interface {
	Stats() engine.Stats
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on. Port 0 picks a free port.
	Addr   string
	Source StatsSource
	Logger *log.Logger
	// Now stamps stats frames. Defaults to time.Now.
	Now func() time.Time
}

// Server exposes the engine's stats and results.
type Server struct {
	addr   string
	source StatsSource
	logger *log.Logger
	now    func() time.Time

	ln  net.Listener
	srv *http.Server

	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	last    *engine.Result
	stopped bool

	done chan struct{}
	wg   sync.WaitGroup
}

type subscriber struct {
	frames chan Frame
}

// NewServer creates a dashboard server. It does not listen until Start.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		addr:   cfg.Addr,
		source: cfg.Source,
		logger: cfg.Logger,
		now:    cfg.Now,
		subs:   make(map[*subscriber]struct{}),
		done:   make(chan struct{}),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveFeed)
	mux.HandleFunc("GET /api/stats", s.serveStats)
	mux.HandleFunc("GET /api/result", s.serveResult)
	mux.HandleFunc("GET /health", s.serveHealth)
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Dashboard server error: %v", err)
		}
	}()
	return nil
}

// Stop ends every subscription and shuts the server down. It is safe to
// call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.done)

	var err error
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if serr := s.srv.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("dashboard shutdown: %w", serr)
		}
	}
	// Upgraded connections are not tracked by Shutdown.
	s.wg.Wait()
	return err
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Subscribers returns the number of connected WebSocket clients.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Notify records res as the latest result and fans it out. It matches
// engine.Options.OnComplete. A subscriber whose buffer is full misses the
// frame; the next one still carries complete stats.
func (s *Server) Notify(res engine.Result) {
	f := Frame{Kind: FrameResult, At: res.FinishedAt, Result: &res}
	if s.source != nil {
		stats := s.source.Stats()
		f.Stats = &stats
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &res
	for sub := range s.subs {
		select {
		case sub.frames <- f:
		default:
			s.logger.Printf("Subscriber is behind, dropping %s result", res.Op)
		}
	}
}

// LastResult returns the result of the latest Notify, if any.
func (s *Server) LastResult() (engine.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return engine.Result{}, false
	}
	return *s.last, true
}

func (s *Server) subscribe() (*subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, false
	}
	sub := &subscriber{frames: make(chan Frame, frameBuffer)}
	s.subs[sub] = struct{}{}
	s.wg.Add(1)
	return sub, true
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) statsFrame() Frame {
	f := Frame{Kind: FrameStats, At: s.now()}
	if s.source != nil {
		stats := s.source.Stats()
		f.Stats = &stats
	}
	return f
}

// serveFeed streams a stats frame followed by one frame per finished run.
// Client messages are ignored.
func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subscribe()
	if !ok {
		http.Error(w, "dashboard stopping", http.StatusServiceUnavailable)
		return
	}
	defer s.unsubscribe(sub)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"127.0.0.1:*", "localhost:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.CloseNow()
	ctx := conn.CloseRead(context.Background())

	if err := writeFrame(ctx, conn, s.statsFrame()); err != nil {
		return
	}
	for {
		select {
		case <-s.done:
			_ = conn.Close(websocket.StatusGoingAway, "dashboard stopping")
			return
		case <-ctx.Done():
			return
		case f := <-sub.frames:
			if err := writeFrame(ctx, conn, f); err != nil {
				s.logger.Printf("Dropping subscriber: %v", err)
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) serveStats(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		http.Error(w, "no engine attached", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.source.Stats())
}

// serveResult answers 204 until the first run has finished.
func (s *Server) serveResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.LastResult()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status      string `json:"status"`
		Subscribers int    `json:"subscribers"`
		Running     bool   `json:"running"`
	}{Status: "ok", Subscribers: s.Subscribers()}
	if s.source != nil {
		health.Running = s.source.Stats().Running
	}
	s.writeJSON(w, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("Failed to write response: %v", err)
	}
}
