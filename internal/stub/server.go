package stub

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/common/compress"
	"github.com/edgecomet/eventrelay/internal/event"
)

// StorePath is where the stub expects events. Any POST path is accepted.
const StorePath = "/api/store/"

// Server is a stand-in for the reporting service. It stores every event it
// receives so tests and local setups can inspect what was delivered.
type Server struct {
	mu       sync.Mutex
	events   []*event.Event
	failNext int
	delay    time.Duration

	server   *fasthttp.Server
	listener net.Listener
	logger   *zap.Logger
}

// New creates a stopped stub server
func New(logger *zap.Logger) *Server {
	s := &Server{logger: logger}
	s.server = &fasthttp.Server{
		Handler:               s.Handler,
		Name:                  "eventrelay-stub",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		MaxRequestBodySize:    4 * 1024 * 1024,
		NoDefaultServerHeader: true,
	}
	return s
}

// Start listens on addr (use "127.0.0.1:0" for a random port) and serves in the background
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.setListener(ln)

	go func() {
		if err := s.Serve(ln); err != nil {
			s.logger.Error("Stub server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Serve handles requests on ln until Shutdown. Start must not be used as well.
func (s *Server) Serve(ln net.Listener) error {
	s.setListener(ln)

	s.logger.Info("Stub server listening", zap.String("addr", ln.Addr().String()))
	return s.server.Serve(ln)
}

func (s *Server) setListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = ln
}

// Addr returns the listen address once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the store endpoint URL once started
func (s *Server) URL() string {
	return "http://" + s.Addr() + StorePath
}

// Shutdown stops accepting connections and waits for open requests
func (s *Server) Shutdown() error {
	return s.server.Shutdown()
}

// Handler stores one POSTed event
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		ctx.Error("Simulated failure", fasthttp.StatusInternalServerError)
		return
	}
	s.mu.Unlock()

	body, err := compress.Decompress(ctx.PostBody(), string(ctx.Request.Header.ContentEncoding()))
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusBadRequest)
		return
	}

	var ev event.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		ctx.Error("invalid event: "+err.Error(), fasthttp.StatusBadRequest)
		return
	}
	if ev.ID == "" {
		ctx.Error("event_id is required", fasthttp.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.events = append(s.events, &ev)
	s.mu.Unlock()

	s.logger.Debug("Stub received event",
		zap.String("event_id", ev.ID),
		zap.String("level", string(ev.Level)))

	ctx.SetContentType("application/json")
	fmt.Fprintf(ctx, `{"id":%q}`, ev.ID)
}

// FailNext makes the next n requests fail with 500
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// SetResponseDelay makes every request wait d before it is handled
func (s *Server) SetResponseDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// EventCount returns the number of stored events
func (s *Server) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Events returns a copy of the stored events in arrival order
func (s *Server) Events() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*event.Event(nil), s.events...)
}

// RemoveEvents forgets every stored event
func (s *Server) RemoveEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
