// Package rpcserver serves Anna's JSON-RPC method set over a Unix-domain
// socket. Each connection is framed as newline-delimited JSON requests and
// responses, following the teacher's preference for a small, explicit
// protocol over a generic RPC framework. The package depends only on the
// Handler interface, not on internal/daemon directly, so the transport
// never has to know how a method is actually implemented.
package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/annassistant/anna/internal/metrics"
	"github.com/annassistant/anna/internal/middleware"
	"github.com/annassistant/anna/pkg/types"
)

// Handler is what internal/daemon.Daemon implements: one entry point that
// dispatches a method name and raw JSON params to the matching component
// and returns either a JSON-marshalable result or a structured error.
type Handler interface {
	Handle(ctx context.Context, method string, params json.RawMessage) (interface{}, *types.AnnaError)
}

// Request is one JSON-RPC call. ID is echoed back on the Response so a
// client pipelining multiple calls over one connection can match them up.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response carries exactly one of Result or Error, matching Request.ID.
type Response struct {
	ID     string           `json:"id"`
	Result interface{}      `json:"result,omitempty"`
	Error  *types.AnnaError `json:"error,omitempty"`
}

// Config controls the socket's location, permissions, and per-connection
// limits.
type Config struct {
	SocketPath        string
	SocketMode        os.FileMode
	RateLimitPerMin   int
	ReadHeaderTimeout time.Duration

	// StreamSocketPath, if set, opens a second Unix socket serving the
	// Fix-It live-progress websocket at /fixit/stream. Left empty, the
	// push channel is simply not started; the JSON-RPC socket alone is
	// always sufficient for the request/response methods.
	StreamSocketPath string
}

// Server listens on a Unix socket and dispatches each decoded Request to
// Handler, mirroring the teacher's mu/running/wg lifecycle but over a raw
// net.Listener instead of net/http.
type Server struct {
	cfg     Config
	handler Handler
	log     *zap.Logger
	limiter *middleware.RateLimiter

	Stream *Hub

	mu             sync.Mutex
	running        bool
	listener       net.Listener
	streamListener net.Listener
	streamServer   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Server bound to handler. It does not open the socket yet;
// call Start for that.
func New(cfg Config, handler Handler, log *zap.Logger) *Server {
	if cfg.SocketMode == 0 {
		cfg.SocketMode = 0o660
	}
	if cfg.RateLimitPerMin == 0 {
		cfg.RateLimitPerMin = 120
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     log,
		limiter: middleware.NewRateLimiter(cfg.RateLimitPerMin),
		Stream:  NewHub(log),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start binds the socket and begins accepting connections in the
// background. A stale socket file from an unclean shutdown is removed
// first so a restart doesn't fail with "address already in use".
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("rpcserver already running")
	}

	if _, err := os.Stat(s.cfg.SocketPath); err == nil {
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, s.cfg.SocketMode); err != nil {
		listener.Close()
		s.mu.Unlock()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("rpcserver listening", zap.String("socket", s.cfg.SocketPath))

	if s.cfg.StreamSocketPath != "" {
		if err := s.startStream(); err != nil {
			s.log.Warn("fixit stream socket disabled", zap.Error(err))
		}
	}
	return nil
}

func (s *Server) startStream() error {
	if _, err := os.Stat(s.cfg.StreamSocketPath); err == nil {
		if err := os.Remove(s.cfg.StreamSocketPath); err != nil {
			return fmt.Errorf("remove stale stream socket: %w", err)
		}
	}
	streamListener, err := net.Listen("unix", s.cfg.StreamSocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.StreamSocketPath, err)
	}
	if err := os.Chmod(s.cfg.StreamSocketPath, s.cfg.SocketMode); err != nil {
		streamListener.Close()
		return fmt.Errorf("chmod stream socket: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/fixit/stream", s.Stream.ServeHTTP)
	s.streamListener = streamListener
	s.streamServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.streamServer.Serve(streamListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("fixit stream server error", zap.Error(err))
		}
	}()

	s.log.Info("fixit stream listening", zap.String("socket", s.cfg.StreamSocketPath))
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Warn("accept failed", zap.Error(err))
				continue
			}
		}
		metrics.RPCConnectionsActive.Inc()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer metrics.RPCConnectionsActive.Dec()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	clientID := conn.RemoteAddr().String()
	if clientID == "" || clientID == "@" {
		clientID = fmt.Sprintf("conn-%p", conn)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(Response{Error: &types.AnnaError{
				Code:     types.CodeMalformedJSON,
				Message:  fmt.Sprintf("malformed request: %s", err),
				Severity: types.ErrorSeverityError,
			}})
			continue
		}

		if !s.limiter.Allow(clientID) {
			_ = enc.Encode(Response{ID: req.ID, Error: &types.AnnaError{
				Code:     types.CodePolicyBlocked,
				Message:  "rate limit exceeded",
				Severity: types.ErrorSeverityWarning,
				Help:     []string{"slow down requests from this connection"},
			}})
			continue
		}

		reqCtx, cancel := context.WithTimeout(s.ctx, s.cfg.ReadHeaderTimeout)
		result, annaErr := s.handler.Handle(reqCtx, req.Method, req.Params)
		cancel()

		if err := enc.Encode(Response{ID: req.ID, Result: result, Error: annaErr}); err != nil {
			s.log.Warn("failed to write response", zap.Error(err))
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("connection read error", zap.Error(err))
	}
}

// Stop closes the listener, waits for in-flight connections to drain, and
// removes the socket file so a restart starts clean.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("rpcserver is not running")
	}
	s.running = false
	listener := s.listener
	streamServer := s.streamServer
	s.mu.Unlock()

	s.cancel()
	if listener != nil {
		_ = listener.Close()
	}
	if streamServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = streamServer.Shutdown(shutdownCtx)
		cancel()
	}
	s.wg.Wait()
	s.limiter.Stop()

	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	if s.cfg.StreamSocketPath != "" {
		if err := os.Remove(s.cfg.StreamSocketPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stream socket: %w", err)
		}
	}
	return nil
}

// Wait blocks until the server's context is cancelled (i.e. until Stop is
// called).
func (s *Server) Wait() {
	<-s.ctx.Done()
}
