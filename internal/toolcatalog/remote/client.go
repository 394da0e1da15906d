// Package remote manages the connection lifecycle to an out-of-process
// tool-execution sidecar: a local gRPC-speaking helper that can run
// elevated or namespaced commands (container introspection, privileged
// hardware probes) the daemon itself should never shell out to directly.
// No tool is routed through here yet — ExecuteTool exists so
// internal/toolcatalog can grow a remote-backed executor for
// "disk_usage"/"hw_snapshot_summary"-class tools without a second
// connection-management implementation once that sidecar's wire protocol
// is defined. Every other tool keeps running through os/exec.
package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/annassistant/anna/internal/audit"
	"github.com/annassistant/anna/internal/config"
)

// State is the lifecycle state of the sidecar connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

type reconnectPolicy struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

var defaultReconnectPolicy = reconnectPolicy{
	initialDelay: 1 * time.Second,
	maxDelay:     30 * time.Second,
	multiplier:   2.0,
}

// Client holds a reconnecting gRPC connection to the tool-execution
// sidecar. It is only constructed when cfg.RemoteExec.Enabled is true;
// internal/toolcatalog does not use it and runs every tool through local
// os/exec.
type Client struct {
	cfg      *config.Config
	auditLog audit.Logger

	mu             sync.RWMutex
	conn           *grpc.ClientConn
	state          State
	connectedAt    time.Time
	reconnectCount int

	stopChan chan struct{}
}

// NewClient builds a Client against cfg.RemoteExec. It does not dial until
// Connect is called.
func NewClient(cfg *config.Config, auditLog audit.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if !cfg.RemoteExec.Enabled {
		return nil, fmt.Errorf("remote_exec is not enabled in configuration")
	}
	if auditLog == nil {
		return nil, fmt.Errorf("audit logger is required")
	}
	return &Client{
		cfg:      cfg,
		auditLog: auditLog,
		state:    StateDisconnected,
		stopChan: make(chan struct{}),
	}, nil
}

// Connect dials the sidecar and starts background health monitoring.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	correlationID := audit.GenerateCorrelationID()
	ctx = audit.WithCorrelationID(ctx, correlationID)
	c.auditLog.Log(ctx, audit.NewEvent(audit.EventServerStarted).
		WithCorrelationID(correlationID).
		WithDescription(fmt.Sprintf("connecting to tool-execution sidecar at %s", c.cfg.RemoteExec.Address)).
		WithResult(audit.ResultPending))

	creds, err := c.transportCredentials()
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("build transport credentials: %w", err)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.RemoteExec.TimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, c.cfg.RemoteExec.Address, opts...)
	if err != nil {
		c.setState(StateDisconnected)
		c.auditLog.Log(ctx, audit.NewEvent(audit.EventServerStarted).
			WithCorrelationID(correlationID).
			WithDescription("failed to connect to tool-execution sidecar").
			WithError(err, "connection_failed").
			WithResult(audit.ResultFailure))
		return fmt.Errorf("dial sidecar: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connectedAt = time.Now()
	c.state = StateConnected
	c.mu.Unlock()

	c.auditLog.Log(ctx, audit.NewEvent(audit.EventServerStarted).
		WithCorrelationID(correlationID).
		WithDescription("connected to tool-execution sidecar").
		WithResult(audit.ResultSuccess))

	go c.monitor(ctx)
	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return nil
	}
	close(c.stopChan)
	c.state = StateDisconnected
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// ExecuteTool will route a single tool invocation through the sidecar once
// its RPC surface is defined. It returns an error today: no tool in
// internal/toolcatalog is routed here yet, so there is nothing to marshal
// against.
func (c *Client) ExecuteTool(ctx context.Context, name string, params map[string]string) (string, error) {
	c.mu.RLock()
	connected := c.state == StateConnected
	c.mu.RUnlock()
	if !connected {
		return "", fmt.Errorf("not connected to tool-execution sidecar")
	}
	return "", fmt.Errorf("remote tool execution not yet implemented: no sidecar RPC defined for %q", name)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) monitor(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				continue
			}
			if state := conn.GetState(); state == connectivity.TransientFailure || state == connectivity.Shutdown {
				go c.reconnect(ctx)
			}
		}
	}
}

func (c *Client) reconnect(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateReconnecting || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateReconnecting
	c.mu.Unlock()

	delay := defaultReconnectPolicy.initialDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-time.After(delay):
		}

		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.reconnectCount++
		c.mu.Unlock()

		if err := c.Connect(ctx); err == nil {
			return
		}

		delay = time.Duration(float64(delay) * defaultReconnectPolicy.multiplier)
		if delay > defaultReconnectPolicy.maxDelay {
			delay = defaultReconnectPolicy.maxDelay
		}
	}
}

func (c *Client) transportCredentials() (credentials.TransportCredentials, error) {
	if !c.cfg.RemoteExec.TLSEnabled {
		return insecure.NewCredentials(), nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.cfg.RemoteExec.TLSCertPath != "" && c.cfg.RemoteExec.TLSKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(c.cfg.RemoteExec.TLSCertPath, c.cfg.RemoteExec.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	if c.cfg.RemoteExec.TLSCAPath != "" {
		caPEM, err := os.ReadFile(c.cfg.RemoteExec.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}
