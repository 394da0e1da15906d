package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/internal/audit"
	"github.com/annassistant/anna/internal/config"
)

func testAuditLogger(t *testing.T) audit.Logger {
	t.Helper()
	dir := t.TempDir()
	logger, err := audit.NewLogger(&audit.Config{
		AuditLogPath: dir + "/audit.log",
		AppLogPath:   dir + "/app.log",
		MaxSize:      1, MaxBackups: 1, MaxAge: 1, LogLevel: "info",
	})
	require.NoError(t, err)
	return logger
}

func TestNewClientRequiresRemoteExecEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := NewClient(cfg, testAuditLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")
}

func TestNewClientRequiresConfigAndLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RemoteExec.Enabled = true
	cfg.RemoteExec.Address = "localhost:9999"

	_, err := NewClient(nil, testAuditLogger(t))
	require.Error(t, err)

	_, err = NewClient(cfg, nil)
	require.Error(t, err)
}

func TestClientStartsDisconnected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RemoteExec.Enabled = true
	cfg.RemoteExec.Address = "localhost:9999"

	client, err := NewClient(cfg, testAuditLogger(t))
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, client.State())
}

func TestExecuteToolErrorsWhenNotConnected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RemoteExec.Enabled = true
	cfg.RemoteExec.Address = "localhost:9999"

	client, err := NewClient(cfg, testAuditLogger(t))
	require.NoError(t, err)

	_, err = client.ExecuteTool(context.Background(), "disk_usage", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestDisconnectWhenNeverConnectedIsNoop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RemoteExec.Enabled = true
	cfg.RemoteExec.Address = "localhost:9999"

	client, err := NewClient(cfg, testAuditLogger(t))
	require.NoError(t, err)
	assert.NoError(t, client.Disconnect())
}
