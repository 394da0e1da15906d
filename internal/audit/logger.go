// Package audit provides the append-only audit trail for every case Anna
// records: orchestrator answers, mutations, Fix-It sessions, recipe lifecycle
// changes. It is deliberately separate from the application log: the audit
// log is never pruned below its retention window and is always INFO level.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type correlationIDKey struct{}

// Logger defines the interface for audit logging.
type Logger interface {
	Log(ctx context.Context, event *Event) error

	LogCaseOpened(ctx context.Context, caseID, kind string) error
	LogCaseClosed(ctx context.Context, caseID string, result Result, duration time.Duration) error
	LogMutationApplied(ctx context.Context, caseID, path string, riskLevel string) error
	LogMutationBlocked(ctx context.Context, path, reason, policyRule string) error
	LogRollback(ctx context.Context, caseID string, hashesMatch bool) error
	LogInventionDetected(ctx context.Context, caseID string, contradictions, unverifiable int) error
	LogFixItTransition(ctx context.Context, sessionID, from, to string) error
	LogRecipeDemoted(ctx context.Context, recipeID, reason string) error

	Sync() error
	Close() error
}

// Config represents audit logger configuration.
type Config struct {
	AuditLogPath string
	AppLogPath   string
	MaxSize      int
	MaxBackups   int
	MaxAge       int
	Compress     bool
	LogLevel     string
}

// DefaultConfig returns default audit logger configuration.
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     "info",
	}
}

type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger backed by two independently rotated
// zap cores: one for the application log, one append-only for the audit trail.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	appCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(appRotator), level)
	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	auditCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(auditRotator), zapcore.InfoLevel)
	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.CorrelationID == "" {
		event.CorrelationID = GetCorrelationID(ctx)
	}

	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}
	return nil
}

func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event", zap.Error(err), zap.String("event_type", string(event.EventType)))
			continue
		}
		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}
	l.buffer = l.buffer[:0]
	return nil
}

func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *auditLogger) LogCaseOpened(ctx context.Context, caseID, kind string) error {
	event := NewEvent(EventRequestReceived).
		WithCorrelationID(caseID).
		WithResult(ResultPending).
		WithMetadata("kind", kind).
		WithDescription(fmt.Sprintf("case %s opened (%s)", caseID, kind))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogCaseClosed(ctx context.Context, caseID string, result Result, duration time.Duration) error {
	event := NewEvent(EventAnswerReturned).
		WithCorrelationID(caseID).
		WithResult(result).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("case %s closed", caseID))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogMutationApplied(ctx context.Context, caseID, path string, riskLevel string) error {
	event := NewEvent(EventMutationApplied).
		WithCorrelationID(caseID).
		WithResource(path, "file").
		WithResult(ResultSuccess).
		WithMetadata("risk_level", riskLevel).
		WithDescription(fmt.Sprintf("mutation %s applied to %s", caseID, path))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogMutationBlocked(ctx context.Context, path, reason, policyRule string) error {
	event := NewEvent(EventMutationBlocked).
		WithResource(path, "file").
		WithResult(ResultDenied).
		WithMetadata("policy_rule", policyRule).
		WithDescription(reason)
	return l.Log(ctx, event)
}

func (l *auditLogger) LogRollback(ctx context.Context, caseID string, hashesMatch bool) error {
	result := ResultSuccess
	if !hashesMatch {
		result = ResultFailure
	}
	event := NewEvent(EventRollbackApplied).
		WithCorrelationID(caseID).
		WithResult(result).
		WithMetadata("hashes_match", hashesMatch).
		WithDescription(fmt.Sprintf("rollback of case %s", caseID))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogInventionDetected(ctx context.Context, caseID string, contradictions, unverifiable int) error {
	event := NewEvent(EventInventionDetected).
		WithCorrelationID(caseID).
		WithResult(ResultDenied).
		WithMetadata("contradictions", contradictions).
		WithMetadata("unverifiable", unverifiable).
		WithDescription(fmt.Sprintf("invention detected in case %s", caseID))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogFixItTransition(ctx context.Context, sessionID, from, to string) error {
	event := NewEvent(EventFixItTransition).
		WithCorrelationID(sessionID).
		WithResult(ResultPending).
		WithMetadata("from", from).
		WithMetadata("to", to).
		WithDescription(fmt.Sprintf("fix-it %s: %s -> %s", sessionID, from, to))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogRecipeDemoted(ctx context.Context, recipeID, reason string) error {
	event := NewEvent(EventRecipeDemoted).
		WithCorrelationID(recipeID).
		WithResult(ResultFailure).
		WithDescription(reason)
	return l.Log(ctx, event)
}

func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}
	if err := l.auditLogger.Sync(); err != nil {
		return err
	}
	return l.appLogger.Sync()
}

func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()
	return l.Sync()
}

// GetCorrelationID extracts the correlation ID from context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID attaches a correlation ID to context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}
