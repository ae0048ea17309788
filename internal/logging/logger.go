// Package logging provides structured logging with trace ID propagation
// used across every component of the orchestration core.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried alongside a request.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	SessionKey ContextKey = "session_id"
	AgentKey   ContextKey = "agent_id"
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with the orchestration core's field
// conventions (service name, trace id, session id, agent id).
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance for the given service/component name.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT, defaulting
// to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns a log entry pre-populated with the trace/session/agent
// ids carried on ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(SessionKey); v != nil {
		entry = entry.WithField("session_id", v)
	}
	if v := ctx.Value(AgentKey); v != nil {
		entry = entry.WithField("agent_id", v)
	}
	return entry
}

// WithFields returns a log entry with custom fields plus the service name.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError returns a log entry carrying the error message.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "error": err.Error()})
}

// NewTraceID generates a correlation id for threading a request across
// components and into the audit log (spec §7 "Propagation").
func NewTraceID() string { return uuid.New().String() }

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionKey, id)
}

func WithAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, AgentKey, id)
}

// LogRequest logs an HTTP request summary.
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("http request")
}

// LogTaskTransition logs a task status change (spec §3 lifecycles).
func (l *Logger) LogTaskTransition(ctx context.Context, taskID, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"task_id": taskID,
		"from":    from,
		"to":      to,
	}).Info("task transition")
}

// LogAssignment logs an orchestrator assignment decision.
func (l *Logger) LogAssignment(ctx context.Context, taskID, agentID, strategy string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"task_id":  taskID,
		"agent_id": agentID,
		"strategy": strategy,
	}).Info("task assigned")
}

// LogSecurityEvent logs a security-relevant event for the audit trail.
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType string, details map[string]interface{}) {
	fields := logrus.Fields{"event_type": eventType, "severity": "security"}
	for k, v := range details {
		fields[k] = v
	}
	l.WithContext(ctx).WithFields(fields).Warn("security event")
}

// LogAudit logs a completed audit-relevant action.
func (l *Logger) LogAudit(ctx context.Context, action, resource, resourceID, result string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":      action,
		"resource":    resource,
		"resource_id": resourceID,
		"result":      result,
		"audit":       true,
	}).Info("audit")
}

var defaultLogger *Logger

// InitDefault initializes the package-wide default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the default logger, lazily falling back to a basic one.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("orchestrator", "info", "json")
	}
	return defaultLogger
}
