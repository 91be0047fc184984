package logging

import (
	"context"
	"io"
	"log/slog"
)

type contextKey string

const (
	AccountIDKey contextKey = "account_id"
	JobIDKey     contextKey = "job_id"
	MSISDNKey    contextKey = "msisdn"
	RecipientKey contextKey = "recipient_id"
	WorkerIDKey  contextKey = "worker_id"
	HandlerKey   contextKey = "handler"
	GatewayKey   contextKey = "gateway"
)

// ContextHandler wraps another slog.Handler and adds attributes from context.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler creates a handler that extracts values from context.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds context attributes before calling the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if accountID, ok := ctx.Value(AccountIDKey).(int64); ok {
		r.AddAttrs(slog.Int64(string(AccountIDKey), accountID))
	}
	if jobID, ok := ctx.Value(JobIDKey).(string); ok {
		r.AddAttrs(slog.String(string(JobIDKey), jobID))
	}
	if msisdn, ok := ctx.Value(MSISDNKey).(string); ok {
		r.AddAttrs(slog.String(string(MSISDNKey), msisdn))
	}
	if recipientID, ok := ctx.Value(RecipientKey).(int64); ok {
		r.AddAttrs(slog.Int64(string(RecipientKey), recipientID))
	}
	if workerID, ok := ctx.Value(WorkerIDKey).(int); ok {
		r.AddAttrs(slog.Int(string(WorkerIDKey), workerID))
	}
	if handler, ok := ctx.Value(HandlerKey).(string); ok {
		r.AddAttrs(slog.String(string(HandlerKey), handler))
	}
	if gw, ok := ctx.Value(GatewayKey).(string); ok {
		r.AddAttrs(slog.String(string(GatewayKey), gw))
	}

	return h.Handler.Handle(ctx, r)
}

// WithAttrs keeps the context handler in front of the derived handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup keeps the context handler in front of the derived handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// Helper functions to add values to context
func ContextWithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, AccountIDKey, accountID)
}

func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

func ContextWithMSISDN(ctx context.Context, msisdn string) context.Context {
	return context.WithValue(ctx, MSISDNKey, msisdn)
}

func ContextWithRecipientID(ctx context.Context, recipientID int64) context.Context {
	return context.WithValue(ctx, RecipientKey, recipientID)
}

func ContextWithWorkerID(ctx context.Context, workerID int) context.Context {
	return context.WithValue(ctx, WorkerIDKey, workerID)
}

func ContextWithHandler(ctx context.Context, handler string) context.Context {
	return context.WithValue(ctx, HandlerKey, handler)
}

func ContextWithGateway(ctx context.Context, gateway string) context.Context {
	return context.WithValue(ctx, GatewayKey, gateway)
}

// Setup installs a JSON slog logger wrapped in ContextHandler as the default.
func Setup(w io.Writer, level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: logLevel, AddSource: logLevel <= slog.LevelDebug}
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(w, opts)))
	slog.SetDefault(logger)
	return logger
}
