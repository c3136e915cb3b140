package logging

import (
	"context"
	"strconv"
)

const (
	TraceIDKey       = "trace_id"
	MessageIDKey     = "message_id"
	ChatIDKey        = "chat_id"
	DestinationIDKey = "destination_id"
	ServiceNameKey   = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithMessageID tags the context with the source platform's message id.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, ChatIDKey, chatID)
}

func WithDestinationID(ctx context.Context, destinationID int64) context.Context {
	return context.WithValue(ctx, DestinationIDKey, destinationID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func GetMessageID(ctx context.Context) string {
	if messageID, ok := ctx.Value(MessageIDKey).(string); ok {
		return messageID
	}
	return ""
}

func GetChatID(ctx context.Context) (int64, bool) {
	chatID, ok := ctx.Value(ChatIDKey).(int64)
	return chatID, ok
}

func GetDestinationID(ctx context.Context) (int64, bool) {
	destinationID, ok := ctx.Value(DestinationIDKey).(int64)
	return destinationID, ok
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

// GetLogFields collects the well-known context keys as alternating
// key/value pairs suitable for the sugared logger's *w methods.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, "message_id", messageID)
	}

	if chatID, ok := GetChatID(ctx); ok {
		fields = append(fields, "chat_id", strconv.FormatInt(chatID, 10))
	}

	if destinationID, ok := GetDestinationID(ctx); ok {
		fields = append(fields, "destination_id", strconv.FormatInt(destinationID, 10))
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}
