package logger

import (
	"context"
	"fmt"

	otellog "go.opentelemetry.io/otel/log"
)

// OTelHandler forwards entries to an OpenTelemetry log provider.
type OTelHandler struct {
	logger otellog.Logger
}

// NewOTelHandler creates a handler emitting through provider under the given
// instrumentation scope name.
func NewOTelHandler(provider otellog.LoggerProvider, scope string) *OTelHandler {
	return &OTelHandler{logger: provider.Logger(scope)}
}

// Handle converts the entry to an OpenTelemetry record and emits it.
func (h *OTelHandler) Handle(entry Entry) error {
	var rec otellog.Record
	rec.SetTimestamp(entry.Timestamp)
	rec.SetSeverity(otelSeverity(entry.Severity()))
	rec.SetSeverityText(entry.Level)
	rec.SetBody(otellog.StringValue(entry.Message))

	attrs := make([]otellog.KeyValue, 0, len(entry.Fields)+2)
	attrs = append(attrs, otellog.String("log.id", entry.ID))
	if entry.Service != "" {
		attrs = append(attrs, otellog.String("service.name", entry.Service))
	}
	for k, v := range entry.Fields {
		attrs = append(attrs, otelKeyValue(k, v))
	}
	rec.AddAttributes(attrs...)

	ctx := entry.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, rec)
	return nil
}

// Close is a no-op; the provider owns export shutdown.
func (h *OTelHandler) Close() error {
	return nil
}

func otelSeverity(l Level) otellog.Severity {
	switch l {
	case DebugLevel:
		return otellog.SeverityDebug
	case WarnLevel:
		return otellog.SeverityWarn
	case ErrorLevel:
		return otellog.SeverityError
	default:
		return otellog.SeverityInfo
	}
}

func otelKeyValue(k string, v interface{}) otellog.KeyValue {
	switch val := v.(type) {
	case string:
		return otellog.String(k, val)
	case bool:
		return otellog.Bool(k, val)
	case int:
		return otellog.Int(k, val)
	case int64:
		return otellog.Int64(k, val)
	case float64:
		return otellog.Float64(k, val)
	case error:
		return otellog.String(k, val.Error())
	default:
		return otellog.String(k, fmt.Sprint(val))
	}
}
