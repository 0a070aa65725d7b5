package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// observer funnels per-operation logs and metrics through one path so both
// workflow managers report identically.
type observer struct {
	logger          Logger
	metricsRecorder MetricsRecorder
	clock           Clock
}

func newObserver(logger Logger, recorder MetricsRecorder, clock Clock) observer {
	if recorder == nil {
		recorder = NopMetricsRecorder{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return observer{logger: logger, metricsRecorder: recorder, clock: clock}
}

func (o observer) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = o.clock().Sub(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"process_id", "process_kind", "state", "participant_context_id"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	o.recordCounter(ctx, "credstate."+operation+".total", 1, tags)
	o.recordHistogram(ctx, "credstate."+operation+".duration_ms", float64(o.clock().Sub(startedAt).Milliseconds()), tags)

	if err != nil {
		o.logError(ctx, operation+" failed", contextFields)
		return
	}
	o.logDebug(ctx, operation+" succeeded", contextFields)
}

func (o observer) logDebug(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "debug", message, fields)
}

func (o observer) logInfo(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "info", message, fields)
}

func (o observer) logError(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "error", message, fields)
}

func (o observer) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (o observer) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if o.metricsRecorder == nil {
		return
	}
	o.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (o observer) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.metricsRecorder == nil {
		return
	}
	o.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
