package applog

import (
	"context"
	"go.uber.org/zap"
)

type logContextFieldKey struct{}

// FromContext returns the global logger decorated with every field stored on ctx.
func FromContext(ctx context.Context) *Logger {
	return globalLogger.With(getContextFields(ctx)...)
}

func getContextFields(ctx context.Context) []zap.Field {
	fields, ok := ctx.Value(logContextFieldKey{}).([]zap.Field)
	if !ok {
		return nil
	}
	return fields
}

// mergeContextFields puts new fields first; a key already on ctx is overridden by a new one.
func mergeContextFields(ctx context.Context, fields ...zap.Field) []zap.Field {
	current := getContextFields(ctx)
	result := make([]zap.Field, 0, len(current)+len(fields))
	seen := make(map[string]struct{}, len(current)+len(fields))
	for _, v := range fields {
		seen[v.Key] = struct{}{}
		result = append(result, v)
	}
	for _, v := range current {
		if _, ok := seen[v.Key]; ok {
			continue
		}
		seen[v.Key] = struct{}{}
		result = append(result, v)
	}
	return result
}

func AddContextFields(ctx context.Context, fields ...zap.Field) context.Context {
	fm := mergeContextFields(ctx, fields...)
	return context.WithValue(ctx, logContextFieldKey{}, fm)
}

// WithPlayer tags ctx with the player name and endpoint every harness log line carries.
func WithPlayer(ctx context.Context, playerName, endpoint string) context.Context {
	return AddContextFields(ctx,
		zap.String("playerName", playerName),
		zap.String("endpoint", endpoint),
	)
}

// WithScenario tags ctx with the scenario name.
func WithScenario(ctx context.Context, scenarioName string) context.Context {
	return AddContextFields(ctx, zap.String("scenario", scenarioName))
}
