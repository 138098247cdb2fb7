package logging

import (
	"context"
)

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	iterationKey contextKey = "iteration"
	depthKey     contextKey = "depth"
)

// WithRunID attaches a reasoning-run identifier to the context so every log
// entry emitted under it can be correlated.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunID extracts the run identifier from the context, if present.
func GetRunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok
}

// WithIteration attaches the current refinement iteration to the context.
func WithIteration(ctx context.Context, iteration int) context.Context {
	return context.WithValue(ctx, iterationKey, iteration)
}

// GetIteration extracts the refinement iteration from the context, if present.
func GetIteration(ctx context.Context) (int, bool) {
	i, ok := ctx.Value(iterationKey).(int)
	return i, ok
}

// WithDepth attaches the current search depth to the context.
func WithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey, depth)
}

// GetDepth extracts the search depth from the context, if present.
func GetDepth(ctx context.Context) (int, bool) {
	d, ok := ctx.Value(depthKey).(int)
	return d, ok
}
