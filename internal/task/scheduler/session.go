package scheduler

import "context"

type sessionKey struct{}
type runIDKey struct{}

// WithSession attaches sess to ctx. Runs get it from the scheduler; task
// bodies called directly (tests, tools) get it here.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFrom returns the run's prepared session, or nil outside a run.
func SessionFrom(ctx context.Context) Session {
	if ctx == nil {
		return nil
	}
	return ctx.Value(sessionKey{})
}

// RunIDFrom returns the id of the run executing ctx.
func RunIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
