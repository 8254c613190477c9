// Package recovery decides how parsers react to malformed input.
package recovery

import "sync"

// Strategy is consulted whenever a parser hits malformed input.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Location identifies where an error happened.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

// StrictStrategy fails on every error.
type StrictStrategy struct{}

func (StrictStrategy) OnError(error, Location) Action { return ActionFail }

// LenientStrategy keeps going past malformed input and records what it
// skipped so callers can report degraded results.
type LenientStrategy struct {
	mu     sync.Mutex
	issues []Issue
}

// Issue is one recorded recovery.
type Issue struct {
	Err      error
	Location Location
}

func (l *LenientStrategy) OnError(err error, loc Location) Action {
	l.mu.Lock()
	l.issues = append(l.issues, Issue{Err: err, Location: loc})
	l.mu.Unlock()
	return ActionFix
}

// Issues returns the recoveries recorded so far.
func (l *LenientStrategy) Issues() []Issue {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Issue(nil), l.issues...)
}
