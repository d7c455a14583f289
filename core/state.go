package core

import (
	"sync"
	"time"
)

// ── Load states ───────────────────────────────────────────────────────────────

// LoadPhase enumerates the phases a request passes through.
type LoadPhase int

const (
	PhaseIdle LoadPhase = iota
	PhaseLoading
	PhaseSuccess
	PhaseFailure
)

func (p LoadPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseFailure:
		return "failure"
	}
	return "unknown"
}

// State is one immutable snapshot of load progress.  Concrete states are
// Idle, Loading, Success, and Failure; no other implementations exist.
type State interface {
	Phase() LoadPhase
}

// Idle is the initial state before a decode is dispatched.
type Idle struct{}

// Loading is entered exactly once when the decode is dispatched.
type Loading struct {
	StartedAt time.Time
}

// Success is the terminal state carrying the decoded result.
type Success struct {
	Result    *DecodeResult
	FromCache bool
	At        time.Time
}

// Failure is the terminal state carrying the load error.
type Failure struct {
	Err error
	At  time.Time
}

func (Idle) Phase() LoadPhase    { return PhaseIdle }
func (Loading) Phase() LoadPhase { return PhaseLoading }
func (Success) Phase() LoadPhase { return PhaseSuccess }
func (Failure) Phase() LoadPhase { return PhaseFailure }

// ── Request (one state-machine instance) ──────────────────────────────────────

// Request tracks the load progress of a single DecodeRequest.  Transitions
// are monotonic: Idle → Loading → {Success, Failure}.  Terminal states are
// entered at most once; after that the instance is immutable history.  A
// cancelled request is abandoned without a terminal transition.
//
// A new request identity always gets a fresh Request; old instances are
// never reused or mutated.
type Request struct {
	req DecodeRequest

	mu        sync.Mutex
	cur       State
	abandoned bool
	done      chan struct{}
	observers []func(State)
}

// NewRequest creates a state instance in the Idle phase.
func NewRequest(req DecodeRequest) *Request {
	return &Request{
		req:  req,
		cur:  Idle{},
		done: make(chan struct{}),
	}
}

// DecodeRequest returns the immutable request identity.
func (r *Request) DecodeRequest() DecodeRequest { return r.req }

// Key returns the request's content key.
func (r *Request) Key() uint64 { return r.req.Key() }

// State returns the current state snapshot.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// Done is closed when the request reaches a terminal state or is abandoned.
func (r *Request) Done() <-chan struct{} { return r.done }

// Cancelled reports whether the request was abandoned before completion.
func (r *Request) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abandoned
}

// Err returns the failure error when the request ended in Failure, else nil.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.cur.(Failure); ok {
		return f.Err
	}
	return nil
}

// OnTransition registers fn to be called with every subsequent state.  When
// the request is already terminal, fn is invoked immediately with the current
// state.  Callbacks run synchronously on the transitioning goroutine and must
// not block.
func (r *Request) OnTransition(fn func(State)) {
	r.mu.Lock()
	if r.cur.Phase() == PhaseSuccess || r.cur.Phase() == PhaseFailure {
		cur := r.cur
		r.mu.Unlock()
		fn(cur)
		return
	}
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// begin moves Idle → Loading.  Returns false if the request is not Idle or
// was abandoned.
func (r *Request) begin() bool {
	return r.transition(func(cur State) (State, bool) {
		if _, ok := cur.(Idle); !ok {
			return nil, false
		}
		return Loading{StartedAt: time.Now()}, true
	}, false)
}

// succeed moves Loading → Success.  Returns false once terminal or abandoned.
func (r *Request) succeed(res *DecodeResult, fromCache bool) bool {
	return r.transition(func(cur State) (State, bool) {
		if _, ok := cur.(Loading); !ok {
			return nil, false
		}
		return Success{Result: res, FromCache: fromCache, At: time.Now()}, true
	}, true)
}

// fail moves Loading → Failure.  Returns false once terminal or abandoned.
func (r *Request) fail(err error) bool {
	return r.transition(func(cur State) (State, bool) {
		if _, ok := cur.(Loading); !ok {
			return nil, false
		}
		return Failure{Err: err, At: time.Now()}, true
	}, true)
}

// abandon marks a non-terminal request as cancelled.  The current state is
// left as-is, no terminal transition ever occurs, and Done is closed so
// waiters unblock.  Returns false when already terminal or abandoned.
func (r *Request) abandon() bool {
	r.mu.Lock()
	if r.abandoned || r.cur.Phase() == PhaseSuccess || r.cur.Phase() == PhaseFailure {
		r.mu.Unlock()
		return false
	}
	r.abandoned = true
	r.observers = nil
	close(r.done)
	r.mu.Unlock()
	return true
}

func (r *Request) transition(step func(State) (State, bool), terminal bool) bool {
	r.mu.Lock()
	if r.abandoned {
		r.mu.Unlock()
		return false
	}
	next, ok := step(r.cur)
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.cur = next
	obs := r.observers
	if terminal {
		r.observers = nil
		close(r.done)
	}
	r.mu.Unlock()

	for _, fn := range obs {
		fn(next)
	}
	return true
}
