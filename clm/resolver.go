package clm

import (
	"errors"
	"fmt"
	"time"
)

// Result is the outcome of probing one rotation capability.
type Result struct {
	// Found reports whether the operation existed and was invoked.
	// When false, the other fields are meaningless and the resolver
	// moves on to the next strategy.
	Found bool

	// Name is the strategy label, e.g. "ConnIDManager.Rotate()".
	Name string

	// Issued carries a newly issued identifier, when the operation
	// returns one.
	Issued string

	// Err is the call failure, nil when the invocation succeeded.
	Err error
}

// Endpoint is the narrow rotation surface the lifecycle manager works
// against. An adapter implements it for whatever transport is linked in
// (see QuicEndpoint); tests implement subsets of it with mocks.
type Endpoint interface {
	// Discover lists the candidate identifier-manager attachment points
	// present on the underlying connection. Diagnostic only; it does not
	// short-circuit strategy selection.
	Discover() []string

	// TryRotate attempts a manager-level rotate operation.
	TryRotate() Result

	// TryIssue attempts a manager-level "issue new identifier" operation.
	TryIssue() Result

	// TryDirectChange attempts a change operation directly on the
	// endpoint handle, not via a sub-manager.
	TryDirectChange() Result

	// Diagnostics snapshots known identifier fields (hex strings) for
	// postmortem use when no rotation surface was found.
	Diagnostics() map[string]string
}

// errCallTimeout marks a capability call that did not return in time.
var errCallTimeout = errors.New("capability call timed out")

const defaultCallTimeout = 500 * time.Millisecond

// Resolver tries rotation strategies in a strict priority order
// (rotate, then issue, then direct change) and commits to the first one
// whose operation exists, whether or not the call itself succeeds.
//
// Contract:
//   - AttemptRotation never panics and never returns an error; the outcome
//     is always a diagnosable (ok, Detail) pair.
//   - Each capability call runs behind CallTimeout and a recover guard. A
//     hung or panicking call counts as an attempted, failed strategy.
type Resolver struct {
	// CallTimeout bounds a single capability invocation.
	// Defaults to 500ms when zero.
	CallTimeout time.Duration
}

// AttemptRotation probes ep for a usable rotation surface and attempts at
// most one operation call. ok is true only if some operation was invoked
// and did not fail.
func (r *Resolver) AttemptRotation(ep Endpoint) (ok bool, detail Detail) {
	detail = Detail{Found: []string{}}
	if ep == nil {
		detail.Note = "nil endpoint"
		return false, detail
	}

	detail.Found = guardDiscover(ep)

	for _, try := range []func() Result{ep.TryRotate, ep.TryIssue, ep.TryDirectChange} {
		res := r.guard(try)
		if !res.Found {
			continue
		}
		// First attempted operation is the final answer; no further
		// managers or strategies are tried.
		detail.Strategy = res.Name
		detail.Issued = res.Issued
		if res.Err != nil {
			detail.Note = res.Err.Error()
			return false, detail
		}
		return true, detail
	}

	detail.Diag = guardDiagnostics(ep)
	detail.Note = "no known CID rotation surface on this endpoint"
	return false, detail
}

// guard runs one capability call behind the timeout and a panic recover.
func (r *Resolver) guard(try func() Result) Result {
	timeout := r.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	ch := make(chan Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- Result{Found: true, Err: fmt.Errorf("capability call panicked: %v", p)}
			}
		}()
		ch <- try()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res
	case <-timer.C:
		// The call is stuck; report it as an attempted failure so the
		// tick loop keeps running.
		return Result{Found: true, Err: errCallTimeout}
	}
}

func guardDiscover(ep Endpoint) (found []string) {
	defer func() {
		if recover() != nil {
			found = []string{}
		}
	}()
	found = ep.Discover()
	if found == nil {
		found = []string{}
	}
	return found
}

func guardDiagnostics(ep Endpoint) (diag map[string]string) {
	defer func() {
		if recover() != nil {
			diag = nil
		}
	}()
	return ep.Diagnostics()
}
