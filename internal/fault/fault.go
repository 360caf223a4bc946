// Package fault defines the error taxonomy shared by the session registry,
// the tool catalog and the dispatcher. Every recoverable failure in the
// query pipeline is carried as a *Error so callers branch on Kind instead of
// inspecting message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies where in the pipeline a failure happened.
type Kind int

const (
	Unknown Kind = iota

	// Connect: spawning a capability server or its initialize handshake failed.
	Connect

	// CatalogFetch: a Ready session could not list its tools.
	CatalogFetch

	// DecisionParse: reasoning output could not be read as a decision envelope.
	DecisionParse

	// Resolution: a parsed envelope names a server or tool that is not available.
	Resolution

	// Invocation: the remote tool call failed or reported an error result.
	Invocation

	// TimedOut: a bounded downstream call exceeded its deadline.
	TimedOut

	// Teardown: releasing a session transport failed.
	Teardown

	// Gateway: the reasoning engine returned no text at all. Fatal to a query.
	Gateway
)

func (k Kind) String() string {
	switch k {
	case Connect:
		return "connect"
	case CatalogFetch:
		return "catalog-fetch"
	case DecisionParse:
		return "decision-parse"
	case Resolution:
		return "resolution"
	case Invocation:
		return "invocation"
	case TimedOut:
		return "timed-out"
	case Teardown:
		return "teardown"
	case Gateway:
		return "gateway"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Session is empty for failures that are not
// tied to one capability server.
type Error struct {
	Kind    Kind
	Op      string
	Session string
	Err     error
}

// New builds an *Error. A nil err yields a nil *Error.
func New(kind Kind, op, session string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Session: session, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Session != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Session, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether any *Error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}
