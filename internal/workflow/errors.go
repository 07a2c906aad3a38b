package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlexZinkM/secret-commit/ethwallet"
)

// Kind classifies a workflow failure
type Kind string

const (
	KindInitialization Kind = "InitializationFailure"
	KindValidation     Kind = "ValidationFailure"
	KindUserRejection  Kind = "UserRejection"
	KindChain          Kind = "ChainFailure"
	KindAuthorization  Kind = "AuthorizationFailure"
	KindRelayer        Kind = "RelayerFailure"
)

var (
	// ErrBusy is returned when the requested step is already running
	ErrBusy = errors.New("workflow step already in progress")
	// ErrNotConnected is returned before Connect
	ErrNotConnected = errors.New("wallet not connected")
	// ErrNotYetPropagated is returned for Decrypt before the propagation gate elapsed
	ErrNotYetPropagated = errors.New("commitment not yet propagated")
	// ErrAlreadyCommitted is returned for Submit once a commitment exists for the identity
	ErrAlreadyCommitted = errors.New("identity already committed")
	// ErrNothingCommitted is returned for Decrypt before any submission
	ErrNothingCommitted = errors.New("nothing committed yet")
	// ErrInvalidState is returned when an action does not apply to the current state
	ErrInvalidState = errors.New("action not allowed in current state")
	// ErrSessionReset is returned when the session was torn down during a step
	ErrSessionReset = errors.New("session was reset")
	// ErrAuthorizationExpired is returned when the signed validity window has passed
	ErrAuthorizationExpired = errors.New("decryption authorization expired")
	// ErrNoCommitment is returned when the contract holds no handle for the identity
	ErrNoCommitment = errors.New("no commitment recorded for identity")
)

// Failure is the typed cause carried by the Error state
type Failure struct {
	Kind Kind
	// State is the state that failed
	State State
	// Resume is the state Recover returns to
	Resume  State
	Message string
	Err     error
	// Fatal failures cannot be recovered, only cleared by Disconnect
	Fatal bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s in %s: %s", f.Kind, f.State, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsKind reports whether err carries a Failure of kind k
func IsKind(err error, k Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == k
}

func newFailure(kind Kind, failed, resume State, msg string, err error) *Failure {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &Failure{Kind: kind, State: failed, Resume: resume, Message: msg, Err: err}
}

// isUserRejection checks if the wallet declined to sign
func isUserRejection(err error) bool {
	return errors.Is(err, ethwallet.ErrRejected) || errors.Is(err, ethwallet.ErrLocked)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
