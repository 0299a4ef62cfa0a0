package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNoDatum          = errors.New("utxo carries no datum")
	ErrPriceExpired     = errors.New("price record expired")
	ErrFeedNameMismatch = errors.New("feed name does not match")
	ErrOutOfBounds      = errors.New("value outside choice bounds")
	ErrLockHeld         = errors.New("lock already held")
	ErrContractMoved    = errors.New("contract utxo not found")
)

// RequestError wraps a non-2xx HTTP response from any external collaborator.
// It keeps the status and (truncated) body for diagnostics.
type RequestError struct {
	Op     string
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

// IsNotFound reports whether err is a not-found-class failure, either the
// sentinel or an HTTP 404 from a collaborator. Not-found on the contract
// enumeration path is fatal for the cycle.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var re *RequestError
	return errors.As(err, &re) && re.Status == 404
}

// DecodeError reports a datum that did not match the expected shape. Shape
// names the feed format ("charli3", "orcfax"), Field the element that failed
// to match.
type DecodeError struct {
	Shape string
	Field string
	Msg   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s datum: %s: %s", e.Shape, e.Field, e.Msg)
}

// FeedError reports a per-choice price resolution failure. Always recoverable;
// the resolver records the choice as absent and moves on.
type FeedError struct {
	Choice string
	Reason string
	Err    error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed %s: %s: %v", e.Choice, e.Reason, e.Err)
	}
	return fmt.Sprintf("feed %s: %s", e.Choice, e.Reason)
}

func (e *FeedError) Unwrap() error { return e.Err }

// ScanError reports a per-header or per-page failure during contract
// enumeration. Recoverable unless the underlying error is not-found-class.
type ScanError struct {
	ContractID string
	Err        error
}

func (e *ScanError) Error() string {
	if e.ContractID == "" {
		return fmt.Sprintf("scan: %v", e.Err)
	}
	return fmt.Sprintf("scan %s: %v", e.ContractID, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// BuildError reports a per-request transaction build failure and the stage it
// occurred in. The request is dropped from the batch; the batch continues.
type BuildError struct {
	ContractID string
	Stage      string
	Err        error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s (%s): %v", e.ContractID, e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
