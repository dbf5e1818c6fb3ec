// Package errors defines the error taxonomy shared by every pseudoFAT
// component: the image model, codec, checker, cache and defragmenter all
// return one of the sentinel values declared here, wrapped with contextual
// detail where it helps a caller.
package errors

import "fmt"

// FatError is a sentinel error: a bare string that implements the error
// interface so it can be compared with errors.Is, plus builders for
// attaching context without losing the sentinel identity.
type FatError string

const (
	// ErrIO covers read/write or open failures on the backing file.
	ErrIO = FatError("I/O failure accessing image")
	// ErrMalformedImage covers a truncated stream or an out-of-range boot
	// record field.
	ErrMalformedImage = FatError("malformed image")
	// ErrChainInconsistent means FAT copies disagree on a live chain and
	// badblock-matching recovery is disabled.
	ErrChainInconsistent = FatError("FAT copies disagree on a live chain")
	// ErrUnrecoverableBadBlock means every FAT copy marks a chain cluster BAD.
	ErrUnrecoverableBadBlock = FatError("chain references an unrecoverable bad block")
	// ErrChainCycle means a chain walk exceeded ClusterCount hops.
	ErrChainCycle = FatError("FAT chain contains a cycle")
	// ErrTooManyDivergences means the lost-cluster divergence count exceeded
	// MaxRecoverableErrors and force-accept was not set.
	ErrTooManyDivergences = FatError("too many recoverable FAT divergences")
	// ErrInsufficientFreeSpace means there isn't enough free space to
	// guarantee defragmentation can complete.
	ErrInsufficientFreeSpace = FatError("insufficient free space for defragmentation")
	// ErrInternalInvariant means the defragmenter's aligned-position lookup
	// or a predecessor search failed mid-operation: the image was not in the
	// state the checker promised.
	ErrInternalInvariant = FatError("internal invariant violated")
)

func (e FatError) Error() string {
	return string(e)
}

// WithMessage attaches a human-readable detail to the sentinel without
// losing its identity: errors.Is(result, ErrChainCycle) still succeeds.
func (e FatError) WithMessage(message string) DetailedError {
	return detailedError{
		message: fmt.Sprintf("%s: %s", string(e), message),
		sentinel: e,
	}
}

// WrapError attaches an underlying error as the cause.
func (e FatError) WrapError(cause error) DetailedError {
	return detailedError{
		message:  fmt.Sprintf("%s: %s", string(e), cause.Error()),
		sentinel: e,
		cause:    cause,
	}
}

// DetailedError is a FatError sentinel carrying a message and, optionally,
// an underlying cause. errors.Unwrap on it yields the sentinel, not the
// cause; the cause is exposed by the concrete value's Cause method.
type DetailedError interface {
	error
	Unwrap() error
}

type detailedError struct {
	message  string
	sentinel FatError
	cause    error
}

func (e detailedError) Error() string {
	return e.message
}

// Unwrap returns the sentinel FatError so errors.Is(err, ErrChainCycle) works
// on a detailedError built from it, not the wrapped cause. Is walks the
// chain and the sentinel is what callers compare against.
func (e detailedError) Unwrap() error {
	return e.sentinel
}

// Cause returns the underlying error passed to WrapError, if any.
func (e detailedError) Cause() error {
	return e.cause
}
