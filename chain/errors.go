// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chain

import (
	"errors"
	"fmt"
)

// Kind classifies a chain failure for retry policy decisions.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransientNetwork covers RPC connectivity flaps; retry with backoff.
	KindTransientNetwork
	// KindTransientChain covers recoverable tx rejections (sequence, fee);
	// refetch sequence and retry a bounded number of times.
	KindTransientChain
	// KindBadRequest covers malformed input; fail fast.
	KindBadRequest
	// KindInsufficientFunds means the custodial wallet is underfunded; the
	// farmer is marked for a balance re-check instead of retrying.
	KindInsufficientFunds
)

// String implements stringer.
func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient_network"
	case KindTransientChain:
		return "transient_chain"
	case KindBadRequest:
		return "permanent_bad_request"
	case KindInsufficientFunds:
		return "insufficient_funds"
	default:
		return "unknown"
	}
}

// Error is a chain failure tagged with its kind. It wraps the underlying
// cause so callers may classify errors after arbitrary wrapping.
type Error struct {
	kind  Kind
	cause error
}

// NewError tags cause with the given kind.
func NewError(kind Kind, cause error) *Error {
	return &Error{kind: kind, cause: cause}
}

// Errorf tags a formatted message with the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, cause: fmt.Errorf(format, args...)}
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind { return e.kind }

// Error implements error.
func (e *Error) Error() string {
	return e.kind.String() + ": " + e.cause.Error()
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// KindOf classifies err, unwrapping as needed. Errors that never pass
// through the adapter classify as KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransientNetwork, KindTransientChain:
		return true
	default:
		return false
	}
}

// IsInsufficientFunds reports whether err is an underfunded-wallet failure.
func IsInsufficientFunds(err error) bool {
	return KindOf(err) == KindInsufficientFunds
}
