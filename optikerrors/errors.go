// Package optikerrors collects the domain-level error kinds from spec.md §7:
// WorldError, EchidnaError, and GenericError. Each kind is a sentinel that
// callers can match with errors.Is; the helper constructors wrap the
// sentinel with the offending detail (address, tag, filename) the way the
// teacher wraps lower-level failures with fmt.Errorf("...: %w", err)
// (see core/tx_executor.go).
package optikerrors

import (
	"errors"
	"fmt"
)

// World errors (spec.md §7, "WorldError" kind).
var (
	ErrDeploymentCollision    = errors.New("address already in use")
	ErrNoContractAtAddress    = errors.New("no contract deployed at address")
	ErrNoActiveContract       = errors.New("no contract is currently executing")
	ErrUnsupportedTxType      = errors.New("unsupported outgoing transaction type")
	ErrReturnBufferOverflow   = errors.New("message call returned more bytes than the caller's buffer allocated")
	ErrNoMoreTransactions     = errors.New("no more transactions to execute")
	ErrMonitorAlreadyAttached = errors.New("monitor already attached")
	ErrMonitorNotAttached     = errors.New("monitor was not attached")
)

// Echidna corpus-bridge errors (spec.md §7, "EchidnaError" kind).
var (
	ErrUnsupportedArgTag  = errors.New("unsupported ABI argument tag")
	ErrUnsupportedCallTag = errors.New("unsupported _call tag")
)

// Generic errors (spec.md §7, "GenericError" kind).
var (
	ErrFilenameExhausted = errors.New("can't find an available filename")
)

// World wraps sentinel with a formatted detail message, keeping the sentinel
// matchable via errors.Is/errors.As while surfacing the offending value.
func World(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}

// Echidna wraps sentinel the same way World does, for corpus-bridge errors.
func Echidna(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}

// Generic wraps sentinel the same way World does, for filename/IO errors.
func Generic(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}
