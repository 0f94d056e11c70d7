package sandbox

import (
	"fmt"
	"time"
)

// NotFoundError reports a unit name that resolves to no artifact.
type NotFoundError struct {
	Unit string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unit not found: %s", e.Unit)
}

// TrapError reports a unit halted by the sandbox: fuel exhaustion, a
// forbidden operation, or a runtime fault. Reason never contains host
// internals.
type TrapError struct {
	Reason       string
	FuelConsumed uint64
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("unit trapped: %s", e.Reason)
}

// TimeoutError reports a unit torn down by the wall-clock watchdog.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("unit timed out after %s", e.Limit)
}
