package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultFuel    uint64 = 100_000_000
	DefaultTimeout        = 5 * time.Second
)

// Limits bounds one execution. Fuel is charged per instruction; Timeout is
// enforced by a watchdog outside the interpreter.
type Limits struct {
	Fuel    uint64
	Timeout time.Duration
}

// InvalidInputError reports a payload the sandbox cannot hand to a unit.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

type Executor struct {
	dir    string
	limits Limits
	logger *zap.Logger
}

// Result is the outcome of a completed execution. Output is always valid
// JSON.
type Result struct {
	Output       json.RawMessage
	FuelConsumed uint64
	Duration     time.Duration
}

// Unit names resolve to files, so they carry no path syntax.
var unitNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

func NewExecutor(dir string, limits Limits, logger *zap.Logger) *Executor {
	if limits.Fuel == 0 {
		limits.Fuel = DefaultFuel
	}
	if limits.Timeout == 0 {
		limits.Timeout = DefaultTimeout
	}
	return &Executor{
		dir:    dir,
		limits: limits,
		logger: logger.Named("sandbox"),
	}
}

// Execute resolves unitName under the artifact directory and runs it with
// the payload bound to the input variable. The instance is torn down and
// partial output discarded when the watchdog fires.
func (e *Executor) Execute(ctx context.Context, unitName string, payload json.RawMessage) (*Result, error) {
	start := time.Now()

	// Loading
	if !unitNameRe.MatchString(unitName) {
		return nil, &NotFoundError{Unit: unitName}
	}
	raw, err := os.ReadFile(filepath.Join(e.dir, unitName+".unit"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Unit: unitName}
		}
		return nil, fmt.Errorf("load unit %s: %w", unitName, err)
	}
	program, err := parseProgram(raw)
	if err != nil {
		e.logger.Warn("malformed unit artifact", zap.String("unit", unitName), zap.Error(err))
		return nil, &TrapError{Reason: "unit artifact is malformed"}
	}

	var input any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &input); err != nil {
			return nil, &InvalidInputError{Reason: "payload is not valid JSON"}
		}
	}

	// Instantiated
	inst := newInstance(program, e.limits.Fuel)

	runCtx, cancel := context.WithTimeout(ctx, e.limits.Timeout)
	defer cancel()

	// Running
	type outcome struct {
		out any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := inst.run(runCtx, input)
		done <- outcome{out: out, err: err}
	}()

	select {
	case <-runCtx.Done():
		// Watchdog fired independently of the interpreter's own metering.
		inst.halt()
		e.logger.Warn("unit timed out",
			zap.String("unit", unitName),
			zap.Duration("limit", e.limits.Timeout))
		return nil, &TimeoutError{Limit: e.limits.Timeout}

	case o := <-done:
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) || errors.Is(o.err, context.Canceled) {
				return nil, &TimeoutError{Limit: e.limits.Timeout}
			}
			var trap *TrapError
			if errors.As(o.err, &trap) {
				e.logger.Warn("unit trapped",
					zap.String("unit", unitName),
					zap.String("reason", trap.Reason),
					zap.Uint64("fuel_consumed", trap.FuelConsumed))
			}
			return nil, o.err
		}

		output, err := json.Marshal(o.out)
		if err != nil {
			return nil, &TrapError{Reason: "unit produced unencodable output", FuelConsumed: inst.fuelConsumed()}
		}

		res := &Result{
			Output:       output,
			FuelConsumed: inst.fuelConsumed(),
			Duration:     time.Since(start),
		}
		e.logger.Debug("unit completed",
			zap.String("unit", unitName),
			zap.Uint64("fuel_consumed", res.FuelConsumed),
			zap.Duration("duration", res.Duration))
		return res, nil
	}
}
