package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	maxStackDepth = 1024
	maxSleep      = 10 * time.Second
)

var errHalted = errors.New("instance halted")

// instance is one isolated execution context: its own stack, variables and
// fuel tank. Nothing of the host is reachable from unit code.
type instance struct {
	program  *Program
	fuelLeft uint64
	fuelCap  uint64
	stack    []any
	vars     map[string]any
	halted   atomic.Bool
}

func newInstance(program *Program, fuel uint64) *instance {
	return &instance{
		program:  program,
		fuelLeft: fuel,
		fuelCap:  fuel,
		vars:     map[string]any{},
	}
}

func (in *instance) fuelConsumed() uint64 {
	return in.fuelCap - in.fuelLeft
}

// halt requests teardown from outside the interpreter loop.
func (in *instance) halt() {
	in.halted.Store(true)
}

func (in *instance) trap(format string, args ...any) error {
	return &TrapError{Reason: fmt.Sprintf(format, args...), FuelConsumed: in.fuelConsumed()}
}

func (in *instance) push(v any) error {
	if len(in.stack) >= maxStackDepth {
		return in.trap("stack overflow")
	}
	in.stack = append(in.stack, v)
	return nil
}

func (in *instance) pop() (any, error) {
	if len(in.stack) == 0 {
		return nil, in.trap("stack underflow")
	}
	v := in.stack[len(in.stack)-1]
	in.stack = in.stack[:len(in.stack)-1]
	return v, nil
}

func (in *instance) popNumber() (float64, error) {
	v, err := in.pop()
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok {
		return 0, in.trap("expected a number, got %T", v)
	}
	return n, nil
}

func (in *instance) popString() (string, error) {
	v, err := in.pop()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", in.trap("expected a string, got %T", v)
	}
	return s, nil
}

func (in *instance) popBool() (bool, error) {
	v, err := in.pop()
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, in.trap("expected a boolean, got %T", v)
	}
	return b, nil
}

func decodeArg[T any](in *instance, instr Instruction) (T, error) {
	var out T
	if instr.Arg == nil {
		return out, in.trap("%s requires an argument", instr.Op)
	}
	if err := json.Unmarshal(instr.Arg, &out); err != nil {
		return out, in.trap("malformed %s argument", instr.Op)
	}
	return out, nil
}

func (in *instance) jumpTarget(instr Instruction) (int, error) {
	target, err := decodeArg[int](in, instr)
	if err != nil {
		return 0, err
	}
	if target < 0 || target >= len(in.program.Instructions) {
		return 0, in.trap("jump target %d out of range", target)
	}
	return target, nil
}

// run interprets the program. input is the decoded request payload. The
// returned value is the output left on top of the stack when the program
// halts or falls off the end.
func (in *instance) run(ctx context.Context, input any) (any, error) {
	pc := 0
	for pc < len(in.program.Instructions) {
		if in.halted.Load() {
			return nil, errHalted
		}
		if in.fuelLeft == 0 {
			return nil, in.trap("fuel exhausted")
		}
		in.fuelLeft--

		instr := in.program.Instructions[pc]
		pc++

		switch instr.Op {
		case opConst:
			var v any
			if instr.Arg != nil {
				if err := json.Unmarshal(instr.Arg, &v); err != nil {
					return nil, in.trap("malformed const argument")
				}
			}
			if err := in.push(v); err != nil {
				return nil, err
			}

		case opInput:
			if err := in.push(input); err != nil {
				return nil, err
			}

		case opLoad:
			name, err := decodeArg[string](in, instr)
			if err != nil {
				return nil, err
			}
			v, ok := in.vars[name]
			if !ok {
				return nil, in.trap("undefined variable %q", name)
			}
			if err := in.push(v); err != nil {
				return nil, err
			}

		case opStore:
			name, err := decodeArg[string](in, instr)
			if err != nil {
				return nil, err
			}
			v, err := in.pop()
			if err != nil {
				return nil, err
			}
			in.vars[name] = v

		case opGet:
			key, err := decodeArg[string](in, instr)
			if err != nil {
				return nil, err
			}
			v, err := in.pop()
			if err != nil {
				return nil, err
			}
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, in.trap("get on a non-object value")
			}
			if err := in.push(obj[key]); err != nil {
				return nil, err
			}

		case opSet:
			key, err := decodeArg[string](in, instr)
			if err != nil {
				return nil, err
			}
			val, err := in.pop()
			if err != nil {
				return nil, err
			}
			v, err := in.pop()
			if err != nil {
				return nil, err
			}
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, in.trap("set on a non-object value")
			}
			updated := make(map[string]any, len(obj)+1)
			for k, ov := range obj {
				updated[k] = ov
			}
			updated[key] = val
			if err := in.push(updated); err != nil {
				return nil, err
			}

		case opAdd, opSub, opMul, opDiv:
			b, err := in.popNumber()
			if err != nil {
				return nil, err
			}
			a, err := in.popNumber()
			if err != nil {
				return nil, err
			}
			var r float64
			switch instr.Op {
			case opAdd:
				r = a + b
			case opSub:
				r = a - b
			case opMul:
				r = a * b
			case opDiv:
				if b == 0 {
					return nil, in.trap("division by zero")
				}
				r = a / b
			}
			if err := in.push(r); err != nil {
				return nil, err
			}

		case opConcat:
			b, err := in.popString()
			if err != nil {
				return nil, err
			}
			a, err := in.popString()
			if err != nil {
				return nil, err
			}
			if err := in.push(a + b); err != nil {
				return nil, err
			}

		case opEq:
			b, err := in.pop()
			if err != nil {
				return nil, err
			}
			a, err := in.pop()
			if err != nil {
				return nil, err
			}
			if err := in.push(equal(a, b)); err != nil {
				return nil, err
			}

		case opLt, opGt:
			b, err := in.popNumber()
			if err != nil {
				return nil, err
			}
			a, err := in.popNumber()
			if err != nil {
				return nil, err
			}
			r := a < b
			if instr.Op == opGt {
				r = a > b
			}
			if err := in.push(r); err != nil {
				return nil, err
			}

		case opNot:
			b, err := in.popBool()
			if err != nil {
				return nil, err
			}
			if err := in.push(!b); err != nil {
				return nil, err
			}

		case opDup:
			if len(in.stack) == 0 {
				return nil, in.trap("stack underflow")
			}
			if err := in.push(in.stack[len(in.stack)-1]); err != nil {
				return nil, err
			}

		case opPop:
			if _, err := in.pop(); err != nil {
				return nil, err
			}

		case opLen:
			v, err := in.pop()
			if err != nil {
				return nil, err
			}
			var n int
			switch t := v.(type) {
			case string:
				n = len(t)
			case []any:
				n = len(t)
			default:
				return nil, in.trap("len on a value that is neither string nor array")
			}
			if err := in.push(float64(n)); err != nil {
				return nil, err
			}

		case opAppend:
			val, err := in.pop()
			if err != nil {
				return nil, err
			}
			v, err := in.pop()
			if err != nil {
				return nil, err
			}
			arr, ok := v.([]any)
			if !ok {
				return nil, in.trap("append on a non-array value")
			}
			updated := make([]any, len(arr), len(arr)+1)
			copy(updated, arr)
			if err := in.push(append(updated, val)); err != nil {
				return nil, err
			}

		case opJump:
			target, err := in.jumpTarget(instr)
			if err != nil {
				return nil, err
			}
			pc = target

		case opJumpIf:
			target, err := in.jumpTarget(instr)
			if err != nil {
				return nil, err
			}
			cond, err := in.popBool()
			if err != nil {
				return nil, err
			}
			if cond {
				pc = target
			}

		case opSleep:
			ms, err := decodeArg[float64](in, instr)
			if err != nil {
				return nil, err
			}
			if ms < 0 {
				return nil, in.trap("negative sleep duration")
			}
			// Clamp before converting: a huge argument would overflow the
			// duration and wrap negative.
			if ms > float64(maxSleep/time.Millisecond) {
				ms = float64(maxSleep / time.Millisecond)
			}
			d := time.Duration(ms) * time.Millisecond
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case opHalt:
			return in.output(), nil

		default:
			return nil, in.trap("forbidden or unknown operation %q", instr.Op)
		}
	}

	return in.output(), nil
}

func (in *instance) output() any {
	if len(in.stack) == 0 {
		return nil
	}
	return in.stack[len(in.stack)-1]
}

func equal(a, b any) bool {
	an, aok := a.(float64)
	bn, bok := b.(float64)
	if aok && bok {
		return an == bn
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return a == nil && b == nil
}
