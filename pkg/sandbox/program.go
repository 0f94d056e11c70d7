package sandbox

import (
	"encoding/json"
	"errors"
)

// Opcodes accepted by the interpreter. Anything else traps as a forbidden
// operation.
const (
	opConst  = "const"  // push arg
	opInput  = "input"  // push the request payload
	opLoad   = "load"   // push variable named by arg
	opStore  = "store"  // pop into variable named by arg
	opGet    = "get"    // pop object, push object[arg] (missing key pushes null)
	opSet    = "set"    // pop value, pop object, push object with arg set to value
	opAdd    = "add"    // pop b, pop a, push a+b
	opSub    = "sub"    // pop b, pop a, push a-b
	opMul    = "mul"    // pop b, pop a, push a*b
	opDiv    = "div"    // pop b, pop a, push a/b; b == 0 traps
	opConcat = "concat" // pop b, pop a, push a+b for strings
	opEq     = "eq"     // pop b, pop a, push a == b
	opLt     = "lt"     // pop b, pop a, push a < b
	opGt     = "gt"     // pop b, pop a, push a > b
	opNot    = "not"    // pop bool, push negation
	opDup    = "dup"    // duplicate top of stack
	opPop    = "pop"    // discard top of stack
	opLen    = "len"    // pop string or array, push its length
	opAppend = "append" // pop value, pop array, push array with value appended
	opJump   = "jump"   // set pc to arg
	opJumpIf = "jumpif" // pop bool, set pc to arg when true
	opSleep  = "sleep"  // block for arg milliseconds (the only blocking primitive)
	opHalt   = "halt"   // stop; top of stack is the output
)

type Instruction struct {
	Op  string          `json:"op"`
	Arg json.RawMessage `json:"arg,omitempty"`
}

// Program is the parsed form of a unit artifact.
type Program struct {
	Instructions []Instruction `json:"instructions"`
}

func parseProgram(raw []byte) (*Program, error) {
	var p Program
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Instructions) == 0 {
		return nil, errors.New("program has no instructions")
	}
	return &p, nil
}
