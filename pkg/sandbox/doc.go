// Package sandbox executes caller-supplied compute units in isolation.
// A unit is a JSON-encoded program for a small stack machine, stored as
// <name>.unit under the executor's artifact directory. The request payload
// is bound to the "input" variable before execution and the value on top of
// the stack when the program halts is returned as the structured output.
//
// Units run under two independent bounds: a fuel ceiling charged per
// instruction, and a wall-clock watchdog supervising the run from outside
// the interpreter. Fuel bounds CPU no matter what the unit computes; the
// watchdog bounds units that stall on the blocking sleep primitive while
// burning almost no fuel. No instruction can reach the filesystem, the
// network, or process state.
package sandbox
