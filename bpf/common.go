package bpf

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedProgram  = errors.New("malformed program")
	ErrInvalidJumpTarget = errors.New("invalid jump target")
	ErrIllegalOpcode     = errors.New("illegal opcode")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrOutOfBounds       = errors.New("out of bounds memory access")
	ErrUnknownHelper     = errors.New("unknown helper function")
	ErrInstructionLimit  = errors.New("instruction limit exceeded")
	ErrCompile           = errors.New("failed to compile program")
	ErrBufferTooLarge    = errors.New("buffer does not fit in a memory region")
)

// ExecError reports a fault raised while a program was running. Both
// execution engines produce the same ExecError for the same fault, so
// results can be compared with require.Equal.
type ExecError struct {
	Err error
	PC  int
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("pc %d: %v", e.PC, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Fault builds the ExecError for err raised at pc.
func Fault(err error, pc int) error {
	return &ExecError{Err: err, PC: pc}
}
