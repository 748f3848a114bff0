package errors

import (
	"errors"
	"fmt"
	"strconv"
)

// Status codes the embedded runtime uses for transaction control. They are
// reported as error codes when a primitive fails inside a transaction and are
// accepted as transaction outcomes.
const (
	CodeTPRestart  = 2147483646
	CodeTPRollback = 2147483645
)

// Codes raised by the reference runtime. Any backend may use its own codes;
// the bridge only interprets the transaction codes above.
const (
	CodeUndefined       = 150373850 // undefined local or global
	CodeInvalidSubs     = 150373122 // null or malformed subscript
	CodeInvalidName     = 150372994 // bad variable or routine name
	CodeIndirectionMax  = 150373210 // indirection string too long
	CodeNumericOverflow = 150373506 // $INCREMENT on non-numeric or overflow
	CodeRoutineMissing  = 150374090 // routine or label not found
	CodeReadOnly        = 150372770 // intrinsic variable is read only
	CodeTPNotActive     = 150374202 // tcommit/trollback with $TLEVEL 0
	CodeReentrant       = 150375010 // runtime entered while already executing
	CodeRoutineFailed   = 150373730 // routine raised an error
	CodeUnknownEntry    = 150374330 // no such call-in entry
	CodeInvalidArgs     = 150373906 // wrong parameter count or format
	CodeLockTimeout     = 150379546 // lock could not be acquired
)

// RuntimeError is a failure reported by the embedded runtime itself. It is
// propagated verbatim and never retried outside a transaction restart.
type RuntimeError struct {
	Message string
	Entry   string
	Code    int
}

func (e *RuntimeError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("[runtime] %s: %d %s", e.Entry, e.Code, e.Message)
	}
	return fmt.Sprintf("[runtime] %d %s", e.Code, e.Message)
}

// IsRestart reports whether the runtime asked for a transaction restart.
func (e *RuntimeError) IsRestart() bool {
	return e.Code == CodeTPRestart
}

// IsRollback reports whether the runtime asked for a transaction rollback.
func (e *RuntimeError) IsRollback() bool {
	return e.Code == CodeTPRollback
}

// NewRuntimeError builds a RuntimeError from a reply code and message.
func NewRuntimeError(entry string, code int, message string) *RuntimeError {
	return &RuntimeError{Entry: entry, Code: code, Message: message}
}

// ParseCode converts a textual error code. Non-numeric codes map to -1.
func ParseCode(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// AsRuntime extracts a RuntimeError from err's chain.
func AsRuntime(err error) (*RuntimeError, bool) {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// HasKind reports whether err's chain contains a bridge error of kind k.
func HasKind(err error, k Kind) bool {
	var be *Error
	for err != nil {
		if errors.As(err, &be) {
			if be.Kind == k {
				return true
			}
			err = be.Cause
			continue
		}
		return false
	}
	return false
}
