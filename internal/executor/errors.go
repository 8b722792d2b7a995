package executor

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrNilProgram       = errors.New("program is nil")
	ErrUnsupportedOp    = errors.New("unsupported operator")
	ErrVarNotFound      = errors.New("variable not found in scope")
	ErrMissingArgument  = errors.New("operator argument missing")
	ErrMissingAttr      = errors.New("operator attribute missing")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrUnsupportedDType = errors.New("unsupported data type")
	ErrDTypeMismatch    = errors.New("stored data type does not match variable")
	ErrFileExists       = errors.New("file exists and overwrite is disabled")
	ErrFeedMismatch     = errors.New("feed targets do not match program feed operators")
	ErrFetchMismatch    = errors.New("fetch targets do not match program fetch operators")
)

// OpError reports a failure of one operator.
type OpError struct {
	Index int    // Position in the block
	Type  string // Operator type
	Err   error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("op #%d (%s): %v", e.Index, e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error { return e.Err }
