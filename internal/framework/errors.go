package framework

import "errors"

// Common errors.
var (
	ErrVarNotFound      = errors.New("variable not found")
	ErrEmptyName        = errors.New("variable name is empty")
	ErrVarConflict      = errors.New("variable already declared with different attributes")
	ErrUnknownArgument  = errors.New("operator argument is not a declared variable")
	ErrUnsupportedAttr  = errors.New("unsupported attribute type")
	ErrMalformedDesc    = errors.New("malformed program description")
	ErrForeignVariable  = errors.New("variable does not belong to this program")
	ErrNoGlobalBlock    = errors.New("program has no global block")
	ErrInvalidBlockDesc = errors.New("invalid block description")
)
