package persist

import "errors"

// Common errors.
var (
	ErrNilExecutor   = errors.New("executor is nil")
	ErrNilVariable   = errors.New("variable list contains nil")
	ErrNoFeedTargets = errors.New("feed target names must be a non-empty list of names")
	ErrNoTargets     = errors.New("targets must be a non-empty list of variables")
	ErrNotParameter  = errors.New("variable is not a parameter")
	ErrNoModelDir    = errors.New("model directory does not exist")
)
