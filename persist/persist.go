// Package persist saves and restores parameters, persistable variables and
// inference models.
//
// This package wraps the internal implementation and exports the public API.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/modelio/executor"
//	    "github.com/born-ml/modelio/framework"
//	    "github.com/born-ml/modelio/persist"
//	)
//
//	exe := executor.NewCPUExecutor(nil, executor.Config{})
//	if _, err := exe.Run(ctx, startup, nil, nil); err != nil {
//	    log.Fatal(err)
//	}
//	err := persist.SaveInferenceModel(ctx, "model", []string{"x"}, []framework.Target{out}, exe, main)
//
//	model, err := persist.LoadInferenceModel(ctx, "model", exe)
//	results, err := exe.Run(ctx, model.Program, feed, model.FetchTargetNames())
package persist

import (
	"context"

	"github.com/born-ml/modelio/internal/executor"
	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/persist"
	"github.com/born-ml/modelio/internal/tensor"
)

// ModelFileName is the name of the program description file in a model directory.
const ModelFileName = persist.ModelFileName

// VarsOptions selects the variables a save or load operates on.
type VarsOptions = persist.VarsOptions

// InferenceModel is a loaded inference program with its inputs and outputs.
type InferenceModel = persist.InferenceModel

// Errors returned by persistence operations.
var (
	ErrNilExecutor   = persist.ErrNilExecutor
	ErrNilVariable   = persist.ErrNilVariable
	ErrNoFeedTargets = persist.ErrNoFeedTargets
	ErrNoTargets     = persist.ErrNoTargets
	ErrNotParameter  = persist.ErrNotParameter
	ErrNoModelDir    = persist.ErrNoModelDir
)

// IsParameter reports whether v is a parameter.
func IsParameter(v *framework.Variable) bool { return persist.IsParameter(v) }

// IsPersistable reports whether v outlives a single run.
func IsPersistable(v *framework.Variable) bool { return persist.IsPersistable(v) }

// SaveVars writes the selected variables to dirname, one file per variable.
func SaveVars(ctx context.Context, exe executor.Executor, dirname string, opts VarsOptions) error {
	return persist.SaveVars(ctx, exe, dirname, opts)
}

// SaveParams saves every parameter of program.
func SaveParams(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	return persist.SaveParams(ctx, exe, dirname, program)
}

// SavePersistables saves every persistable variable of program.
func SavePersistables(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	return persist.SavePersistables(ctx, exe, dirname, program)
}

// LoadVars reads the selected variables from dirname.
func LoadVars(ctx context.Context, exe executor.Executor, dirname string, opts VarsOptions) error {
	return persist.LoadVars(ctx, exe, dirname, opts)
}

// LoadParams loads every parameter of program.
func LoadParams(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	return persist.LoadParams(ctx, exe, dirname, program)
}

// LoadPersistables loads every persistable variable of program.
func LoadPersistables(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	return persist.LoadPersistables(ctx, exe, dirname, program)
}

// LoadPersistablesIfExist loads the persistable variables of program that have a file in dirname.
func LoadPersistablesIfExist(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	return persist.LoadPersistablesIfExist(ctx, exe, dirname, program)
}

// GetInferenceProgram prunes program to targets and switches it to inference mode.
func GetInferenceProgram(targets []framework.Target, program *framework.Program) (*framework.Program, error) {
	return persist.GetInferenceProgram(targets, program)
}

// PrependFeedOps adds a feed holder and one feed operator per name.
func PrependFeedOps(program *framework.Program, names []string, holder string) error {
	return persist.PrependFeedOps(program, names, holder)
}

// AppendFetchOps adds a fetch holder and one fetch operator per name.
func AppendFetchOps(program *framework.Program, names []string, holder string) error {
	return persist.AppendFetchOps(program, names, holder)
}

// GetFeedTargetNames returns the variables fed by program's feed operators.
func GetFeedTargetNames(program *framework.Program) []string {
	return persist.GetFeedTargetNames(program)
}

// GetFetchTargetNames returns the variables read by program's fetch operators.
func GetFetchTargetNames(program *framework.Program) []string {
	return persist.GetFetchTargetNames(program)
}

// SaveInferenceModel writes an inference program and its parameters to dirname.
func SaveInferenceModel(ctx context.Context, dirname string, feedNames []string, targets []framework.Target, exe executor.Executor, program *framework.Program) error {
	return persist.SaveInferenceModel(ctx, dirname, feedNames, targets, exe, program)
}

// LoadInferenceModel reads an inference model and its persistable variables from dirname.
func LoadInferenceModel(ctx context.Context, dirname string, exe executor.Executor) (*InferenceModel, error) {
	return persist.LoadInferenceModel(ctx, dirname, exe)
}

// GetParameterValue returns the current value of param.
func GetParameterValue(ctx context.Context, param *framework.Variable, exe executor.Executor) (*tensor.RawTensor, error) {
	return persist.GetParameterValue(ctx, param, exe)
}

// GetParameterValueByName returns the current value of the named parameter of program.
func GetParameterValueByName(ctx context.Context, name string, exe executor.Executor, program *framework.Program) (*tensor.RawTensor, error) {
	return persist.GetParameterValueByName(ctx, name, exe, program)
}
