package persist

import (
	"context"
	"fmt"

	"github.com/born-ml/modelio/internal/executor"
	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/tensor"
)

// GetParameterValue returns a copy of the current value of param in the
// executor's scope.
func GetParameterValue(ctx context.Context, param *framework.Variable, exe executor.Executor) (*tensor.RawTensor, error) {
	if param == nil {
		return nil, ErrNilVariable
	}
	if !IsParameter(param) {
		return nil, fmt.Errorf("%w: %s", ErrNotParameter, param.Name())
	}
	if exe == nil {
		return nil, ErrNilExecutor
	}

	p := framework.NewProgram()
	v, err := cloneVar(p.GlobalBlock(), param)
	if err != nil {
		return nil, err
	}
	out, err := exe.Run(ctx, p, nil, []string{v.Name()})
	if err != nil {
		return nil, fmt.Errorf("get parameter %s: %w", param.Name(), err)
	}
	return out[0], nil
}

// GetParameterValueByName looks name up in the global block of program
// (the default main program when nil) and returns its current value.
func GetParameterValueByName(ctx context.Context, name string, exe executor.Executor, program *framework.Program) (*tensor.RawTensor, error) {
	if program == nil {
		program = framework.DefaultMainProgram()
	}
	v, err := program.GlobalBlock().Var(name)
	if err != nil {
		return nil, err
	}
	return GetParameterValue(ctx, v, exe)
}
