package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.chromium.org/luci/common/logging"

	"github.com/born-ml/modelio/internal/executor"
	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/serialization"
)

// IsParameter reports whether v is a parameter.
func IsParameter(v *framework.Variable) bool {
	return v.IsParameter()
}

// IsPersistable reports whether v outlives a single run.
// Feed and fetch holders are never persisted.
func IsPersistable(v *framework.Variable) bool {
	switch v.Type() {
	case framework.VarTypeFeedMinibatch, framework.VarTypeFetchList:
		return false
	default:
		return v.Persistable()
	}
}

// VarsOptions selects the variables a save or load operates on.
//
// When Vars is nil, the variables of Program (the default main program
// when nil) accepted by Predicate are used; a nil Predicate accepts
// none. A non-nil Vars is used as given and Program is ignored.
type VarsOptions struct {
	Program   *framework.Program
	Vars      []*framework.Variable
	Predicate func(*framework.Variable) bool
}

func (o VarsOptions) selected() []*framework.Variable {
	if o.Vars != nil {
		return o.Vars
	}
	program := o.Program
	if program == nil {
		program = framework.DefaultMainProgram()
	}
	if o.Predicate == nil {
		return []*framework.Variable{}
	}
	var vars []*framework.Variable
	for _, v := range program.ListVars() {
		if o.Predicate(v) {
			vars = append(vars, v)
		}
	}
	return vars
}

// SaveVars writes the selected variables from the executor's scope to
// dirname, one file per variable.
func SaveVars(ctx context.Context, exe executor.Executor, dirname string, opts VarsOptions) error {
	vars := opts.selected()
	p, err := ioProgram(framework.OpSave, dirname, vars)
	if err != nil {
		return fmt.Errorf("save vars: %w", err)
	}
	if exe == nil {
		return ErrNilExecutor
	}
	logging.Debugf(ctx, "persist: saving %d variables to %s", len(vars), dirname)
	if _, err := exe.Run(ctx, p, nil, nil); err != nil {
		return fmt.Errorf("save vars to %s: %w", dirname, err)
	}
	return nil
}

// SaveParams saves every parameter of program.
func SaveParams(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	return SaveVars(ctx, exe, dirname, VarsOptions{Program: program, Predicate: IsParameter})
}

// SavePersistables saves every persistable variable of program.
func SavePersistables(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	return SaveVars(ctx, exe, dirname, VarsOptions{Program: program, Predicate: IsPersistable})
}

// LoadVars reads the selected variables from dirname into the executor's scope.
func LoadVars(ctx context.Context, exe executor.Executor, dirname string, opts VarsOptions) error {
	vars := opts.selected()
	p, err := ioProgram(framework.OpLoad, dirname, vars)
	if err != nil {
		return fmt.Errorf("load vars: %w", err)
	}
	if exe == nil {
		return ErrNilExecutor
	}
	logging.Debugf(ctx, "persist: loading %d variables from %s", len(vars), dirname)
	if _, err := exe.Run(ctx, p, nil, nil); err != nil {
		return fmt.Errorf("load vars from %s: %w", dirname, err)
	}
	return nil
}

// LoadParams loads every parameter of program.
func LoadParams(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	return LoadVars(ctx, exe, dirname, VarsOptions{Program: program, Predicate: IsParameter})
}

// LoadPersistables loads every persistable variable of program.
func LoadPersistables(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	return LoadVars(ctx, exe, dirname, VarsOptions{Program: program, Predicate: IsPersistable})
}

// LoadPersistablesIfExist loads the persistable variables of program that
// have a file in dirname and skips the rest.
func LoadPersistablesIfExist(ctx context.Context, exe executor.Executor, dirname string, program *framework.Program) error {
	entries, err := os.ReadDir(dirname)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoModelDir, dirname)
		}
		return fmt.Errorf("failed to list %s: %w", dirname, err)
	}
	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			files[e.Name()] = true
		}
	}

	var skipped []string
	err = LoadVars(ctx, exe, dirname, VarsOptions{
		Program: program,
		Predicate: func(v *framework.Variable) bool {
			if !IsPersistable(v) {
				return false
			}
			if !files[v.Name()] {
				skipped = append(skipped, v.Name())
				return false
			}
			return true
		},
	})
	if len(skipped) > 0 {
		logging.Debugf(ctx, "persist: no file in %s for %v", dirname, skipped)
	}
	return err
}

// ioProgram builds a program with one save or load operator per variable.
// Each variable is redeclared as persistable in the new program.
func ioProgram(opType, dirname string, vars []*framework.Variable) (*framework.Program, error) {
	p := framework.NewProgram()
	gb := p.GlobalBlock()
	for _, v := range vars {
		if v == nil {
			return nil, ErrNilVariable
		}
		if err := serialization.ValidateTensorName(v.Name()); err != nil {
			return nil, err
		}
		nv, err := cloneVar(gb, v)
		if err != nil {
			return nil, err
		}

		desc := framework.OpDesc{
			Type:  opType,
			Attrs: map[string]any{framework.AttrFilePath: filepath.Join(dirname, nv.Name())},
		}
		if opType == framework.OpSave {
			desc.Inputs = map[string][]string{"X": {nv.Name()}}
		} else {
			desc.Outputs = map[string][]string{"Out": {nv.Name()}}
		}
		if _, err := gb.AppendOp(desc); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func cloneVar(b *framework.Block, v *framework.Variable) (*framework.Variable, error) {
	desc := v.Desc()
	desc.Persistable = true
	return b.CreateVar(desc)
}
