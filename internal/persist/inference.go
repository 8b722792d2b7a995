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
)

// ModelFileName is the name of the program description file in a model directory.
const ModelFileName = "__model__"

// InferenceModel is a loaded inference program with its inputs and outputs.
type InferenceModel struct {
	Program         *framework.Program
	FeedTargetNames []string
	FetchTargets    []*framework.Variable
}

// FetchTargetNames returns the names of FetchTargets.
func (m *InferenceModel) FetchTargetNames() []string {
	names := make([]string, len(m.FetchTargets))
	for i, v := range m.FetchTargets {
		names[i] = v.Name()
	}
	return names
}

// GetInferenceProgram prunes program (the default main program when nil)
// to what targets need and switches it to inference mode. Evaluator
// targets contribute their state and metric variables.
func GetInferenceProgram(targets []framework.Target, program *framework.Program) (*framework.Program, error) {
	if program == nil {
		program = framework.DefaultMainProgram()
	}
	vars := framework.ExpandTargets(targets)
	if len(vars) == 0 {
		return nil, ErrNoTargets
	}
	pruned, err := program.Prune(vars)
	if err != nil {
		return nil, err
	}
	return pruned.InferenceOptimize(), nil
}

// PrependFeedOps adds a feed holder named holder (default "feed") and one
// feed operator per name. Every name must be declared in the global block.
func PrependFeedOps(program *framework.Program, names []string, holder string) error {
	if holder == "" {
		holder = executor.FeedHolder
	}
	return executor.PrependFeedOps(program, names, holder)
}

// AppendFetchOps adds a fetch holder named holder (default "fetch") and one
// fetch operator per name. Every name must be declared in the global block.
func AppendFetchOps(program *framework.Program, names []string, holder string) error {
	if holder == "" {
		holder = executor.FetchHolder
	}
	return executor.AppendFetchOps(program, names, holder)
}

// GetFeedTargetNames returns the variables fed by program's feed operators, by column.
func GetFeedTargetNames(program *framework.Program) []string {
	return executor.FeedTargetNames(program)
}

// GetFetchTargetNames returns the variables read by program's fetch operators, by column.
func GetFetchTargetNames(program *framework.Program) []string {
	return executor.FetchTargetNames(program)
}

// SaveInferenceModel writes an inference program and the parameters it
// needs to dirname.
//
// program (the default main program when nil) is pruned to targets and
// switched to inference mode. Feed operators for feedNames and fetch
// operators for the targets are added, and the result is written to
// dirname/__model__. Feed and fetch operators already in program are
// replaced, so a loaded model can be saved again. The parameters of the
// unpruned program are then saved from the executor's scope.
func SaveInferenceModel(ctx context.Context, dirname string, feedNames []string, targets []framework.Target, exe executor.Executor, program *framework.Program) error {
	if len(feedNames) == 0 {
		return ErrNoFeedTargets
	}
	for _, name := range feedNames {
		if name == "" {
			return ErrNoFeedTargets
		}
	}
	vars := framework.ExpandTargets(targets)
	if len(vars) == 0 {
		return ErrNoTargets
	}
	for _, v := range vars {
		if v == nil {
			return ErrNoTargets
		}
	}
	if exe == nil {
		return ErrNilExecutor
	}
	if program == nil {
		program = framework.DefaultMainProgram()
	}

	//nolint:gosec // G301: model directories are meant to be shared
	if err := os.MkdirAll(dirname, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	infer, err := GetInferenceProgram(targets, program)
	if err != nil {
		return fmt.Errorf("inference program: %w", err)
	}
	// A loaded inference model already carries feed and fetch operators.
	dropped := infer.GlobalBlock().RemoveOps(func(op *framework.Operator) bool {
		return op.Type() == framework.OpFeed || op.Type() == framework.OpFetch
	})
	if dropped > 0 {
		logging.Debugf(ctx, "persist: replacing %d feed/fetch ops", dropped)
	}
	if err := PrependFeedOps(infer, feedNames, ""); err != nil {
		return fmt.Errorf("inference program: %w", err)
	}
	fetchNames := make([]string, len(vars))
	for i, v := range vars {
		fetchNames[i] = v.Name()
	}
	if err := AppendFetchOps(infer, fetchNames, ""); err != nil {
		return fmt.Errorf("inference program: %w", err)
	}

	data, err := infer.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode inference program: %w", err)
	}
	modelPath := filepath.Join(dirname, ModelFileName)
	//nolint:gosec // G306: model files are meant to be shared
	if err := os.WriteFile(modelPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", modelPath, err)
	}

	fp, err := infer.Fingerprint()
	if err != nil {
		return err
	}
	logging.Infof(ctx, "persist: wrote %s (%d ops, fingerprint %016x), feed %v, fetch %v",
		modelPath, infer.GlobalBlock().NumOps(), fp, feedNames, fetchNames)

	return SaveParams(ctx, exe, dirname, program)
}

// LoadInferenceModel reads dirname/__model__ and loads the persistable
// variables that have files in dirname into the executor's scope.
func LoadInferenceModel(ctx context.Context, dirname string, exe executor.Executor) (*InferenceModel, error) {
	info, err := os.Stat(dirname)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNoModelDir, dirname)
	}
	if exe == nil {
		return nil, ErrNilExecutor
	}

	modelPath := filepath.Join(dirname, ModelFileName)
	//nolint:gosec // G304: reading the model file of a caller-chosen directory
	data, err := os.ReadFile(modelPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no %s in %s: %w", ModelFileName, dirname, err)
		}
		return nil, fmt.Errorf("failed to read %s: %w", modelPath, err)
	}
	program, err := framework.ParseProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", modelPath, err)
	}

	if err := LoadPersistablesIfExist(ctx, exe, dirname, program); err != nil {
		return nil, err
	}

	model := &InferenceModel{
		Program:         program,
		FeedTargetNames: GetFeedTargetNames(program),
	}
	gb := program.GlobalBlock()
	for _, name := range GetFetchTargetNames(program) {
		v, err := gb.Var(name)
		if err != nil {
			return nil, fmt.Errorf("%s: fetch target: %w", modelPath, err)
		}
		model.FetchTargets = append(model.FetchTargets, v)
	}

	fp, err := program.Fingerprint()
	if err != nil {
		return nil, err
	}
	logging.Infof(ctx, "persist: loaded %s (%d ops, fingerprint %016x), feed %v, fetch %v",
		modelPath, gb.NumOps(), fp, model.FeedTargetNames, model.FetchTargetNames())
	return model, nil
}
