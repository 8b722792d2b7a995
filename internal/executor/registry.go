package executor

import (
	"context"
	"fmt"
	"slices"

	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/parallel"
	"github.com/born-ml/modelio/internal/tensor"
)

// OpHandler runs one operator against the scope in oc.
type OpHandler func(ctx context.Context, oc *OpContext, op *framework.Operator) error

// OpContext provides the scope and settings shared by every operator of a run.
type OpContext struct {
	Scope *Scope

	// SkipChecksumValidation is passed to the variable file reader by load.
	SkipChecksumValidation bool

	// Parallel splits the row loops of matrix kernels.
	Parallel parallel.Config
}

// Registry maps operator types to handler functions.
type Registry struct {
	handlers map[string]OpHandler
}

// NewRegistry creates a registry with all built-in operators.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]OpHandler),
	}

	r.registerIOOps()
	r.registerMathOps()
	r.registerTrainingOps()

	return r
}

// Register adds or replaces an operator handler.
func (r *Registry) Register(opType string, handler OpHandler) {
	r.handlers[opType] = handler
}

// Get returns the handler for an operator type.
func (r *Registry) Get(opType string) (OpHandler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

// Execute runs one operator.
func (r *Registry) Execute(ctx context.Context, oc *OpContext, op *framework.Operator) error {
	handler, ok := r.handlers[op.Type()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedOp, op.Type())
	}
	return handler(ctx, oc, op)
}

// SupportedOps returns all registered operator types, sorted.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// argument returns the single variable name bound to a slot.
func argument(names []string, op *framework.Operator, slot string) (string, error) {
	switch len(names) {
	case 1:
		return names[0], nil
	case 0:
		return "", fmt.Errorf("%w: %s needs slot %s", ErrMissingArgument, op.Type(), slot)
	default:
		return "", fmt.Errorf("%s slot %s takes one argument, got %d", op.Type(), slot, len(names))
	}
}

// input reads the value bound to a single-argument input slot.
func (oc *OpContext) input(op *framework.Operator, slot string) (*tensor.RawTensor, error) {
	name, err := argument(op.Input(slot), op, slot)
	if err != nil {
		return nil, err
	}
	return oc.Scope.Var(name)
}

// float32Input is input restricted to float32 tensors.
func (oc *OpContext) float32Input(op *framework.Operator, slot string) (*tensor.RawTensor, error) {
	t, err := oc.input(op, slot)
	if err != nil {
		return nil, err
	}
	if t.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%w: %s input %s is %s, want float32", ErrUnsupportedDType, op.Type(), slot, t.DType())
	}
	return t, nil
}

// setOutput stores t under the variable bound to a single-argument output slot.
func (oc *OpContext) setOutput(op *framework.Operator, slot string, t *tensor.RawTensor) error {
	name, err := argument(op.Output(slot), op, slot)
	if err != nil {
		return err
	}
	oc.Scope.Set(name, t)
	return nil
}
