package executor

import (
	"context"
	"fmt"

	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/parallel"
	"github.com/born-ml/modelio/internal/tensor"
)

// registerMathOps adds the forward math operators.
func (r *Registry) registerMathOps() {
	r.Register("fill_constant", handleFillConstant)
	r.Register("assign", handleAssign)
	r.Register("mul", handleMul)
	r.Register("elementwise_add", handleElementwiseAdd)
	r.Register("relu", handleRelu)
	r.Register("scale", handleScale)
	r.Register("mean", handleMean)
}

// handleFillConstant writes a tensor of the given shape filled with value.
// The element type follows the declared output variable.
func handleFillConstant(_ context.Context, oc *OpContext, op *framework.Operator) error {
	name, err := argument(op.Output("Out"), op, "Out")
	if err != nil {
		return err
	}
	if !op.HasAttr("shape") {
		return fmt.Errorf("%w: fill_constant needs shape", ErrMissingAttr)
	}
	dtype := tensor.Float32
	if v, err := op.Block().FindVarRecursive(name); err == nil {
		dtype = v.DType()
	}

	t, err := tensor.NewRaw(tensor.Shape(op.AttrInts("shape")), dtype)
	if err != nil {
		return fmt.Errorf("fill_constant %s: %w", name, err)
	}
	value := op.AttrFloat("value", 0)
	switch dtype {
	case tensor.Float32:
		fill(t.AsFloat32(), value)
	case tensor.Float64:
		fill(t.AsFloat64(), float64(value))
	case tensor.Int32:
		fill(t.AsInt32(), int32(value))
	case tensor.Int64:
		fill(t.AsInt64(), int64(value))
	case tensor.Uint8:
		fill(t.AsUint8(), uint8(value))
	case tensor.Bool:
		fill(t.AsBool(), value != 0)
	default:
		return fmt.Errorf("%w: fill_constant %s", ErrUnsupportedDType, dtype)
	}

	oc.Scope.Set(name, t)
	return nil
}

func fill[T any](dst []T, v T) {
	for i := range dst {
		dst[i] = v
	}
}

func handleAssign(_ context.Context, oc *OpContext, op *framework.Operator) error {
	x, err := oc.input(op, "X")
	if err != nil {
		return err
	}
	return oc.setOutput(op, "Out", x.Clone())
}

// handleMul multiplies X and Y after flattening each to a matrix.
// x_num_col_dims (y_num_col_dims) leading dimensions form the rows of X (Y).
func handleMul(_ context.Context, oc *OpContext, op *framework.Operator) error {
	x, err := oc.float32Input(op, "X")
	if err != nil {
		return err
	}
	y, err := oc.float32Input(op, "Y")
	if err != nil {
		return err
	}

	xs, ys := x.Shape(), y.Shape()
	xn := op.AttrInt("x_num_col_dims", 1)
	yn := op.AttrInt("y_num_col_dims", 1)
	if xn < 1 || xn >= len(xs) || yn < 1 || yn >= len(ys) {
		return fmt.Errorf("%w: mul of %v (x_num_col_dims=%d) and %v (y_num_col_dims=%d)", ErrShapeMismatch, xs, xn, ys, yn)
	}
	m, k := product(xs[:xn]), product(xs[xn:])
	k2, n := product(ys[:yn]), product(ys[yn:])
	if k != k2 {
		return fmt.Errorf("%w: mul of %v and %v (inner %d != %d)", ErrShapeMismatch, xs, ys, k, k2)
	}

	outShape := append(xs[:xn].Clone(), ys[yn:]...)
	out, err := tensor.NewRaw(outShape, tensor.Float32)
	if err != nil {
		return err
	}
	a, b, c := x.AsFloat32(), y.AsFloat32(), out.AsFloat32()
	parallel.Range(m, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			for p := 0; p < k; p++ {
				av := a[i*k+p]
				for j := 0; j < n; j++ {
					c[i*n+j] += av * b[p*n+j]
				}
			}
		}
	}, oc.Parallel)
	return oc.setOutput(op, "Out", out)
}

// handleElementwiseAdd computes X + Y, broadcasting Y over X.
// Y's dimensions line up with X's starting at axis (-1 aligns trailing dimensions).
func handleElementwiseAdd(_ context.Context, oc *OpContext, op *framework.Operator) error {
	x, err := oc.float32Input(op, "X")
	if err != nil {
		return err
	}
	y, err := oc.float32Input(op, "Y")
	if err != nil {
		return err
	}

	xs, ys := x.Shape(), y.Shape()
	axis := op.AttrInt("axis", -1)
	if axis == -1 {
		axis = len(xs) - len(ys)
	}
	if axis < 0 || axis+len(ys) > len(xs) || !xs[axis:axis+len(ys)].Equal(ys) {
		return fmt.Errorf("%w: elementwise_add of %v and %v at axis %d", ErrShapeMismatch, xs, ys, axis)
	}
	pre, n, post := product(xs[:axis]), product(ys), product(xs[axis+len(ys):])

	out := x.Clone()
	o, b := out.AsFloat32(), y.AsFloat32()
	for i := 0; i < pre; i++ {
		for j := 0; j < n; j++ {
			base := (i*n + j) * post
			for l := 0; l < post; l++ {
				o[base+l] += b[j]
			}
		}
	}
	return oc.setOutput(op, "Out", out)
}

func handleRelu(_ context.Context, oc *OpContext, op *framework.Operator) error {
	x, err := oc.float32Input(op, "X")
	if err != nil {
		return err
	}
	out := x.Clone()
	o := out.AsFloat32()
	for i, v := range o {
		if v < 0 {
			o[i] = 0
		}
	}
	return oc.setOutput(op, "Out", out)
}

// handleScale computes X*scale + bias.
func handleScale(_ context.Context, oc *OpContext, op *framework.Operator) error {
	x, err := oc.float32Input(op, "X")
	if err != nil {
		return err
	}
	scale := op.AttrFloat("scale", 1)
	bias := op.AttrFloat("bias", 0)
	out := x.Clone()
	o := out.AsFloat32()
	for i := range o {
		o[i] = o[i]*scale + bias
	}
	return oc.setOutput(op, "Out", out)
}

// handleMean reduces X to a one-element tensor holding its mean.
func handleMean(_ context.Context, oc *OpContext, op *framework.Operator) error {
	x, err := oc.float32Input(op, "X")
	if err != nil {
		return err
	}
	var sum float64
	for _, v := range x.AsFloat32() {
		sum += float64(v)
	}
	out, err := tensor.FromFloat32([]float32{float32(sum / float64(x.NumElements()))}, tensor.Shape{1})
	if err != nil {
		return err
	}
	return oc.setOutput(op, "Out", out)
}

func product(dims tensor.Shape) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
