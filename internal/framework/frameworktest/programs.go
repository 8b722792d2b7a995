// Package frameworktest builds small programs shared by tests.
package frameworktest

import (
	"testing"

	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/tensor"
)

// Linear holds a one-layer network and the startup program that initializes it:
//
//	hidden = relu(x·w + b)
//	out    = dropout(hidden, p=0.5)
//	loss   = mean(out)
//	w      = sgd(w, w@GRAD, learning_rate)
type Linear struct {
	Main    *framework.Program
	Startup *framework.Program

	X, W, B, Out, Loss, LR *framework.Variable
}

// Initial parameter values written by the startup program.
const (
	InitW  = 0.5
	InitB  = 0.1
	InitLR = 0.01
)

// NewLinear builds the Linear programs. It fails the test on any error.
func NewLinear(tb testing.TB) *Linear {
	tb.Helper()

	l := &Linear{
		Main:    framework.NewProgram(),
		Startup: framework.NewProgram(),
	}
	gb := l.Main.GlobalBlock()
	h := checker{tb}

	l.X = h.variable(gb.CreateVar(framework.VarDesc{Name: "x", DType: tensor.Float32, Shape: []int64{-1, 4}}))
	l.W = h.variable(gb.CreateParameter(framework.VarDesc{Name: "fc_0.w_0", DType: tensor.Float32, Shape: []int64{4, 2}}))
	l.B = h.variable(gb.CreateParameter(framework.VarDesc{Name: "fc_0.b_0", DType: tensor.Float32, Shape: []int64{2}}))
	xw := h.variable(gb.CreateVar(framework.VarDesc{Name: "fc_0.tmp_0", DType: tensor.Float32, Shape: []int64{-1, 2}}))
	pre := h.variable(gb.CreateVar(framework.VarDesc{Name: "fc_0.tmp_1", DType: tensor.Float32, Shape: []int64{-1, 2}}))
	hidden := h.variable(gb.CreateVar(framework.VarDesc{Name: "relu_0.tmp_0", DType: tensor.Float32, Shape: []int64{-1, 2}}))
	l.Out = h.variable(gb.CreateVar(framework.VarDesc{Name: "dropout_0.tmp_0", DType: tensor.Float32, Shape: []int64{-1, 2}}))
	l.Loss = h.variable(gb.CreateVar(framework.VarDesc{Name: "mean_0.tmp_0", DType: tensor.Float32, Shape: []int64{1}}))
	grad := h.variable(gb.CreateVar(framework.VarDesc{Name: "fc_0.w_0@GRAD", DType: tensor.Float32, Shape: []int64{4, 2}}))
	l.LR = h.variable(gb.CreateVar(framework.VarDesc{Name: "learning_rate_0", DType: tensor.Float32, Shape: []int64{1}, Persistable: true}))

	ops := []framework.OpDesc{
		{Type: "mul", Inputs: args("X", l.X, "Y", l.W), Outputs: args("Out", xw)},
		{Type: "elementwise_add", Inputs: args("X", xw, "Y", l.B), Outputs: args("Out", pre)},
		{Type: "relu", Inputs: args("X", pre), Outputs: args("Out", hidden)},
		{
			Type: "dropout", Inputs: args("X", hidden), Outputs: args("Out", l.Out),
			Attrs: map[string]any{"dropout_prob": float32(0.5), framework.AttrIsTest: false, "seed": 7},
		},
		{Type: "mean", Inputs: args("X", l.Out), Outputs: args("Out", l.Loss)},
		{
			Type: "fill_constant", Outputs: args("Out", grad),
			Attrs: map[string]any{"shape": []int{4, 2}, "value": float32(1)},
		},
		{
			Type:    "sgd",
			Inputs:  args("Param", l.W, "Grad", grad, "LearningRate", l.LR),
			Outputs: args("ParamOut", l.W),
		},
	}
	for _, od := range ops {
		h.op(gb.AppendOp(od))
	}

	sb := l.Startup.GlobalBlock()
	for _, iv := range []struct {
		v     *framework.Variable
		shape []int
		value float32
	}{
		{l.W, []int{4, 2}, InitW},
		{l.B, []int{2}, InitB},
		{l.LR, []int{1}, InitLR},
	} {
		sv := h.variable(sb.CreateVar(iv.v.Desc()))
		h.op(sb.AppendOp(framework.OpDesc{
			Type:    "fill_constant",
			Outputs: args("Out", sv),
			Attrs:   map[string]any{"shape": iv.shape, "value": iv.value},
		}))
	}

	return l
}

// args builds a slot map from alternating slot names and variables.
func args(pairs ...any) map[string][]string {
	m := make(map[string][]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		slot := pairs[i].(string)
		v := pairs[i+1].(*framework.Variable)
		m[slot] = append(m[slot], v.Name())
	}
	return m
}

type checker struct {
	tb testing.TB
}

func (c checker) variable(v *framework.Variable, err error) *framework.Variable {
	c.tb.Helper()
	if err != nil {
		c.tb.Fatalf("frameworktest: %v", err)
	}
	return v
}

func (c checker) op(op *framework.Operator, err error) *framework.Operator {
	c.tb.Helper()
	if err != nil {
		c.tb.Fatalf("frameworktest: %v", err)
	}
	return op
}
