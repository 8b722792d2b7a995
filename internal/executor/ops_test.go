package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/modelio/internal/executor"
	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/serialization"
	"github.com/born-ml/modelio/internal/tensor"
)

// runOp declares every name used by desc, seeds the scope with inputs and
// runs the single operator.
func runOp(t *testing.T, scope *executor.Scope, desc framework.OpDesc, dtypes map[string]tensor.DataType) error {
	t.Helper()
	p := framework.NewProgram()
	gb := p.GlobalBlock()
	for _, slots := range []map[string][]string{desc.Inputs, desc.Outputs} {
		for _, names := range slots {
			for _, name := range names {
				_, err := gb.CreateVar(framework.VarDesc{Name: name, DType: dtypes[name]})
				require.NoError(t, err)
			}
		}
	}
	_, err := gb.AppendOp(desc)
	require.NoError(t, err)
	_, err = executor.NewCPUExecutor(scope, executor.Config{}).Run(context.Background(), p, nil, nil)
	return err
}

func f32(t *testing.T, values []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromFloat32(values, shape)
	require.NoError(t, err)
	return raw
}

func scopeValue(t *testing.T, scope *executor.Scope, name string) *tensor.RawTensor {
	t.Helper()
	v, err := scope.Var(name)
	require.NoError(t, err)
	return v
}

func TestMulRowsSplitAcrossWorkers(t *testing.T) {
	const rows, inner, cols = 300, 8, 4
	xs := make([]float32, rows*inner)
	for i := range xs {
		xs[i] = float32(i%17) - 8
	}
	ys := make([]float32, inner*cols)
	for i := range ys {
		ys[i] = float32(i%5) * 0.25
	}

	run := func(cfg executor.Config) []float32 {
		p := framework.NewProgram()
		gb := p.GlobalBlock()
		for _, name := range []string{"x", "y", "out"} {
			_, err := gb.CreateVar(framework.VarDesc{Name: name})
			require.NoError(t, err)
		}
		_, err := gb.AppendOp(framework.OpDesc{
			Type:    "mul",
			Inputs:  map[string][]string{"X": {"x"}, "Y": {"y"}},
			Outputs: map[string][]string{"Out": {"out"}},
		})
		require.NoError(t, err)

		scope := executor.NewScope()
		scope.Set("x", f32(t, xs, tensor.Shape{rows, inner}))
		scope.Set("y", f32(t, ys, tensor.Shape{inner, cols}))
		_, err = executor.NewCPUExecutor(scope, cfg).Run(context.Background(), p, nil, nil)
		require.NoError(t, err)
		return scopeValue(t, scope, "out").AsFloat32()
	}

	want := run(executor.Config{Sequential: true})
	assert.Equal(t, want, run(executor.Config{}))

	var row float32
	for p := 0; p < inner; p++ {
		row += xs[299*inner+p] * ys[p*cols+3]
	}
	assert.Equal(t, row, want[299*cols+3])
}

func TestMul(t *testing.T) {
	scope := executor.NewScope()
	scope.Set("x", f32(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}))
	scope.Set("y", f32(t, []float32{1, 0, 0, 1, 1, 1}, tensor.Shape{3, 2}))

	err := runOp(t, scope, framework.OpDesc{
		Type:    "mul",
		Inputs:  map[string][]string{"X": {"x"}, "Y": {"y"}},
		Outputs: map[string][]string{"Out": {"out"}},
	}, nil)
	require.NoError(t, err)

	out := scopeValue(t, scope, "out")
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{4, 5, 10, 11}, out.AsFloat32())
}

func TestMulFlattensInput(t *testing.T) {
	scope := executor.NewScope()
	scope.Set("x", f32(t, []float32{1, 1, 1, 1, 2, 2, 2, 2}, tensor.Shape{2, 2, 2}))
	scope.Set("y", f32(t, []float32{1, 1, 1, 1}, tensor.Shape{4, 1}))

	err := runOp(t, scope, framework.OpDesc{
		Type:    "mul",
		Inputs:  map[string][]string{"X": {"x"}, "Y": {"y"}},
		Outputs: map[string][]string{"Out": {"out"}},
	}, nil)
	require.NoError(t, err)
	out := scopeValue(t, scope, "out")
	assert.Equal(t, tensor.Shape{2, 1}, out.Shape())
	assert.Equal(t, []float32{4, 8}, out.AsFloat32())

	scope.Set("y", f32(t, []float32{1, 1, 1}, tensor.Shape{3, 1}))
	err = runOp(t, scope, framework.OpDesc{
		Type:    "mul",
		Inputs:  map[string][]string{"X": {"x"}, "Y": {"y"}},
		Outputs: map[string][]string{"Out": {"out"}},
	}, nil)
	require.ErrorIs(t, err, executor.ErrShapeMismatch)
}

func TestElementwiseAdd(t *testing.T) {
	tests := []struct {
		name  string
		y     *tensor.RawTensor
		axis  int
		want  []float32
		valid bool
	}{
		{"same shape", f32(t, []float32{1, 1, 1, 1, 1, 1}, tensor.Shape{2, 3}), -1, []float32{1, 2, 3, 4, 5, 6}, true},
		{"trailing bias", f32(t, []float32{10, 20, 30}, tensor.Shape{3}), -1, []float32{10, 21, 32, 13, 24, 35}, true},
		{"leading axis", f32(t, []float32{100, 200}, tensor.Shape{2}), 0, []float32{100, 101, 102, 203, 204, 205}, true},
		{"mismatch", f32(t, []float32{1, 2}, tensor.Shape{2}), -1, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := executor.NewScope()
			scope.Set("x", f32(t, []float32{0, 1, 2, 3, 4, 5}, tensor.Shape{2, 3}))
			scope.Set("y", tt.y)
			err := runOp(t, scope, framework.OpDesc{
				Type:    "elementwise_add",
				Inputs:  map[string][]string{"X": {"x"}, "Y": {"y"}},
				Outputs: map[string][]string{"Out": {"out"}},
				Attrs:   map[string]any{"axis": tt.axis},
			}, nil)
			if !tt.valid {
				require.ErrorIs(t, err, executor.ErrShapeMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, scopeValue(t, scope, "out").AsFloat32())
		})
	}
}

func TestUnaryOps(t *testing.T) {
	tests := []struct {
		op    string
		attrs map[string]any
		want  []float32
	}{
		{"relu", nil, []float32{0, 0, 2}},
		{"scale", map[string]any{"scale": float32(2), "bias": float32(1)}, []float32{-3, 1, 5}},
		{"assign", nil, []float32{-2, 0, 2}},
		{"mean", nil, []float32{0}},
		{"dropout", map[string]any{"dropout_prob": float32(0.25), framework.AttrIsTest: true}, []float32{-1.5, 0, 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			scope := executor.NewScope()
			in := f32(t, []float32{-2, 0, 2}, tensor.Shape{3})
			scope.Set("x", in)
			err := runOp(t, scope, framework.OpDesc{
				Type:    tt.op,
				Inputs:  map[string][]string{"X": {"x"}},
				Outputs: map[string][]string{"Out": {"out"}},
				Attrs:   tt.attrs,
			}, nil)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, scopeValue(t, scope, "out").AsFloat32(), 1e-6)
			assert.Equal(t, []float32{-2, 0, 2}, in.AsFloat32(), "input must not be modified")
		})
	}
}

func TestDropoutTrainingIsSeeded(t *testing.T) {
	run := func() ([]float32, []float32) {
		scope := executor.NewScope()
		scope.Set("x", f32(t, []float32{1, 1, 1, 1, 1, 1, 1, 1}, tensor.Shape{8}))
		err := runOp(t, scope, framework.OpDesc{
			Type:    "dropout",
			Inputs:  map[string][]string{"X": {"x"}},
			Outputs: map[string][]string{"Out": {"out"}, "Mask": {"mask"}},
			Attrs:   map[string]any{"dropout_prob": float32(0.5), "seed": 42},
		}, nil)
		require.NoError(t, err)
		return scopeValue(t, scope, "out").AsFloat32(), scopeValue(t, scope, "mask").AsFloat32()
	}

	out1, mask1 := run()
	out2, _ := run()
	assert.Equal(t, out1, out2)
	assert.Equal(t, out1, mask1, "mask equals output for an all-ones input")
	for _, v := range out1 {
		assert.Contains(t, []float32{0, 1}, v)
	}
}

func TestFillConstantFollowsDeclaredType(t *testing.T) {
	scope := executor.NewScope()
	err := runOp(t, scope, framework.OpDesc{
		Type:    "fill_constant",
		Outputs: map[string][]string{"Out": {"step"}},
		Attrs:   map[string]any{"shape": []int{2}, "value": float32(3)},
	}, map[string]tensor.DataType{"step": tensor.Int64})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 3}, scopeValue(t, scope, "step").AsInt64())

	err = runOp(t, scope, framework.OpDesc{
		Type:    "fill_constant",
		Outputs: map[string][]string{"Out": {"x"}},
	}, nil)
	require.ErrorIs(t, err, executor.ErrMissingAttr)
}

func TestSGD(t *testing.T) {
	scope := executor.NewScope()
	scope.Set("w", f32(t, []float32{1, 2}, tensor.Shape{2}))
	scope.Set("g", f32(t, []float32{10, 20}, tensor.Shape{2}))
	scope.Set("lr", f32(t, []float32{0.1}, tensor.Shape{1}))

	err := runOp(t, scope, framework.OpDesc{
		Type:    "sgd",
		Inputs:  map[string][]string{"Param": {"w"}, "Grad": {"g"}, "LearningRate": {"lr"}},
		Outputs: map[string][]string{"ParamOut": {"w"}},
	}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0}, scopeValue(t, scope, "w").AsFloat32(), 1e-6)
}

func TestAdam(t *testing.T) {
	scope := executor.NewScope()
	scope.Set("w", f32(t, []float32{1, -1}, tensor.Shape{2}))
	scope.Set("g", f32(t, []float32{0.5, -0.5}, tensor.Shape{2}))
	scope.Set("lr", f32(t, []float32{0.1}, tensor.Shape{1}))
	scope.Set("m1", f32(t, []float32{0, 0}, tensor.Shape{2}))
	scope.Set("m2", f32(t, []float32{0, 0}, tensor.Shape{2}))
	scope.Set("b1p", f32(t, []float32{0.9}, tensor.Shape{1}))
	scope.Set("b2p", f32(t, []float32{0.999}, tensor.Shape{1}))

	desc := framework.OpDesc{
		Type: "adam",
		Inputs: map[string][]string{
			"Param": {"w"}, "Grad": {"g"}, "LearningRate": {"lr"},
			"Moment1": {"m1"}, "Moment2": {"m2"}, "Beta1Pow": {"b1p"}, "Beta2Pow": {"b2p"},
		},
		Outputs: map[string][]string{
			"ParamOut": {"w"}, "Moment1Out": {"m1"}, "Moment2Out": {"m2"},
			"Beta1PowOut": {"b1p"}, "Beta2PowOut": {"b2p"},
		},
	}
	require.NoError(t, runOp(t, scope, desc, nil))

	// The first bias-corrected step moves each weight by lr against the gradient sign.
	assert.InDeltaSlice(t, []float32{0.9, -0.9}, scopeValue(t, scope, "w").AsFloat32(), 1e-5)
	assert.InDeltaSlice(t, []float32{0.05, -0.05}, scopeValue(t, scope, "m1").AsFloat32(), 1e-7)
	assert.InDeltaSlice(t, []float32{0.00025, 0.00025}, scopeValue(t, scope, "m2").AsFloat32(), 1e-9)
	assert.InDelta(t, 0.81, scopeValue(t, scope, "b1p").AsFloat32()[0], 1e-6)
	assert.InDelta(t, 0.998001, scopeValue(t, scope, "b2p").AsFloat32()[0], 1e-6)

	t.Run("moment shape mismatch", func(t *testing.T) {
		scope.Set("m1", f32(t, []float32{0}, tensor.Shape{1}))
		err := runOp(t, scope, desc, nil)
		require.ErrorIs(t, err, executor.ErrShapeMismatch)
	})
}

func TestMathOpsRejectNonFloat(t *testing.T) {
	scope := executor.NewScope()
	raw, err := tensor.FromInt64([]int64{1, 2}, tensor.Shape{2})
	require.NoError(t, err)
	scope.Set("x", raw)

	err = runOp(t, scope, framework.OpDesc{
		Type:    "relu",
		Inputs:  map[string][]string{"X": {"x"}},
		Outputs: map[string][]string{"Out": {"out"}},
	}, map[string]tensor.DataType{"x": tensor.Int64})
	require.ErrorIs(t, err, executor.ErrUnsupportedDType)
}

func TestSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "model")
	path := filepath.Join(dir, "w")

	scope := executor.NewScope()
	scope.Set("w", f32(t, []float32{1, 2, 3}, tensor.Shape{3}))
	err := runOp(t, scope, framework.OpDesc{
		Type:   framework.OpSave,
		Inputs: map[string][]string{"X": {"w"}},
		Attrs:  map[string]any{framework.AttrFilePath: path},
	}, nil)
	require.NoError(t, err)

	h, err := serialization.ReadHeaderFile(path)
	require.NoError(t, err)
	assert.Equal(t, "LOD_TENSOR", h.Metadata[serialization.MetaVarType])
	assert.Equal(t, "0", h.Metadata[serialization.MetaLoDLevel])

	loaded := executor.NewScope()
	err = runOp(t, loaded, framework.OpDesc{
		Type:    framework.OpLoad,
		Outputs: map[string][]string{"Out": {"w"}},
		Attrs:   map[string]any{framework.AttrFilePath: path},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, scopeValue(t, loaded, "w").AsFloat32())

	t.Run("dtype mismatch", func(t *testing.T) {
		err := runOp(t, executor.NewScope(), framework.OpDesc{
			Type:    framework.OpLoad,
			Outputs: map[string][]string{"Out": {"w"}},
			Attrs:   map[string]any{framework.AttrFilePath: path},
		}, map[string]tensor.DataType{"w": tensor.Int64})
		require.ErrorIs(t, err, executor.ErrDTypeMismatch)
	})

	t.Run("no overwrite", func(t *testing.T) {
		err := runOp(t, scope, framework.OpDesc{
			Type:   framework.OpSave,
			Inputs: map[string][]string{"X": {"w"}},
			Attrs:  map[string]any{framework.AttrFilePath: path, "overwrite": false},
		}, nil)
		require.ErrorIs(t, err, executor.ErrFileExists)
	})

	t.Run("missing file", func(t *testing.T) {
		err := runOp(t, executor.NewScope(), framework.OpDesc{
			Type:    framework.OpLoad,
			Outputs: map[string][]string{"Out": {"w"}},
			Attrs:   map[string]any{framework.AttrFilePath: filepath.Join(dir, "absent")},
		}, nil)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing path", func(t *testing.T) {
		err := runOp(t, scope, framework.OpDesc{
			Type:   framework.OpSave,
			Inputs: map[string][]string{"X": {"w"}},
		}, nil)
		require.ErrorIs(t, err, executor.ErrMissingAttr)
	})
}

func TestScopeHolders(t *testing.T) {
	scope := executor.NewScope()
	_, ok := scope.Holder("feed")
	assert.False(t, ok)

	x := f32(t, []float32{1}, tensor.Shape{1})
	scope.SetHolder("feed", []*tensor.RawTensor{x})
	items, ok := scope.Holder("feed")
	require.True(t, ok)
	require.Len(t, items, 1)

	scope.Set("a", x)
	assert.True(t, scope.Has("a"))
	scope.Delete("a")
	assert.False(t, scope.Has("a"))
	_, err := scope.Var("a")
	require.ErrorIs(t, err, executor.ErrVarNotFound)
}
