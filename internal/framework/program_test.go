package framework_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/framework/frameworktest"
	"github.com/born-ml/modelio/internal/tensor"
)

func varNames(vars []*framework.Variable) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name()
	}
	return names
}

func opTypes(b *framework.Block) []string {
	var types []string
	for _, op := range b.Ops() {
		types = append(types, op.Type())
	}
	return types
}

func TestCreateVar(t *testing.T) {
	p := framework.NewProgram()
	gb := p.GlobalBlock()

	v, err := gb.CreateVar(framework.VarDesc{Name: "x", DType: tensor.Float32, Shape: []int64{-1, 3}})
	require.NoError(t, err)
	assert.Equal(t, framework.VarTypeLoDTensor, v.Type())
	assert.False(t, v.Persistable())
	assert.Same(t, gb, v.Block())

	again, err := gb.CreateVar(framework.VarDesc{Name: "x", DType: tensor.Float32, Shape: []int64{-1, 3}})
	require.NoError(t, err)
	assert.Same(t, v, again, "identical redeclaration returns the existing variable")

	_, err = gb.CreateVar(framework.VarDesc{Name: "x", DType: tensor.Int64})
	assert.ErrorIs(t, err, framework.ErrVarConflict)

	_, err = gb.CreateVar(framework.VarDesc{})
	assert.ErrorIs(t, err, framework.ErrEmptyName)
}

func TestCreateParameterIsPersistable(t *testing.T) {
	gb := framework.NewProgram().GlobalBlock()
	w, err := gb.CreateParameter(framework.VarDesc{Name: "w", DType: tensor.Float32, Shape: []int64{2, 2}})
	require.NoError(t, err)
	assert.True(t, w.IsParameter())
	assert.True(t, w.Persistable())
	assert.True(t, w.Trainable())
}

func TestBlockVarLookup(t *testing.T) {
	p := framework.NewProgram()
	gb := p.GlobalBlock()
	_, err := gb.CreateVar(framework.VarDesc{Name: "outer"})
	require.NoError(t, err)

	sub, err := p.CreateBlock(0)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.Idx())
	assert.Equal(t, 0, sub.ParentIdx())

	_, err = sub.Var("outer")
	assert.ErrorIs(t, err, framework.ErrVarNotFound)

	v, err := sub.FindVarRecursive("outer")
	require.NoError(t, err)
	assert.Equal(t, "outer", v.Name())

	_, err = p.CreateBlock(5)
	assert.Error(t, err)
}

func TestAppendOpRejectsUnknownArguments(t *testing.T) {
	gb := framework.NewProgram().GlobalBlock()
	_, err := gb.CreateVar(framework.VarDesc{Name: "x"})
	require.NoError(t, err)

	_, err = gb.AppendOp(framework.OpDesc{
		Type:    "relu",
		Inputs:  map[string][]string{"X": {"x"}},
		Outputs: map[string][]string{"Out": {"missing"}},
	})
	assert.ErrorIs(t, err, framework.ErrUnknownArgument)

	_, err = gb.AppendOp(framework.OpDesc{
		Type:   "relu",
		Inputs: map[string][]string{"X": {"x"}},
		Attrs:  map[string]any{"bad": 1.5},
	})
	assert.ErrorIs(t, err, framework.ErrUnsupportedAttr)
	assert.Zero(t, gb.NumOps())
}

func TestPrependOp(t *testing.T) {
	gb := framework.NewProgram().GlobalBlock()
	_, err := gb.CreateVar(framework.VarDesc{Name: "x"})
	require.NoError(t, err)

	_, err = gb.AppendOp(framework.OpDesc{Type: "second", Inputs: map[string][]string{"X": {"x"}}})
	require.NoError(t, err)
	_, err = gb.PrependOp(framework.OpDesc{Type: "first", Outputs: map[string][]string{"Out": {"x"}}})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, opTypes(gb))
}

func TestListVars(t *testing.T) {
	l := frameworktest.NewLinear(t)
	assert.Equal(t, []string{
		"x", "fc_0.w_0", "fc_0.b_0", "fc_0.tmp_0", "fc_0.tmp_1", "relu_0.tmp_0",
		"dropout_0.tmp_0", "mean_0.tmp_0", "fc_0.w_0@GRAD", "learning_rate_0",
	}, varNames(l.Main.ListVars()))
}

func TestCloneIsDeep(t *testing.T) {
	l := frameworktest.NewLinear(t)
	c := l.Main.Clone()

	_, err := c.GlobalBlock().CreateVar(framework.VarDesc{Name: "extra"})
	require.NoError(t, err)
	ops := c.GlobalBlock().Ops()
	require.NoError(t, ops[3].SetAttr(framework.AttrIsTest, true))

	assert.False(t, l.Main.GlobalBlock().HasVar("extra"))
	assert.False(t, l.Main.GlobalBlock().Ops()[3].AttrBool(framework.AttrIsTest, true))
	assert.Same(t, c, c.GlobalBlock().Program())
}

func TestPrune(t *testing.T) {
	l := frameworktest.NewLinear(t)

	pruned, err := l.Main.Prune([]*framework.Variable{l.Out})
	require.NoError(t, err)

	gb := pruned.GlobalBlock()
	assert.Equal(t, []string{"mul", "elementwise_add", "relu", "dropout"}, opTypes(gb))
	assert.Equal(t, []string{
		"x", "fc_0.w_0", "fc_0.b_0", "fc_0.tmp_0", "fc_0.tmp_1", "relu_0.tmp_0", "dropout_0.tmp_0",
	}, varNames(gb.Vars()))

	// The source program is untouched.
	assert.Equal(t, 7, l.Main.GlobalBlock().NumOps())
}

func TestPruneKeepsEvaluatorState(t *testing.T) {
	l := frameworktest.NewLinear(t)
	eval := &framework.Evaluator{Name: "avg", Metrics: []*framework.Variable{l.Loss}}

	pruned, err := l.Main.Prune(framework.ExpandTargets([]framework.Target{l.Out, eval}))
	require.NoError(t, err)
	assert.Equal(t, []string{"mul", "elementwise_add", "relu", "dropout", "mean"}, opTypes(pruned.GlobalBlock()))
}

func TestPruneKeepsTargetOps(t *testing.T) {
	gb := framework.NewProgram().GlobalBlock()
	_, err := gb.CreateVar(framework.VarDesc{Name: "a"})
	require.NoError(t, err)
	_, err = gb.CreateVar(framework.VarDesc{Name: "side"})
	require.NoError(t, err)
	_, err = gb.AppendOp(framework.OpDesc{Type: "print", Inputs: map[string][]string{"In": {"side"}}, IsTarget: true})
	require.NoError(t, err)
	_, err = gb.AppendOp(framework.OpDesc{Type: "noise", Outputs: map[string][]string{"Out": {"side"}}})
	require.NoError(t, err)

	a, err := gb.Var("a")
	require.NoError(t, err)
	pruned, err := gb.Program().Prune([]*framework.Variable{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"print"}, opTypes(pruned.GlobalBlock()))
}

func TestPruneUnknownTarget(t *testing.T) {
	l := frameworktest.NewLinear(t)
	other := framework.NewProgram()
	stray, err := other.GlobalBlock().CreateVar(framework.VarDesc{Name: "stray"})
	require.NoError(t, err)

	_, err = l.Main.Prune([]*framework.Variable{stray})
	assert.ErrorIs(t, err, framework.ErrForeignVariable)
	assert.False(t, l.Main.Owns(stray))

	sub, err := l.Main.CreateBlock(0)
	require.NoError(t, err)
	local, err := sub.CreateVar(framework.VarDesc{Name: "local"})
	require.NoError(t, err)
	assert.True(t, l.Main.Owns(local))
	_, err = l.Main.Prune([]*framework.Variable{local})
	assert.ErrorIs(t, err, framework.ErrVarNotFound)

	// Targets of a clone resolve by name.
	clone := l.Main.Clone()
	assert.False(t, clone.Owns(l.Out))
	_, err = clone.Prune([]*framework.Variable{l.Out})
	assert.NoError(t, err)
}

func TestInferenceOptimize(t *testing.T) {
	l := frameworktest.NewLinear(t)
	opt := l.Main.InferenceOptimize()

	for _, op := range opt.GlobalBlock().Ops() {
		if op.Type() == "dropout" {
			assert.True(t, op.AttrBool(framework.AttrIsTest, false))
		} else {
			assert.False(t, op.HasAttr(framework.AttrIsTest), op.Type())
		}
	}
	assert.False(t, l.Main.GlobalBlock().Ops()[3].AttrBool(framework.AttrIsTest, true))
}

func TestDescRoundTrip(t *testing.T) {
	l := frameworktest.NewLinear(t)
	_, err := l.Main.CreateBlock(0)
	require.NoError(t, err)
	ops := l.Main.GlobalBlock().Ops()
	require.NoError(t, ops[0].SetAttr("x_num_col_dims", 1))
	require.NoError(t, ops[0].SetAttr("names", []string{"a", "b"}))
	require.NoError(t, ops[0].SetAttr("scales", []float32{0.5, 2}))
	require.NoError(t, ops[0].SetAttr("big", int64(1)<<40))
	require.NoError(t, ops[0].SetAttr("dims", []int{-1, 3}))

	data, err := l.Main.MarshalBinary()
	require.NoError(t, err)

	parsed, err := framework.ParseProgram(data)
	require.NoError(t, err)

	assert.Equal(t, 2, parsed.NumBlocks())
	want := make([]framework.VarDesc, 0)
	for _, v := range l.Main.ListVars() {
		want = append(want, v.Desc())
	}
	got := make([]framework.VarDesc, 0)
	for _, v := range parsed.ListVars() {
		got = append(got, v.Desc())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("vars mismatch (-want +got):\n%s", diff)
	}

	mul := parsed.GlobalBlock().Ops()[0]
	assert.Equal(t, []string{"x"}, mul.Input("X"))
	assert.Equal(t, 1, mul.AttrInt("x_num_col_dims", 0))
	big, _ := mul.Attr("big")
	assert.Equal(t, int64(1)<<40, big)
	scales, _ := mul.Attr("scales")
	assert.Equal(t, []float32{0.5, 2}, scales)
	assert.Equal(t, []int{-1, 3}, mul.AttrInts("dims"))

	again, err := parsed.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, again, "re-encoding a parsed program is byte-identical")
}

func TestParseProgramRejectsGarbage(t *testing.T) {
	_, err := framework.ParseProgram([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, framework.ErrMalformedDesc)

	_, err = framework.ParseProgram(nil)
	assert.ErrorIs(t, err, framework.ErrNoGlobalBlock)
}

// encodeBlock hand-encodes a block description holding one relu operator
// that reads input.
func encodeBlock(idx, parent int64, input string) []byte {
	var slot []byte
	slot = protowire.AppendTag(slot, 1, protowire.BytesType)
	slot = protowire.AppendString(slot, "X")
	slot = protowire.AppendTag(slot, 2, protowire.BytesType)
	slot = protowire.AppendString(slot, input)

	var op []byte
	op = protowire.AppendTag(op, 1, protowire.BytesType)
	op = protowire.AppendBytes(op, slot)
	op = protowire.AppendTag(op, 3, protowire.BytesType)
	op = protowire.AppendString(op, "relu")

	var blk []byte
	blk = protowire.AppendTag(blk, 1, protowire.VarintType)
	blk = protowire.AppendVarint(blk, uint64(idx))
	blk = protowire.AppendTag(blk, 2, protowire.VarintType)
	blk = protowire.AppendVarint(blk, uint64(parent))
	blk = protowire.AppendTag(blk, 4, protowire.BytesType)
	blk = protowire.AppendBytes(blk, op)
	return blk
}

func encodeProgram(blocks ...[]byte) []byte {
	var b []byte
	for _, blk := range blocks {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, blk)
	}
	return b
}

func TestParseProgramRejectsCyclicParent(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"global block is its own parent", encodeProgram(encodeBlock(0, 0, "ghost"))},
		{"blocks name each other", encodeProgram(encodeBlock(0, 1, "ghost"), encodeBlock(1, 0, "ghost"))},
		{"misplaced index", encodeProgram(encodeBlock(5, 0, "ghost"))},
		{"sub-block points forward", encodeProgram(encodeBlock(0, -1, "ghost"), encodeBlock(1, 1, "ghost"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan error, 1)
			go func() {
				_, err := framework.ParseProgram(tt.data)
				done <- err
			}()
			select {
			case err := <-done:
				assert.ErrorIs(t, err, framework.ErrMalformedDesc)
			case <-time.After(5 * time.Second):
				t.Fatal("ParseProgram did not return")
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := frameworktest.NewLinear(t)
	b := frameworktest.NewLinear(t)

	fa, err := a.Main.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Main.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	fp, err := a.Main.InferenceOptimize().Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fp)
}

func TestValidateReportsAllProblems(t *testing.T) {
	p := framework.NewProgram()
	gb := p.GlobalBlock()
	_, err := gb.CreateVar(framework.VarDesc{Name: "ok", DType: tensor.Float32})
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	// A bad dtype survives encoding and is caught when the description is parsed.
	_, err = gb.CreateVar(framework.VarDesc{Name: "tmp", DType: tensor.DataType(42)})
	require.NoError(t, err)
	_, err = gb.AppendOp(framework.OpDesc{Type: "relu", Inputs: map[string][]string{"X": {"ok"}}, Outputs: map[string][]string{"Out": {"tmp"}}})
	require.NoError(t, err)

	data, err := p.MarshalBinary()
	require.NoError(t, err)
	_, err = framework.ParseProgram(data)
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)
}

func TestDefaultMainProgram(t *testing.T) {
	p := framework.NewProgram()
	prev := framework.SwitchMainProgram(p)
	t.Cleanup(func() { framework.SwitchMainProgram(prev) })

	assert.Same(t, p, framework.DefaultMainProgram())
	assert.NotNil(t, framework.DefaultStartupProgram())
}
