package executor

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/tensor"
)

// registerTrainingOps adds the operators whose behavior differs between
// training and inference.
func (r *Registry) registerTrainingOps() {
	r.Register("sgd", handleSGD)
	r.Register("adam", handleAdam)
	r.Register("dropout", handleDropout)
}

// handleSGD updates a parameter: ParamOut = Param - LearningRate * Grad.
func handleSGD(_ context.Context, oc *OpContext, op *framework.Operator) error {
	param, err := oc.float32Input(op, "Param")
	if err != nil {
		return err
	}
	grad, err := oc.float32Input(op, "Grad")
	if err != nil {
		return err
	}
	lr, err := oc.float32Input(op, "LearningRate")
	if err != nil {
		return err
	}
	if !param.Shape().Equal(grad.Shape()) {
		return fmt.Errorf("%w: sgd param %v, grad %v", ErrShapeMismatch, param.Shape(), grad.Shape())
	}
	if lr.NumElements() != 1 {
		return fmt.Errorf("%w: sgd learning rate has %d elements", ErrShapeMismatch, lr.NumElements())
	}

	rate := lr.AsFloat32()[0]
	out := param.Clone()
	o, g := out.AsFloat32(), grad.AsFloat32()
	for i := range o {
		o[i] -= rate * g[i]
	}
	return oc.setOutput(op, "ParamOut", out)
}

// handleAdam applies one Adam step. Moment1 and Moment2 hold the running
// averages of the gradient and its square, Beta1Pow and Beta2Pow hold
// beta1^t and beta2^t for the bias correction:
//
//	m1 = beta1*m1 + (1-beta1)*g
//	m2 = beta2*m2 + (1-beta2)*g*g
//	lr_t = lr * sqrt(1-beta2^t) / (1-beta1^t)
//	param -= lr_t * m1 / (sqrt(m2) + epsilon)
//
// Beta1PowOut and Beta2PowOut, when present, receive the powers for step t+1.
func handleAdam(_ context.Context, oc *OpContext, op *framework.Operator) error {
	in := make(map[string]*tensor.RawTensor, 7)
	for _, slot := range []string{"Param", "Grad", "LearningRate", "Moment1", "Moment2", "Beta1Pow", "Beta2Pow"} {
		t, err := oc.float32Input(op, slot)
		if err != nil {
			return err
		}
		in[slot] = t
	}
	param := in["Param"]
	for _, slot := range []string{"Grad", "Moment1", "Moment2"} {
		if !in[slot].Shape().Equal(param.Shape()) {
			return fmt.Errorf("%w: adam param %v, %s %v", ErrShapeMismatch, param.Shape(), slot, in[slot].Shape())
		}
	}
	for _, slot := range []string{"LearningRate", "Beta1Pow", "Beta2Pow"} {
		if in[slot].NumElements() != 1 {
			return fmt.Errorf("%w: adam %s has %d elements", ErrShapeMismatch, slot, in[slot].NumElements())
		}
	}

	beta1 := op.AttrFloat("beta1", 0.9)
	beta2 := op.AttrFloat("beta2", 0.999)
	eps := op.AttrFloat("epsilon", 1e-8)
	b1p, b2p := in["Beta1Pow"].AsFloat32()[0], in["Beta2Pow"].AsFloat32()[0]
	if b1p >= 1 {
		return fmt.Errorf("adam Beta1Pow %v must be below 1", b1p)
	}
	lr := in["LearningRate"].AsFloat32()[0] * float32(math.Sqrt(float64(1-b2p))) / (1 - b1p)

	paramOut, m1Out, m2Out := param.Clone(), in["Moment1"].Clone(), in["Moment2"].Clone()
	p, m1, m2, g := paramOut.AsFloat32(), m1Out.AsFloat32(), m2Out.AsFloat32(), in["Grad"].AsFloat32()
	for i := range p {
		m1[i] = beta1*m1[i] + (1-beta1)*g[i]
		m2[i] = beta2*m2[i] + (1-beta2)*g[i]*g[i]
		p[i] -= lr * m1[i] / (float32(math.Sqrt(float64(m2[i]))) + eps)
	}

	outs := map[string]*tensor.RawTensor{"ParamOut": paramOut, "Moment1Out": m1Out, "Moment2Out": m2Out}
	for slot, pow := range map[string]float32{"Beta1PowOut": b1p * beta1, "Beta2PowOut": b2p * beta2} {
		if len(op.Output(slot)) == 0 {
			continue
		}
		t, err := tensor.FromFloat32([]float32{pow}, tensor.Shape{1})
		if err != nil {
			return err
		}
		outs[slot] = t
	}
	for slot, t := range outs {
		if err := oc.setOutput(op, slot, t); err != nil {
			return err
		}
	}
	return nil
}

// handleDropout zeroes elements with probability dropout_prob during
// training. With is_test set it scales X by 1-dropout_prob instead.
// The training mask is drawn from a generator seeded with the seed attribute
// and written to the optional Mask output.
func handleDropout(_ context.Context, oc *OpContext, op *framework.Operator) error {
	x, err := oc.float32Input(op, "X")
	if err != nil {
		return err
	}
	p := op.AttrFloat("dropout_prob", 0.5)
	if p < 0 || p > 1 {
		return fmt.Errorf("dropout_prob %v out of range [0, 1]", p)
	}

	out := x.Clone()
	o := out.AsFloat32()
	if op.AttrBool(framework.AttrIsTest, false) {
		for i := range o {
			o[i] *= 1 - p
		}
		return oc.setOutput(op, "Out", out)
	}

	mask, err := tensor.NewRaw(x.Shape(), tensor.Float32)
	if err != nil {
		return err
	}
	m := mask.AsFloat32()
	//nolint:gosec // G404: dropout masks need reproducibility, not cryptographic randomness
	rng := rand.New(rand.NewPCG(uint64(op.AttrInt("seed", 0)), 0))
	for i := range o {
		if rng.Float32() >= p {
			m[i] = 1
		} else {
			o[i] = 0
		}
	}
	if err := oc.setOutput(op, "Out", out); err != nil {
		return err
	}
	if len(op.Output("Mask")) > 0 {
		return oc.setOutput(op, "Mask", mask)
	}
	return nil
}
