package framework

import (
	"fmt"
	"slices"

	"github.com/born-ml/modelio/internal/tensor"
)

// VarType is the kind of value a variable holds.
//
// The numeric values are the ones written into program descriptions.
type VarType int32

// Variable kinds.
const (
	VarTypeLoDTensor      VarType = 7
	VarTypeSelectedRows   VarType = 8
	VarTypeFeedMinibatch  VarType = 9
	VarTypeFetchList      VarType = 10
	VarTypeStepScopes     VarType = 11
	VarTypeLoDRankTable   VarType = 12
	VarTypeLoDTensorArray VarType = 13
)

// String returns a human-readable name for the variable kind.
func (t VarType) String() string {
	switch t {
	case VarTypeLoDTensor:
		return "LOD_TENSOR"
	case VarTypeSelectedRows:
		return "SELECTED_ROWS"
	case VarTypeFeedMinibatch:
		return "FEED_MINIBATCH"
	case VarTypeFetchList:
		return "FETCH_LIST"
	case VarTypeStepScopes:
		return "STEP_SCOPES"
	case VarTypeLoDRankTable:
		return "LOD_RANK_TABLE"
	case VarTypeLoDTensorArray:
		return "LOD_TENSOR_ARRAY"
	default:
		return fmt.Sprintf("VarType(%d)", int32(t))
	}
}

// VarDesc describes a variable declared in a block.
//
// Shape dimensions may be -1 for sizes only known at run time (batch size).
type VarDesc struct {
	Name        string          // Unique within the block
	Type        VarType         // Zero means VarTypeLoDTensor
	DType       tensor.DataType // Element type for tensor variables
	Shape       []int64         // Declared dimensions
	LoDLevel    int             // Level-of-detail depth for sequence tensors
	Persistable bool            // Survives across executions and is written to disk
	IsParameter bool            // Trainable model parameter (always persistable)
	Trainable   bool            // Parameter receives gradient updates
}

func (d VarDesc) normalized() VarDesc {
	if d.Type == 0 {
		d.Type = VarTypeLoDTensor
	}
	if d.IsParameter {
		d.Persistable = true
	}
	d.Shape = slices.Clone(d.Shape)
	return d
}

func (d VarDesc) equal(o VarDesc) bool {
	return d.Name == o.Name &&
		d.Type == o.Type &&
		d.DType == o.DType &&
		slices.Equal(d.Shape, o.Shape) &&
		d.LoDLevel == o.LoDLevel &&
		d.Persistable == o.Persistable &&
		d.IsParameter == o.IsParameter &&
		d.Trainable == o.Trainable
}

// Variable is a named entity declared in a block.
type Variable struct {
	block *Block
	desc  VarDesc
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.desc.Name }

// Type returns the variable kind.
func (v *Variable) Type() VarType { return v.desc.Type }

// DType returns the element type.
func (v *Variable) DType() tensor.DataType { return v.desc.DType }

// Shape returns a copy of the declared dimensions.
func (v *Variable) Shape() []int64 { return slices.Clone(v.desc.Shape) }

// LoDLevel returns the level-of-detail depth.
func (v *Variable) LoDLevel() int { return v.desc.LoDLevel }

// Persistable reports whether the variable survives across executions.
func (v *Variable) Persistable() bool { return v.desc.Persistable }

// IsParameter reports whether the variable is a trainable model parameter.
func (v *Variable) IsParameter() bool { return v.desc.IsParameter }

// Trainable reports whether the parameter receives gradient updates.
func (v *Variable) Trainable() bool { return v.desc.Trainable }

// Desc returns a copy of the variable description.
func (v *Variable) Desc() VarDesc {
	d := v.desc
	d.Shape = slices.Clone(d.Shape)
	return d
}

// Block returns the block that declares the variable.
func (v *Variable) Block() *Block { return v.block }

// TargetVars implements Target.
func (v *Variable) TargetVars() []*Variable { return []*Variable{v} }

// String returns a compact description for logs.
func (v *Variable) String() string {
	kind := "var"
	if v.desc.IsParameter {
		kind = "param"
	}
	return fmt.Sprintf("%s %s %s %s %v", kind, v.desc.Name, v.desc.Type, v.desc.DType, v.desc.Shape)
}
