// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package framework provides the program graph that modelio saves, prunes and runs.
//
// A Program is a list of blocks; block 0 is the global block. Blocks
// declare variables and hold operators that read and write them by name.
//
// Example:
//
//	p := framework.NewProgram()
//	gb := p.GlobalBlock()
//	x, _ := gb.CreateVar(framework.VarDesc{Name: "x", DType: tensor.Float32, Shape: []int64{-1, 4}})
//	w, _ := gb.CreateParameter(framework.VarDesc{Name: "w", DType: tensor.Float32, Shape: []int64{4, 2}})
//	out, _ := gb.CreateVar(framework.VarDesc{Name: "out", DType: tensor.Float32, Shape: []int64{-1, 2}})
//	_, _ = gb.AppendOp(framework.OpDesc{
//	    Type:    "mul",
//	    Inputs:  map[string][]string{"X": {x.Name()}, "Y": {w.Name()}},
//	    Outputs: map[string][]string{"Out": {out.Name()}},
//	})
//
//	data, _ := p.MarshalBinary()
//	restored, err := framework.ParseProgram(data)
package framework

import (
	"github.com/born-ml/modelio/internal/framework"
)

// Program is an ordered list of blocks.
type Program = framework.Program

// Block declares variables and holds operators.
type Block = framework.Block

// Variable is a named value declared in a block.
type Variable = framework.Variable

// VarDesc describes a variable to declare.
type VarDesc = framework.VarDesc

// VarType is the kind of value a variable holds.
type VarType = framework.VarType

// Variable kinds.
const (
	VarTypeLoDTensor      VarType = framework.VarTypeLoDTensor
	VarTypeSelectedRows   VarType = framework.VarTypeSelectedRows
	VarTypeFeedMinibatch  VarType = framework.VarTypeFeedMinibatch
	VarTypeFetchList      VarType = framework.VarTypeFetchList
	VarTypeStepScopes     VarType = framework.VarTypeStepScopes
	VarTypeLoDRankTable   VarType = framework.VarTypeLoDRankTable
	VarTypeLoDTensorArray VarType = framework.VarTypeLoDTensorArray
)

// Operator is an operation node in a block.
type Operator = framework.Operator

// OpDesc describes an operator to add to a block.
type OpDesc = framework.OpDesc

// Well-known operator types and attribute names.
const (
	OpSave       = framework.OpSave
	OpLoad       = framework.OpLoad
	OpFeed       = framework.OpFeed
	OpFetch      = framework.OpFetch
	AttrFilePath = framework.AttrFilePath
	AttrCol      = framework.AttrCol
	AttrIsTest   = framework.AttrIsTest
)

// Target names variables an inference program must compute.
// *Variable and *Evaluator implement it.
type Target = framework.Target

// Evaluator accumulates metric state; as a target it keeps its states and metrics.
type Evaluator = framework.Evaluator

// Errors returned by program construction and decoding.
var (
	ErrVarNotFound     = framework.ErrVarNotFound
	ErrEmptyName       = framework.ErrEmptyName
	ErrVarConflict     = framework.ErrVarConflict
	ErrUnknownArgument = framework.ErrUnknownArgument
	ErrUnsupportedAttr = framework.ErrUnsupportedAttr
	ErrMalformedDesc   = framework.ErrMalformedDesc
)

// NewProgram creates a program with an empty global block.
func NewProgram() *Program {
	return framework.NewProgram()
}

// ParseProgram decodes and validates a serialized program description.
func ParseProgram(data []byte) (*Program, error) {
	return framework.ParseProgram(data)
}

// DefaultMainProgram returns the process-wide main program.
func DefaultMainProgram() *Program {
	return framework.DefaultMainProgram()
}

// DefaultStartupProgram returns the process-wide startup program.
func DefaultStartupProgram() *Program {
	return framework.DefaultStartupProgram()
}

// SwitchMainProgram installs p as the default main program and returns the previous one.
func SwitchMainProgram(p *Program) *Program {
	return framework.SwitchMainProgram(p)
}

// SwitchStartupProgram installs p as the default startup program and returns the previous one.
func SwitchStartupProgram(p *Program) *Program {
	return framework.SwitchStartupProgram(p)
}
