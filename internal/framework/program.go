// Package framework implements the program graph that persistence
// operates on: programs, blocks, variables and operators.
//
// A Program is a list of blocks. Block 0 is the global block; its
// operators run in order and its variables are the ones listed,
// pruned, saved and loaded.
//
// Example:
//
//	prog := framework.NewProgram()
//	gb := prog.GlobalBlock()
//	x, _ := gb.CreateVar(framework.VarDesc{Name: "x", DType: tensor.Float32, Shape: []int64{-1, 4}})
//	w, _ := gb.CreateParameter(framework.VarDesc{Name: "w", DType: tensor.Float32, Shape: []int64{4, 2}})
//	y, _ := gb.CreateVar(framework.VarDesc{Name: "y", DType: tensor.Float32, Shape: []int64{-1, 2}})
//	gb.AppendOp(framework.OpDesc{
//	    Type:    "mul",
//	    Inputs:  map[string][]string{"X": {x.Name()}, "Y": {w.Name()}},
//	    Outputs: map[string][]string{"Out": {y.Name()}},
//	})
package framework

import (
	"fmt"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Program is a computation graph made of blocks.
type Program struct {
	blocks []*Block
}

// NewProgram creates a program holding an empty global block.
func NewProgram() *Program {
	p := &Program{}
	p.blocks = []*Block{newBlock(p, 0, -1)}
	return p
}

// GlobalBlock returns block 0.
func (p *Program) GlobalBlock() *Block {
	return p.blocks[0]
}

// Block returns the block at idx.
func (p *Program) Block(idx int) (*Block, error) {
	if idx < 0 || idx >= len(p.blocks) {
		return nil, fmt.Errorf("block index %d out of range [0, %d)", idx, len(p.blocks))
	}
	return p.blocks[idx], nil
}

// NumBlocks returns the number of blocks.
func (p *Program) NumBlocks() int {
	return len(p.blocks)
}

// CreateBlock appends a sub-block whose parent is parentIdx.
func (p *Program) CreateBlock(parentIdx int) (*Block, error) {
	if parentIdx < 0 || parentIdx >= len(p.blocks) {
		return nil, fmt.Errorf("parent block index %d out of range [0, %d)", parentIdx, len(p.blocks))
	}
	b := newBlock(p, len(p.blocks), parentIdx)
	p.blocks = append(p.blocks, b)
	return b, nil
}

// ListVars returns every variable of every block, in block then declaration order.
func (p *Program) ListVars() []*Variable {
	var vars []*Variable
	for _, b := range p.blocks {
		vars = append(vars, b.vars...)
	}
	return vars
}

// Owns reports whether v is declared in one of the program's blocks.
func (p *Program) Owns(v *Variable) bool {
	return v != nil && v.block != nil && v.block.program == p
}

// Clone returns a deep copy of the program.
func (p *Program) Clone() *Program {
	c := &Program{blocks: make([]*Block, len(p.blocks))}
	for i, b := range p.blocks {
		c.blocks[i] = b.clone(c)
	}
	return c
}

// Fingerprint hashes the serialized description. Equal programs share a fingerprint.
func (p *Program) Fingerprint() (uint64, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

// String summarizes the program for logs.
func (p *Program) String() string {
	gb := p.GlobalBlock()
	return fmt.Sprintf("Program(blocks=%d, vars=%d, ops=%d)", len(p.blocks), len(gb.vars), len(gb.ops))
}

var (
	defaultMu      sync.Mutex
	defaultMain    = NewProgram()
	defaultStartup = NewProgram()
)

// DefaultMainProgram returns the process-wide main program.
//
// Persistence operations fall back to it when no program is given.
func DefaultMainProgram() *Program {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultMain
}

// DefaultStartupProgram returns the process-wide startup program that
// initializes parameters.
func DefaultStartupProgram() *Program {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultStartup
}

// SwitchMainProgram installs p as the default main program and returns the previous one.
func SwitchMainProgram(p *Program) *Program {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultMain
	defaultMain = p
	return prev
}

// SwitchStartupProgram installs p as the default startup program and returns the previous one.
func SwitchStartupProgram(p *Program) *Program {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultStartup
	defaultStartup = p
	return prev
}

// Target is anything that names variables an inference program must compute.
type Target interface {
	TargetVars() []*Variable
}

// Evaluator accumulates metric state across mini-batches.
//
// When used as an inference target both its state and metric variables
// are kept by pruning.
type Evaluator struct {
	Name    string
	States  []*Variable
	Metrics []*Variable
}

// TargetVars implements Target.
func (e *Evaluator) TargetVars() []*Variable {
	vars := make([]*Variable, 0, len(e.States)+len(e.Metrics))
	vars = append(vars, e.States...)
	vars = append(vars, e.Metrics...)
	return vars
}

// ExpandTargets flattens targets into their variables, keeping order.
func ExpandTargets(targets []Target) []*Variable {
	var vars []*Variable
	for _, t := range targets {
		if t == nil {
			continue
		}
		vars = append(vars, t.TargetVars()...)
	}
	return slices.Clip(vars)
}
