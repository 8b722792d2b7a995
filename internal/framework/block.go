package framework

import (
	"fmt"
	"slices"
)

// Block is an ordered list of operators together with the variables they use.
//
// Block 0 of a program is its global block; sub-blocks name a parent
// block whose variables they may reference.
type Block struct {
	program   *Program
	idx       int
	parentIdx int
	vars      []*Variable
	varIndex  map[string]*Variable
	ops       []*Operator
}

func newBlock(p *Program, idx, parentIdx int) *Block {
	return &Block{
		program:   p,
		idx:       idx,
		parentIdx: parentIdx,
		varIndex:  make(map[string]*Variable),
	}
}

// Idx returns the block index inside its program.
func (b *Block) Idx() int { return b.idx }

// ParentIdx returns the parent block index, or -1 for the global block.
func (b *Block) ParentIdx() int { return b.parentIdx }

// Program returns the owning program.
func (b *Block) Program() *Program { return b.program }

// Vars returns the declared variables in declaration order.
func (b *Block) Vars() []*Variable { return slices.Clone(b.vars) }

// Ops returns the operators in execution order.
func (b *Block) Ops() []*Operator { return slices.Clone(b.ops) }

// NumOps returns the number of operators.
func (b *Block) NumOps() int { return len(b.ops) }

// HasVar reports whether the block (not its ancestors) declares name.
func (b *Block) HasVar(name string) bool {
	_, ok := b.varIndex[name]
	return ok
}

// Var returns the variable declared in this block under name.
func (b *Block) Var(name string) (*Variable, error) {
	if v, ok := b.varIndex[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q in block %d", ErrVarNotFound, name, b.idx)
}

// FindVarRecursive looks name up in this block and then its ancestors.
func (b *Block) FindVarRecursive(name string) (*Variable, error) {
	for cur := b; cur != nil; cur = cur.parent() {
		if v, ok := cur.varIndex[name]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q from block %d", ErrVarNotFound, name, b.idx)
}

// parent returns nil unless b sits at its own index and the parent
// precedes it, so lookups in a corrupt description always terminate.
func (b *Block) parent() *Block {
	if b.program == nil || b.parentIdx < 0 || b.parentIdx >= b.idx {
		return nil
	}
	if b.idx >= len(b.program.blocks) || b.program.blocks[b.idx] != b {
		return nil
	}
	return b.program.blocks[b.parentIdx]
}

// CreateVar declares a variable.
//
// Declaring a name twice with identical attributes returns the existing
// variable; differing attributes yield ErrVarConflict.
func (b *Block) CreateVar(desc VarDesc) (*Variable, error) {
	if desc.Name == "" {
		return nil, ErrEmptyName
	}
	desc = desc.normalized()
	if existing, ok := b.varIndex[desc.Name]; ok {
		if existing.desc.equal(desc) {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrVarConflict, desc.Name)
	}
	v := &Variable{block: b, desc: desc}
	b.vars = append(b.vars, v)
	b.varIndex[desc.Name] = v
	return v, nil
}

// CreateParameter declares a trainable, persistable parameter.
func (b *Block) CreateParameter(desc VarDesc) (*Variable, error) {
	desc.IsParameter = true
	desc.Persistable = true
	desc.Trainable = true
	return b.CreateVar(desc)
}

// AppendOp adds an operator at the end of the block.
func (b *Block) AppendOp(desc OpDesc) (*Operator, error) {
	op, err := b.newOp(desc)
	if err != nil {
		return nil, err
	}
	b.ops = append(b.ops, op)
	return op, nil
}

// PrependOp adds an operator at the start of the block.
func (b *Block) PrependOp(desc OpDesc) (*Operator, error) {
	op, err := b.newOp(desc)
	if err != nil {
		return nil, err
	}
	b.ops = slices.Insert(b.ops, 0, op)
	return op, nil
}

func (b *Block) newOp(desc OpDesc) (*Operator, error) {
	if desc.Type == "" {
		return nil, fmt.Errorf("operator type is empty")
	}
	for _, args := range [...]map[string][]string{desc.Inputs, desc.Outputs} {
		for slot, names := range args {
			for _, name := range names {
				if _, err := b.FindVarRecursive(name); err != nil {
					return nil, fmt.Errorf("%w: %s slot %s references %q", ErrUnknownArgument, desc.Type, slot, name)
				}
			}
		}
	}
	op := &Operator{
		block:    b,
		typ:      desc.Type,
		inputs:   cloneArgs(desc.Inputs),
		outputs:  cloneArgs(desc.Outputs),
		attrs:    make(map[string]any, len(desc.Attrs)),
		isTarget: desc.IsTarget,
	}
	for name, value := range desc.Attrs {
		if err := op.SetAttr(name, cloneAttr(value)); err != nil {
			return nil, err
		}
	}
	return op, nil
}

// RemoveOps drops the operators for which drop returns true.
func (b *Block) RemoveOps(drop func(*Operator) bool) int {
	before := len(b.ops)
	b.ops = slices.DeleteFunc(b.ops, drop)
	return before - len(b.ops)
}

func (b *Block) clone(p *Program) *Block {
	c := newBlock(p, b.idx, b.parentIdx)
	for _, v := range b.vars {
		nv := &Variable{block: c, desc: v.Desc()}
		c.vars = append(c.vars, nv)
		c.varIndex[nv.desc.Name] = nv
	}
	c.ops = make([]*Operator, len(b.ops))
	for i, op := range b.ops {
		c.ops[i] = op.clone(c)
	}
	return c
}
