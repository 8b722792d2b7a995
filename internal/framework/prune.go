package framework

import "fmt"

// Prune returns a copy of the program reduced to the global-block
// operators needed to compute targets.
//
// Operators are visited in reverse. An operator is kept when it is
// marked IsTarget or writes a name that is still needed; its inputs then
// become needed too. Kept operators keep their relative order. The
// pruned global block declares only variables that kept operators
// reference, plus the targets themselves. Sub-blocks are copied as-is.
//
// A target declared in another program is matched by name, so targets of
// a clone work. One whose name the global block lacks fails with
// ErrForeignVariable.
func (p *Program) Prune(targets []*Variable) (*Program, error) {
	gb := p.GlobalBlock()
	needed := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t == nil {
			return nil, fmt.Errorf("prune: nil target")
		}
		if !gb.HasVar(t.Name()) {
			if !p.Owns(t) {
				return nil, fmt.Errorf("prune: target %q: %w", t.Name(), ErrForeignVariable)
			}
			return nil, fmt.Errorf("prune: target %w: %q", ErrVarNotFound, t.Name())
		}
		needed[t.Name()] = true
	}

	keep := make([]bool, len(gb.ops))
	for i := len(gb.ops) - 1; i >= 0; i-- {
		op := gb.ops[i]
		if !op.isTarget && !writesAny(op, needed) {
			continue
		}
		keep[i] = true
		for _, name := range op.InputArgNames() {
			needed[name] = true
		}
	}

	pruned := p.Clone()
	pgb := pruned.GlobalBlock()
	ops := pgb.ops[:0]
	referenced := make(map[string]bool, len(needed))
	for name := range needed {
		referenced[name] = true
	}
	for i, op := range pgb.ops {
		if !keep[i] {
			continue
		}
		ops = append(ops, op)
		for _, name := range op.OutputArgNames() {
			referenced[name] = true
		}
	}
	pgb.ops = ops

	vars := pgb.vars[:0]
	for _, v := range pgb.vars {
		if referenced[v.desc.Name] {
			vars = append(vars, v)
			continue
		}
		delete(pgb.varIndex, v.desc.Name)
	}
	pgb.vars = vars

	return pruned, nil
}

// InferenceOptimize returns a copy of the program with every operator
// that has an is_test attribute switched to inference mode.
func (p *Program) InferenceOptimize() *Program {
	c := p.Clone()
	for _, b := range c.blocks {
		for _, op := range b.ops {
			if op.HasAttr(AttrIsTest) {
				op.attrs[AttrIsTest] = true
			}
		}
	}
	return c
}

func writesAny(op *Operator, needed map[string]bool) bool {
	for _, name := range op.OutputArgNames() {
		if needed[name] {
			return true
		}
	}
	return false
}
