package framework

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Validate checks the structural invariants of the program and reports
// every violation it finds, not just the first.
func (p *Program) Validate() error {
	var result *multierror.Error
	if len(p.blocks) == 0 {
		return ErrNoGlobalBlock
	}
	for i, b := range p.blocks {
		if b.idx != i {
			result = multierror.Append(result, fmt.Errorf("%w: block at position %d has index %d", ErrInvalidBlockDesc, i, b.idx))
		}
		if i == 0 && b.parentIdx != -1 {
			result = multierror.Append(result, fmt.Errorf("%w: global block has parent %d", ErrInvalidBlockDesc, b.parentIdx))
		}
		if i > 0 && (b.parentIdx < 0 || b.parentIdx >= i) {
			result = multierror.Append(result, fmt.Errorf("%w: block %d has parent %d", ErrInvalidBlockDesc, i, b.parentIdx))
		}
		seen := make(map[string]bool, len(b.vars))
		for _, v := range b.vars {
			switch {
			case v.desc.Name == "":
				result = multierror.Append(result, fmt.Errorf("block %d: %w", i, ErrEmptyName))
			case seen[v.desc.Name]:
				result = multierror.Append(result, fmt.Errorf("block %d: duplicate variable %q", i, v.desc.Name))
			}
			seen[v.desc.Name] = true
			if !v.desc.DType.Valid() {
				result = multierror.Append(result, fmt.Errorf("block %d: variable %q has invalid dtype %d", i, v.desc.Name, int(v.desc.DType)))
			}
		}
		for j, op := range b.ops {
			if op.typ == "" {
				result = multierror.Append(result, fmt.Errorf("block %d op %d: empty operator type", i, j))
			}
			for _, name := range append(op.InputArgNames(), op.OutputArgNames()...) {
				if _, err := b.FindVarRecursive(name); err != nil {
					result = multierror.Append(result, fmt.Errorf("block %d op %d (%s): %w", i, j, op.typ, err))
				}
			}
			for _, name := range op.AttrNames() {
				if err := checkAttr(name, op.attrs[name]); err != nil {
					result = multierror.Append(result, fmt.Errorf("block %d op %d (%s): %w", i, j, op.typ, err))
				}
			}
		}
	}
	return result.ErrorOrNil()
}
