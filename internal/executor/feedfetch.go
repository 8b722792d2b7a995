package executor

import (
	"fmt"
	"slices"

	"github.com/born-ml/modelio/internal/framework"
)

// Default holder variable names.
const (
	FeedHolder  = "feed"
	FetchHolder = "fetch"
)

// PrependFeedOps declares a feed holder in the global block and prepends
// one feed operator per target. Target i reads column i of the holder.
func PrependFeedOps(p *framework.Program, targets []string, holder string) error {
	gb := p.GlobalBlock()
	if _, err := gb.CreateVar(framework.VarDesc{
		Name:        holder,
		Type:        framework.VarTypeFeedMinibatch,
		Persistable: true,
	}); err != nil {
		return fmt.Errorf("feed holder %q: %w", holder, err)
	}
	for i, name := range targets {
		if _, err := gb.Var(name); err != nil {
			return fmt.Errorf("feed target %q: %w", name, err)
		}
		if _, err := gb.PrependOp(framework.OpDesc{
			Type:    framework.OpFeed,
			Inputs:  map[string][]string{"X": {holder}},
			Outputs: map[string][]string{"Out": {name}},
			Attrs:   map[string]any{framework.AttrCol: i},
		}); err != nil {
			return err
		}
	}
	return nil
}

// AppendFetchOps declares a fetch holder in the global block and appends
// one fetch operator per target. Target i is written to column i of the holder.
func AppendFetchOps(p *framework.Program, targets []string, holder string) error {
	gb := p.GlobalBlock()
	if _, err := gb.CreateVar(framework.VarDesc{
		Name:        holder,
		Type:        framework.VarTypeFetchList,
		Persistable: true,
	}); err != nil {
		return fmt.Errorf("fetch holder %q: %w", holder, err)
	}
	for i, name := range targets {
		if _, err := gb.Var(name); err != nil {
			return fmt.Errorf("fetch target %q: %w", name, err)
		}
		if _, err := gb.AppendOp(framework.OpDesc{
			Type:    framework.OpFetch,
			Inputs:  map[string][]string{"X": {name}},
			Outputs: map[string][]string{"Out": {holder}},
			Attrs:   map[string]any{framework.AttrCol: i},
		}); err != nil {
			return err
		}
	}
	return nil
}

// FeedTargetNames returns the outputs of the global block's feed
// operators, ordered by column.
func FeedTargetNames(p *framework.Program) []string {
	return targetsByCol(p, framework.OpFeed, (*framework.Operator).Output, "Out")
}

// FetchTargetNames returns the inputs of the global block's fetch
// operators, ordered by column.
func FetchTargetNames(p *framework.Program) []string {
	return targetsByCol(p, framework.OpFetch, (*framework.Operator).Input, "X")
}

func targetsByCol(p *framework.Program, opType string, args func(*framework.Operator, string) []string, slot string) []string {
	type target struct {
		col  int
		name string
	}
	var found []target
	for _, op := range p.GlobalBlock().Ops() {
		if op.Type() != opType {
			continue
		}
		for _, name := range args(op, slot) {
			found = append(found, target{col: op.AttrInt(framework.AttrCol, 0), name: name})
		}
	}
	slices.SortStableFunc(found, func(a, b target) int { return a.col - b.col })

	names := make([]string, len(found))
	for i, t := range found {
		names[i] = t.name
	}
	return names
}

func hasOp(p *framework.Program, opType string) bool {
	return slices.ContainsFunc(p.GlobalBlock().Ops(), func(op *framework.Operator) bool {
		return op.Type() == opType
	})
}
