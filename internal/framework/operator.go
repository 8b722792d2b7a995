package framework

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Well-known operator types emitted by the persistence layer.
const (
	OpSave  = "save"
	OpLoad  = "load"
	OpFeed  = "feed"
	OpFetch = "fetch"
)

// Well-known attribute names.
const (
	AttrFilePath = "file_path"
	AttrCol      = "col"
	AttrIsTest   = "is_test"
)

// OpDesc describes an operator to append to a block.
//
// Inputs and Outputs map a slot name (e.g. "X", "Out") to argument
// variable names. Attribute values must be one of: int, int64, float32,
// string, bool, []int, []float32, []string.
type OpDesc struct {
	Type     string
	Inputs   map[string][]string
	Outputs  map[string][]string
	Attrs    map[string]any
	IsTarget bool
}

// Operator is an operation node in a block.
type Operator struct {
	block    *Block
	typ      string
	inputs   map[string][]string
	outputs  map[string][]string
	attrs    map[string]any
	isTarget bool
}

// Type returns the operator type.
func (op *Operator) Type() string { return op.typ }

// IsTarget reports whether pruning must always keep this operator.
func (op *Operator) IsTarget() bool { return op.isTarget }

// Block returns the block that holds the operator.
func (op *Operator) Block() *Block { return op.block }

// Input returns the argument names bound to an input slot.
func (op *Operator) Input(slot string) []string { return slices.Clone(op.inputs[slot]) }

// Output returns the argument names bound to an output slot.
func (op *Operator) Output(slot string) []string { return slices.Clone(op.outputs[slot]) }

// InputSlots returns the input slot names in sorted order.
func (op *Operator) InputSlots() []string { return sortedKeys(op.inputs) }

// OutputSlots returns the output slot names in sorted order.
func (op *Operator) OutputSlots() []string { return sortedKeys(op.outputs) }

// InputArgNames returns every input argument, slots in sorted order.
func (op *Operator) InputArgNames() []string { return flatten(op.inputs) }

// OutputArgNames returns every output argument, slots in sorted order.
func (op *Operator) OutputArgNames() []string { return flatten(op.outputs) }

// HasAttr reports whether the attribute is set.
func (op *Operator) HasAttr(name string) bool {
	_, ok := op.attrs[name]
	return ok
}

// Attr returns the raw attribute value.
func (op *Operator) Attr(name string) (any, bool) {
	v, ok := op.attrs[name]
	return v, ok
}

// AttrNames returns the attribute names in sorted order.
func (op *Operator) AttrNames() []string { return sortedKeys(op.attrs) }

// SetAttr sets an attribute value.
func (op *Operator) SetAttr(name string, value any) error {
	if err := checkAttr(name, value); err != nil {
		return err
	}
	op.attrs[name] = value
	return nil
}

// AttrInt returns an integer attribute or default value.
func (op *Operator) AttrInt(name string, defaultVal int) int {
	switch v := op.attrs[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return defaultVal
	}
}

// AttrFloat returns a float attribute or default value.
func (op *Operator) AttrFloat(name string, defaultVal float32) float32 {
	if v, ok := op.attrs[name].(float32); ok {
		return v
	}
	return defaultVal
}

// AttrString returns a string attribute or default value.
func (op *Operator) AttrString(name, defaultVal string) string {
	if v, ok := op.attrs[name].(string); ok {
		return v
	}
	return defaultVal
}

// AttrBool returns a boolean attribute or default value.
func (op *Operator) AttrBool(name string, defaultVal bool) bool {
	if v, ok := op.attrs[name].(bool); ok {
		return v
	}
	return defaultVal
}

// AttrInts returns an integer array attribute.
func (op *Operator) AttrInts(name string) []int {
	if v, ok := op.attrs[name].([]int); ok {
		return slices.Clone(v)
	}
	return nil
}

// String returns a compact description for logs.
func (op *Operator) String() string {
	return fmt.Sprintf("%s(%v) -> %v", op.typ, op.InputArgNames(), op.OutputArgNames())
}

func (op *Operator) clone(b *Block) *Operator {
	c := &Operator{
		block:    b,
		typ:      op.typ,
		inputs:   cloneArgs(op.inputs),
		outputs:  cloneArgs(op.outputs),
		attrs:    make(map[string]any, len(op.attrs)),
		isTarget: op.isTarget,
	}
	for k, v := range op.attrs {
		c.attrs[k] = cloneAttr(v)
	}
	return c
}

func checkAttr(name string, value any) error {
	switch value.(type) {
	case int, int64, float32, string, bool, []int, []float32, []string:
		return nil
	default:
		return fmt.Errorf("%w: attribute %q has type %T", ErrUnsupportedAttr, name, value)
	}
}

func cloneAttr(v any) any {
	switch x := v.(type) {
	case []int:
		return slices.Clone(x)
	case []float32:
		return slices.Clone(x)
	case []string:
		return slices.Clone(x)
	default:
		return v
	}
}

func cloneArgs(m map[string][]string) map[string][]string {
	c := make(map[string][]string, len(m))
	for k, v := range m {
		c[k] = slices.Clone(v)
	}
	return c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := slices.Collect(maps.Keys(m))
	sort.Strings(keys)
	return keys
}

func flatten(m map[string][]string) []string {
	var out []string
	for _, k := range sortedKeys(m) {
		out = append(out, m[k]...)
	}
	return out
}
