package framework

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/born-ml/modelio/internal/tensor"
)

// Program descriptions are protobuf messages:
//
//	ProgramDesc { repeated BlockDesc blocks = 1; }
//	BlockDesc   { int32 idx = 1; int32 parent_idx = 2; repeated VarDesc vars = 3; repeated OpDesc ops = 4; }
//	VarDesc     { string name = 1; int32 type = 2; bool persistable = 3; int32 dtype = 4;
//	              repeated int64 dims = 5; int32 lod_level = 6; bool is_parameter = 7; bool trainable = 8; }
//	OpDesc      { repeated Var inputs = 1; repeated Var outputs = 2; string type = 3;
//	              repeated Attr attrs = 4; bool is_target = 5; }
//	OpDesc.Var  { string parameter = 1; repeated string arguments = 2; }
//	Attr        { string name = 1; int32 type = 2; int32 i = 3; float f = 4; string s = 5;
//	              repeated int32 ints = 6; repeated float floats = 7; repeated string strings = 8;
//	              bool b = 10; int64 l = 13; }

const (
	fieldProgramBlocks protowire.Number = 1

	fieldBlockIdx    protowire.Number = 1
	fieldBlockParent protowire.Number = 2
	fieldBlockVars   protowire.Number = 3
	fieldBlockOps    protowire.Number = 4

	fieldVarName        protowire.Number = 1
	fieldVarType        protowire.Number = 2
	fieldVarPersistable protowire.Number = 3
	fieldVarDType       protowire.Number = 4
	fieldVarDims        protowire.Number = 5
	fieldVarLoDLevel    protowire.Number = 6
	fieldVarIsParameter protowire.Number = 7
	fieldVarTrainable   protowire.Number = 8

	fieldOpInputs   protowire.Number = 1
	fieldOpOutputs  protowire.Number = 2
	fieldOpType     protowire.Number = 3
	fieldOpAttrs    protowire.Number = 4
	fieldOpIsTarget protowire.Number = 5

	fieldSlotParameter protowire.Number = 1
	fieldSlotArguments protowire.Number = 2

	fieldAttrName    protowire.Number = 1
	fieldAttrType    protowire.Number = 2
	fieldAttrI       protowire.Number = 3
	fieldAttrF       protowire.Number = 4
	fieldAttrS       protowire.Number = 5
	fieldAttrInts    protowire.Number = 6
	fieldAttrFloats  protowire.Number = 7
	fieldAttrStrings protowire.Number = 8
	fieldAttrB       protowire.Number = 10
	fieldAttrL       protowire.Number = 13
)

// Attribute type tags (Attr.type).
const (
	attrInt     = 0
	attrFloat   = 1
	attrString  = 2
	attrInts    = 3
	attrFloats  = 4
	attrStrings = 5
	attrBoolean = 6
	attrLong    = 9
)

// MarshalBinary serializes the program description.
//
// Slots and attributes are written in sorted order so that equal
// programs produce identical bytes.
func (p *Program) MarshalBinary() ([]byte, error) {
	var b []byte
	for _, blk := range p.blocks {
		bb, err := marshalBlock(blk)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldProgramBlocks, protowire.BytesType)
		b = protowire.AppendBytes(b, bb)
	}
	return b, nil
}

// ParseProgram decodes and validates a serialized program description.
func ParseProgram(data []byte) (*Program, error) {
	p := &Program{}
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDesc, err)
	}
	return p, nil
}

// UnmarshalBinary replaces the program with the decoded description.
func (p *Program) UnmarshalBinary(data []byte) error {
	p.blocks = nil
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldProgramBlocks {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		msg, n, err := readBytes(typ, b)
		if err != nil {
			return 0, err
		}
		blk, err := unmarshalBlock(p, msg)
		if err != nil {
			return 0, fmt.Errorf("block %d: %w", len(p.blocks), err)
		}
		p.blocks = append(p.blocks, blk)
		return n, nil
	})
	if err != nil {
		p.blocks = nil
		return fmt.Errorf("%w: %w", ErrMalformedDesc, err)
	}
	if len(p.blocks) == 0 {
		return fmt.Errorf("%w: %w", ErrMalformedDesc, ErrNoGlobalBlock)
	}
	return nil
}

func marshalBlock(blk *Block) ([]byte, error) {
	var b []byte
	b = appendVarintField(b, fieldBlockIdx, int64(blk.idx))
	b = appendVarintField(b, fieldBlockParent, int64(blk.parentIdx))
	for _, v := range blk.vars {
		b = protowire.AppendTag(b, fieldBlockVars, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalVar(v.desc))
	}
	for _, op := range blk.ops {
		ob, err := marshalOp(op)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldBlockOps, protowire.BytesType)
		b = protowire.AppendBytes(b, ob)
	}
	return b, nil
}

func marshalVar(d VarDesc) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVarName, protowire.BytesType)
	b = protowire.AppendString(b, d.Name)
	b = appendVarintField(b, fieldVarType, int64(d.Type))
	b = appendBoolField(b, fieldVarPersistable, d.Persistable)
	b = appendVarintField(b, fieldVarDType, int64(d.DType))
	if len(d.Shape) > 0 {
		var packed []byte
		for _, dim := range d.Shape {
			packed = protowire.AppendVarint(packed, uint64(dim))
		}
		b = protowire.AppendTag(b, fieldVarDims, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	b = appendVarintField(b, fieldVarLoDLevel, int64(d.LoDLevel))
	b = appendBoolField(b, fieldVarIsParameter, d.IsParameter)
	b = appendBoolField(b, fieldVarTrainable, d.Trainable)
	return b
}

func marshalOp(op *Operator) ([]byte, error) {
	var b []byte
	for _, slot := range op.InputSlots() {
		b = protowire.AppendTag(b, fieldOpInputs, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalSlot(slot, op.inputs[slot]))
	}
	for _, slot := range op.OutputSlots() {
		b = protowire.AppendTag(b, fieldOpOutputs, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalSlot(slot, op.outputs[slot]))
	}
	b = protowire.AppendTag(b, fieldOpType, protowire.BytesType)
	b = protowire.AppendString(b, op.typ)
	for _, name := range op.AttrNames() {
		ab, err := marshalAttr(name, op.attrs[name])
		if err != nil {
			return nil, fmt.Errorf("operator %s: %w", op.typ, err)
		}
		b = protowire.AppendTag(b, fieldOpAttrs, protowire.BytesType)
		b = protowire.AppendBytes(b, ab)
	}
	b = appendBoolField(b, fieldOpIsTarget, op.isTarget)
	return b, nil
}

func marshalSlot(slot string, args []string) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSlotParameter, protowire.BytesType)
	b = protowire.AppendString(b, slot)
	for _, arg := range args {
		b = protowire.AppendTag(b, fieldSlotArguments, protowire.BytesType)
		b = protowire.AppendString(b, arg)
	}
	return b
}

//nolint:gocyclo,cyclop // one case per attribute type
func marshalAttr(name string, value any) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldAttrName, protowire.BytesType)
	b = protowire.AppendString(b, name)

	switch v := value.(type) {
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, fmt.Errorf("attribute %q: int %d overflows int32, use int64", name, v)
		}
		b = appendVarintField(b, fieldAttrType, attrInt)
		b = appendVarintField(b, fieldAttrI, int64(v))
	case int64:
		b = appendVarintField(b, fieldAttrType, attrLong)
		b = appendVarintField(b, fieldAttrL, v)
	case float32:
		b = appendVarintField(b, fieldAttrType, attrFloat)
		b = protowire.AppendTag(b, fieldAttrF, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	case string:
		b = appendVarintField(b, fieldAttrType, attrString)
		b = protowire.AppendTag(b, fieldAttrS, protowire.BytesType)
		b = protowire.AppendString(b, v)
	case bool:
		b = appendVarintField(b, fieldAttrType, attrBoolean)
		b = appendBoolField(b, fieldAttrB, v)
	case []int:
		b = appendVarintField(b, fieldAttrType, attrInts)
		var packed []byte
		for _, x := range v {
			if x < math.MinInt32 || x > math.MaxInt32 {
				return nil, fmt.Errorf("attribute %q: int %d overflows int32", name, x)
			}
			packed = protowire.AppendVarint(packed, uint64(int64(x)))
		}
		b = protowire.AppendTag(b, fieldAttrInts, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	case []float32:
		b = appendVarintField(b, fieldAttrType, attrFloats)
		var packed []byte
		for _, x := range v {
			packed = protowire.AppendFixed32(packed, math.Float32bits(x))
		}
		b = protowire.AppendTag(b, fieldAttrFloats, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	case []string:
		b = appendVarintField(b, fieldAttrType, attrStrings)
		for _, s := range v {
			b = protowire.AppendTag(b, fieldAttrStrings, protowire.BytesType)
			b = protowire.AppendString(b, s)
		}
	default:
		return nil, fmt.Errorf("%w: attribute %q has type %T", ErrUnsupportedAttr, name, value)
	}
	return b, nil
}

func unmarshalBlock(p *Program, data []byte) (*Block, error) {
	blk := newBlock(p, 0, -1)
	var opMsgs [][]byte
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldBlockIdx:
			v, n, err := readVarint(typ, b)
			blk.idx = int(int64(v))
			return n, err
		case fieldBlockParent:
			v, n, err := readVarint(typ, b)
			blk.parentIdx = int(int64(v))
			return n, err
		case fieldBlockVars:
			msg, n, err := readBytes(typ, b)
			if err != nil {
				return 0, err
			}
			d, err := unmarshalVar(msg)
			if err != nil {
				return 0, err
			}
			v := &Variable{block: blk, desc: d.normalized()}
			blk.vars = append(blk.vars, v)
			blk.varIndex[d.Name] = v
			return n, nil
		case fieldBlockOps:
			// Ops are decoded after vars so argument lookups see the full block.
			msg, n, err := readBytes(typ, b)
			opMsgs = append(opMsgs, msg)
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, err
	}
	for _, msg := range opMsgs {
		op, err := unmarshalOp(blk, msg)
		if err != nil {
			return nil, err
		}
		blk.ops = append(blk.ops, op)
	}
	return blk, nil
}

func unmarshalVar(data []byte) (VarDesc, error) {
	var d VarDesc
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldVarName:
			s, n, err := readBytes(typ, b)
			d.Name = string(s)
			return n, err
		case fieldVarType:
			v, n, err := readVarint(typ, b)
			d.Type = VarType(int64(v))
			return n, err
		case fieldVarPersistable:
			v, n, err := readVarint(typ, b)
			d.Persistable = protowire.DecodeBool(v)
			return n, err
		case fieldVarDType:
			v, n, err := readVarint(typ, b)
			d.DType = tensor.DataType(int64(v))
			return n, err
		case fieldVarDims:
			vs, n, err := readPackedVarints(typ, b)
			for _, v := range vs {
				d.Shape = append(d.Shape, int64(v))
			}
			return n, err
		case fieldVarLoDLevel:
			v, n, err := readVarint(typ, b)
			d.LoDLevel = int(int64(v))
			return n, err
		case fieldVarIsParameter:
			v, n, err := readVarint(typ, b)
			d.IsParameter = protowire.DecodeBool(v)
			return n, err
		case fieldVarTrainable:
			v, n, err := readVarint(typ, b)
			d.Trainable = protowire.DecodeBool(v)
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return VarDesc{}, fmt.Errorf("var: %w", err)
	}
	if d.Name == "" {
		return VarDesc{}, fmt.Errorf("var: %w", ErrEmptyName)
	}
	return d, nil
}

func unmarshalOp(blk *Block, data []byte) (*Operator, error) {
	op := &Operator{
		block:   blk,
		inputs:  make(map[string][]string),
		outputs: make(map[string][]string),
		attrs:   make(map[string]any),
	}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldOpInputs, fieldOpOutputs:
			msg, n, err := readBytes(typ, b)
			if err != nil {
				return 0, err
			}
			slot, args, err := unmarshalSlot(msg)
			if err != nil {
				return 0, err
			}
			if num == fieldOpInputs {
				op.inputs[slot] = append(op.inputs[slot], args...)
			} else {
				op.outputs[slot] = append(op.outputs[slot], args...)
			}
			return n, nil
		case fieldOpType:
			s, n, err := readBytes(typ, b)
			op.typ = string(s)
			return n, err
		case fieldOpAttrs:
			msg, n, err := readBytes(typ, b)
			if err != nil {
				return 0, err
			}
			name, value, err := unmarshalAttr(msg)
			if err != nil {
				return 0, err
			}
			op.attrs[name] = value
			return n, nil
		case fieldOpIsTarget:
			v, n, err := readVarint(typ, b)
			op.isTarget = protowire.DecodeBool(v)
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("op: %w", err)
	}
	return op, nil
}

func unmarshalSlot(data []byte) (string, []string, error) {
	var slot string
	args := []string{}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSlotParameter:
			s, n, err := readBytes(typ, b)
			slot = string(s)
			return n, err
		case fieldSlotArguments:
			s, n, err := readBytes(typ, b)
			args = append(args, string(s))
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	return slot, args, err
}

//nolint:gocyclo,cyclop // one case per attribute field
func unmarshalAttr(data []byte) (string, any, error) {
	var (
		name    string
		typ     int64
		i, l    int64
		f       float32
		s       string
		bv      bool
		ints    = []int{}
		floats  = []float32{}
		strings = []string{}
	)
	err := forEachField(data, func(num protowire.Number, wt protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldAttrName:
			v, n, err := readBytes(wt, b)
			name = string(v)
			return n, err
		case fieldAttrType:
			v, n, err := readVarint(wt, b)
			typ = int64(v)
			return n, err
		case fieldAttrI:
			v, n, err := readVarint(wt, b)
			i = int64(int32(v))
			return n, err
		case fieldAttrL:
			v, n, err := readVarint(wt, b)
			l = int64(v)
			return n, err
		case fieldAttrF:
			v, n, err := readFixed32(wt, b)
			f = math.Float32frombits(v)
			return n, err
		case fieldAttrS:
			v, n, err := readBytes(wt, b)
			s = string(v)
			return n, err
		case fieldAttrB:
			v, n, err := readVarint(wt, b)
			bv = protowire.DecodeBool(v)
			return n, err
		case fieldAttrInts:
			vs, n, err := readPackedVarints(wt, b)
			for _, v := range vs {
				ints = append(ints, int(int32(v)))
			}
			return n, err
		case fieldAttrFloats:
			vs, n, err := readPackedFixed32(wt, b)
			for _, v := range vs {
				floats = append(floats, math.Float32frombits(v))
			}
			return n, err
		case fieldAttrStrings:
			v, n, err := readBytes(wt, b)
			strings = append(strings, string(v))
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, wt, b), nil
		}
	})
	if err != nil {
		return "", nil, fmt.Errorf("attr %q: %w", name, err)
	}

	switch typ {
	case attrInt:
		return name, int(i), nil
	case attrLong:
		return name, l, nil
	case attrFloat:
		return name, f, nil
	case attrString:
		return name, s, nil
	case attrBoolean:
		return name, bv, nil
	case attrInts:
		return name, ints, nil
	case attrFloats:
		return name, floats, nil
	case attrStrings:
		return name, strings, nil
	default:
		return "", nil, fmt.Errorf("%w: attribute %q has type tag %d", ErrUnsupportedAttr, name, typ)
	}
}

// forEachField walks the fields of a message. fn returns how many bytes
// of b the field value used; a negative count is a protowire error code.
func forEachField(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}

func readVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("wire type %d, expected varint", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func readFixed32(typ protowire.Type, b []byte) (uint32, int, error) {
	if typ != protowire.Fixed32Type {
		return 0, 0, fmt.Errorf("wire type %d, expected fixed32", typ)
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func readBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("wire type %d, expected bytes", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// readPackedVarints accepts both packed and unpacked encodings of a repeated varint field.
func readPackedVarints(typ protowire.Type, b []byte) ([]uint64, int, error) {
	if typ == protowire.VarintType {
		v, n, err := readVarint(typ, b)
		if err != nil {
			return nil, 0, err
		}
		return []uint64{v}, n, nil
	}
	packed, n, err := readBytes(typ, b)
	if err != nil {
		return nil, 0, err
	}
	var out []uint64
	for len(packed) > 0 {
		v, m := protowire.ConsumeVarint(packed)
		if m < 0 {
			return nil, 0, protowire.ParseError(m)
		}
		out = append(out, v)
		packed = packed[m:]
	}
	return out, n, nil
}

// readPackedFixed32 accepts both packed and unpacked encodings of a repeated fixed32 field.
func readPackedFixed32(typ protowire.Type, b []byte) ([]uint32, int, error) {
	if typ == protowire.Fixed32Type {
		v, n, err := readFixed32(typ, b)
		if err != nil {
			return nil, 0, err
		}
		return []uint32{v}, n, nil
	}
	packed, n, err := readBytes(typ, b)
	if err != nil {
		return nil, 0, err
	}
	var out []uint32
	for len(packed) > 0 {
		v, m := protowire.ConsumeFixed32(packed)
		if m < 0 {
			return nil, 0, protowire.ParseError(m)
		}
		out = append(out, v)
		packed = packed[m:]
	}
	return out, n, nil
}

func appendVarintField(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}
