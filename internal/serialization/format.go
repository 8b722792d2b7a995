package serialization

import (
	"time"

	"github.com/born-ml/modelio/internal/tensor"
)

// Format constants.
const (
	MagicBytes       = "BORN"
	FormatVersion    = 2    // With SHA-256 checksum
	HeaderAlignment  = 64   // Align tensor data to 64 bytes
	FixedHeaderSize  = 64   // Fixed header size (0x40 bytes)
	ChecksumSize     = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset   = 0x20 // Checksum offset in fixed header
	writerIdentifier = "modelio"
)

// Flags for the fixed header.
const (
	FlagHasMetadata uint32 = 1 << 2 // bit 2: custom metadata included
)

// Metadata keys written for variables.
const (
	MetaVarType  = "var_type"
	MetaLoDLevel = "lod_level"
)

// Header represents the JSON header of a tensor file.
type Header struct {
	FormatVersion int               `json:"format_version"` // Version of the file format
	Writer        string            `json:"writer"`         // Library that created this file
	CreatedAt     time.Time         `json:"created_at"`     // When the file was created
	Tensors       []TensorMeta      `json:"tensors"`        // Exactly one entry
	Metadata      map[string]string `json:"metadata"`       // Custom metadata
}

// TensorMeta describes the tensor stored in a file.
type TensorMeta struct {
	Name   string `json:"name"`   // Variable name (e.g., "fc_0.w_0")
	DType  string `json:"dtype"`  // Data type (e.g., "float32")
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// TensorFile is the decoded content of a tensor file.
type TensorFile struct {
	Header Header
	Name   string
	Tensor *tensor.RawTensor
}

// Meta returns the description of the stored tensor.
func (f *TensorFile) Meta() TensorMeta {
	return f.Header.Tensors[0]
}

func padding(pos int64) int64 {
	return (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment
}
