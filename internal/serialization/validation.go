package serialization

import (
	"fmt"
	"strings"

	"github.com/born-ml/modelio/internal/tensor"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 16 * 1024 * 1024 // 16MB - maximum header size
	MaxTensorNameLen = 4096             // Maximum tensor name length
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict performs all validation checks (default).
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names and layout but not the shape/size agreement.
	ValidationNormal
	// ValidationNone checks only that the tensor lies inside the data section.
	ValidationNone
)

// ValidateTensorName rejects names that cannot be used as a file name
// inside a model directory.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.Contains(name, "..") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains '..' (path traversal attempt)",
		}
	}
	if strings.ContainsAny(name, `/\`) {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains path separator (/ or \\)",
		}
	}
	if strings.ContainsRune(name, 0) {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains null byte",
		}
	}
	return nil
}

// ValidateTensorMeta checks that a tensor description fits the data section.
// Bounds are checked at every level.
func ValidateTensorMeta(t TensorMeta, dataSize int64, level ValidationLevel) error {
	if t.Offset < 0 || t.Size < 0 {
		return &ValidationError{
			Type:    "negative_offset",
			Tensor:  t.Name,
			Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
		}
	}
	if t.Offset > dataSize || t.Size > dataSize-t.Offset {
		return &ValidationError{
			Type:    "out_of_bounds",
			Tensor:  t.Name,
			Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
		}
	}
	if level == ValidationNone {
		return nil
	}
	if err := ValidateTensorName(t.Name); err != nil {
		return err
	}
	if level != ValidationStrict {
		return nil
	}
	dt, err := tensor.ParseDataType(t.DType)
	if err != nil {
		return &ValidationError{Type: "invalid_dtype", Tensor: t.Name, Details: err.Error()}
	}
	shape := tensor.Shape(t.Shape)
	if err := shape.Validate(); err != nil {
		return &ValidationError{Type: "invalid_shape", Tensor: t.Name, Details: err.Error()}
	}
	if want := int64(shape.NumElements() * dt.Size()); want != t.Size {
		return &ValidationError{
			Type:    "size_mismatch",
			Tensor:  t.Name,
			Details: fmt.Sprintf("shape %v of %s needs %d bytes, header says %d", t.Shape, t.DType, want, t.Size),
		}
	}
	return nil
}

// ValidateHeader validates a decoded header against the data section size.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if len(h.Tensors) != 1 {
		return &ValidationError{
			Type:    "tensor_count",
			Details: fmt.Sprintf("got %d tensors, expected exactly 1", len(h.Tensors)),
		}
	}
	return ValidateTensorMeta(h.Tensors[0], dataSize, level)
}
