// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/modelio/internal/tensor"
)

// RawTensor is a dense, row-major tensor value.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType()
//   - Zero-copy data access via AsFloat32(), AsInt64(), etc.
//   - Deep copies via Clone()
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32)
//	data := raw.AsFloat32()
//	clone := raw.Clone()
type RawTensor = tensor.RawTensor

// NewRaw creates a zeroed tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromBytes wraps row-major element bytes. The slice is retained, not copied.
func FromBytes(shape Shape, dtype DataType, data []byte) (*RawTensor, error) {
	return tensor.FromBytes(shape, dtype, data)
}

// FromFloat32 creates a float32 tensor from a copy of values.
func FromFloat32(values []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(values, shape)
}

// FromInt64 creates an int64 tensor from a copy of values.
func FromInt64(values []int64, shape Shape) (*RawTensor, error) {
	return tensor.FromInt64(values, shape)
}
