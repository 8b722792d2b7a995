// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense tensor values that modelio saves and loads.
//
// # Overview
//
// A RawTensor is a row-major byte buffer with a shape and a data type.
// Scopes hold RawTensors by variable name, variable files store exactly
// one RawTensor each, and executors return RawTensors for fetched
// variables.
//
// # Basic Usage
//
//	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	if err != nil {
//	    return err
//	}
//	data := x.AsFloat32() // zero-copy view of the buffer
//	y := x.Clone()        // deep copy
//
// Supported data types are float32, float64, int32, int64, uint8 and bool.
package tensor
