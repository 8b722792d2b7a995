// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/modelio/tensor"
)

func TestPublicAPI(t *testing.T) {
	raw, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, raw.DType())

	dt, err := tensor.ParseDataType("int64")
	require.NoError(t, err)
	assert.Equal(t, tensor.Int64, dt)

	zeros, err := tensor.NewRaw(tensor.Shape{3}, tensor.Bool)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, zeros.AsBool())
}
