package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeRoundTrip(t *testing.T) {
	for _, dt := range []DataType{Float32, Float64, Int32, Int64, Uint8, Bool} {
		parsed, err := ParseDataType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, parsed)
		assert.True(t, dt.Valid())
	}

	_, err := ParseDataType("bfloat16")
	require.Error(t, err)
	assert.False(t, DataType(-1).Valid())
	assert.Equal(t, "unknown", DataType(99).String())
}

func TestDataTypeSize(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Int64.Size())
	assert.Equal(t, 1, Bool.Size())
	assert.Panics(t, func() { DataType(99).Size() })
}

func TestShape(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, 1, Shape(nil).NumElements())
	require.NoError(t, s.Validate())
	require.Error(t, Shape{2, -1}.Validate())

	assert.True(t, s.Equal(s.Clone()))
	assert.False(t, s.Equal(Shape{2, 3}))
	assert.Nil(t, Shape(nil).Clone())

	assert.Equal(t, []int64{2, 3, 4}, s.Int64s())
	assert.Equal(t, s, ShapeFromInt64s(s.Int64s()))
	assert.Nil(t, ShapeFromInt64s(nil))
}
