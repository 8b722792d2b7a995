package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/modelio/internal/tensor"
)

func writeWeights(t *testing.T) (*tensor.RawTensor, []byte) {
	t.Helper()
	raw, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{4, 2})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTensor(&buf, "fc_0.w_0", raw, map[string]string{MetaLoDLevel: "0"}))
	return raw, buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	raw, data := writeWeights(t)

	f, err := ReadTensor(bytes.NewReader(data), ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fc_0.w_0", f.Name)
	assert.True(t, raw.Equal(f.Tensor))
	assert.Equal(t, "0", f.Header.Metadata[MetaLoDLevel])
	assert.Equal(t, FormatVersion, f.Header.FormatVersion)
	assert.Equal(t, "modelio", f.Header.Writer)
	assert.Equal(t, "float32", f.Meta().DType)

	dataOffset := len(data) - raw.ByteSize()
	assert.Zero(t, dataOffset%HeaderAlignment, "tensor data must be aligned")
}

func TestRoundTripScalar(t *testing.T) {
	raw, err := tensor.FromInt64([]int64{42}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTensor(&buf, "step", raw, nil))
	f, err := ReadTensor(&buf, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, f.Tensor.AsInt64())
	assert.Equal(t, 0, len(f.Tensor.Shape()))
}

func TestWriteTensorRejectsBadName(t *testing.T) {
	raw, err := tensor.FromFloat32([]float32{1}, tensor.Shape{1})
	require.NoError(t, err)

	err = WriteTensor(&bytes.Buffer{}, "../escape", raw, nil)
	require.ErrorIs(t, err, ErrInvalidTensorName)

	err = WriteTensor(&bytes.Buffer{}, "w", nil, nil)
	require.Error(t, err)
}

func TestCorruptionDetection(t *testing.T) {
	_, data := writeWeights(t)

	corrupt := bytes.Clone(data)
	corrupt[len(corrupt)-1] ^= 0xFF

	_, err := ReadTensor(bytes.NewReader(corrupt), ReaderOptions{})
	require.ErrorIs(t, err, ErrChecksumMismatch)

	f, err := ReadTensor(bytes.NewReader(corrupt), ReaderOptions{SkipChecksumValidation: true})
	require.NoError(t, err)
	assert.NotEqual(t, float32(8), f.Tensor.AsFloat32()[7])
}

func TestReadErrors(t *testing.T) {
	_, data := writeWeights(t)

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{"bad magic", func(b []byte) []byte { copy(b, "GGUF"); return b }, ErrInvalidMagic},
		{"short garbage", func([]byte) []byte { return []byte("nope") }, ErrInvalidMagic},
		{"truncated fixed header", func(b []byte) []byte { return b[:10] }, ErrTruncated},
		{"truncated data", func(b []byte) []byte { return b[:len(b)-4] }, ErrTruncated},
		{"version 1", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[4:8], 1); return b }, ErrUnsupportedVersion},
		{"huge header", func(b []byte) []byte { binary.LittleEndian.PutUint64(b[16:24], MaxHeaderSize+1); return b }, ErrHeaderTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTensor(bytes.NewReader(tt.mutate(bytes.Clone(data))), ReaderOptions{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadTensor() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// encodeFile lays out a tensor file around an arbitrary header, with a
// valid checksum of section.
func encodeFile(t *testing.T, meta TensorMeta, section []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(Header{FormatVersion: FormatVersion, Tensors: []TensorMeta{meta}})
	require.NoError(t, err)

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(section)))
	checksum := ComputeChecksum(section)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	out := append(fixed, headerJSON...)
	out = append(out, make([]byte, padding(int64(len(out))))...)
	return append(out, section...)
}

func TestReadRejectsOverflowingOffset(t *testing.T) {
	meta := TensorMeta{Name: "w", DType: "uint8", Shape: []int{4}, Offset: math.MaxInt64 - 1, Size: 4}
	data := encodeFile(t, meta, []byte{1, 2, 3, 4})

	for _, level := range []ValidationLevel{ValidationStrict, ValidationNormal, ValidationNone} {
		_, err := ReadTensor(bytes.NewReader(data), ReaderOptions{ValidationLevel: level})
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "out_of_bounds", validationErr.Type)
	}

	path := filepath.Join(t.TempDir(), "w")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	_, err := ReadHeaderFile(path)
	require.Error(t, err)
	_, err = ReadTensorFile(path, ReaderOptions{})
	require.Error(t, err)

	meta.Offset = 0
	f, err := ReadTensor(bytes.NewReader(encodeFile(t, meta, []byte{1, 2, 3, 4})), ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 3, 4}, f.Tensor.AsUint8())
}

func TestTensorFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fc_0.b_0")
	raw, err := tensor.FromFloat32([]float32{0.1, 0.1}, tensor.Shape{2})
	require.NoError(t, err)

	require.NoError(t, WriteTensorFile(path, "fc_0.b_0", raw, map[string]string{MetaVarType: "lod_tensor"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file must not be left behind")

	f, err := ReadTensorFile(path, ReaderOptions{})
	require.NoError(t, err)
	assert.True(t, raw.Equal(f.Tensor))

	h, err := ReadHeaderFile(path)
	require.NoError(t, err)
	assert.Equal(t, "lod_tensor", h.Metadata[MetaVarType])
	assert.Equal(t, []int{2}, h.Tensors[0].Shape)

	_, err = ReadTensorFile(filepath.Join(dir, "missing"), ReaderOptions{})
	require.ErrorIs(t, err, os.ErrNotExist)
}
