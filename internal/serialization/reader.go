package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/modelio/internal/tensor"
)

// ReaderOptions configures how tensor files are read.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// ReadTensorFile reads the tensor stored at path.
func ReadTensorFile(path string, opts ReaderOptions) (*TensorFile, error) {
	//nolint:gosec // G304: path is the model directory entry being loaded
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	f, err := decode(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ReadTensor reads one tensor from r.
func ReadTensor(r io.Reader, opts ReaderOptions) (*TensorFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	return decode(data, opts)
}

// ReadHeaderFile reads only the fixed and JSON headers at path and
// validates them against the declared data size. The data section is
// neither read nor checksummed.
func ReadHeaderFile(path string) (*Header, error) {
	//nolint:gosec // G304: path is the model directory entry being inspected
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(file, fixed); err != nil {
		return nil, fmt.Errorf("%s: %w", path, truncated(err))
	}
	headerSize, dataSize, _, err := parseFixedHeader(fixed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerJSON); err != nil {
		return nil, fmt.Errorf("%s: %w", path, truncated(err))
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("%s: failed to parse header JSON: %w", path, err)
	}
	if err := ValidateHeader(&header, int64(dataSize), ValidationStrict); err != nil {
		return nil, fmt.Errorf("%s: validation failed: %w", path, err)
	}
	return &header, nil
}

func decode(data []byte, opts ReaderOptions) (*TensorFile, error) {
	if len(data) < FixedHeaderSize {
		if len(data) >= 4 && !bytes.Equal(data[:4], []byte(MagicBytes)) {
			return nil, ErrInvalidMagic
		}
		return nil, ErrTruncated
	}
	headerSize, dataSize, checksum, err := parseFixedHeader(data[:FixedHeaderSize])
	if err != nil {
		return nil, err
	}

	headerEnd := int64(FixedHeaderSize) + int64(headerSize)
	if headerEnd > int64(len(data)) || dataSize > uint64(len(data)) {
		return nil, ErrTruncated
	}
	var header Header
	if err := json.Unmarshal(data[FixedHeaderSize:headerEnd], &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	dataOffset := headerEnd + padding(headerEnd)
	if dataOffset+int64(dataSize) > int64(len(data)) {
		return nil, ErrTruncated
	}
	section := data[dataOffset : dataOffset+int64(dataSize)]

	if err := ValidateHeader(&header, int64(dataSize), opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(section), checksum); err != nil {
			return nil, err
		}
	}

	meta := header.Tensors[0]
	dtype, err := tensor.ParseDataType(meta.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", meta.Name, err)
	}
	payload := make([]byte, meta.Size)
	copy(payload, section[meta.Offset:meta.Offset+meta.Size])
	raw, err := tensor.FromBytes(tensor.Shape(meta.Shape), dtype, payload)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", meta.Name, err)
	}

	return &TensorFile{Header: header, Name: meta.Name, Tensor: raw}, nil
}

func parseFixedHeader(fixed []byte) (headerSize, dataSize uint64, checksum [32]byte, err error) {
	if string(fixed[0:4]) != MagicBytes {
		return 0, 0, checksum, ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint32(fixed[4:8])
	if version != FormatVersion {
		return 0, 0, checksum, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	headerSize = binary.LittleEndian.Uint64(fixed[16:24])
	dataSize = binary.LittleEndian.Uint64(fixed[24:32])
	copy(checksum[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])
	if headerSize > MaxHeaderSize {
		return 0, 0, checksum, ErrHeaderTooLarge
	}
	return headerSize, dataSize, checksum, nil
}

func truncated(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ErrTruncated
	}
	return err
}
