package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/born-ml/ddpm/internal/tensor"
)

// ReadSafeTensors loads a state dict and its metadata from a SafeTensors file.
func ReadSafeTensors(path string) (map[string]*tensor.Tensor, map[string]string, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return DecodeSafeTensors(file)
}

// DecodeSafeTensors reads a SafeTensors stream. Only F32 tensors are
// supported. Offsets are validated against the data section and the
// checksum is verified when the metadata carries one.
func DecodeSafeTensors(r io.Reader) (map[string]*tensor.Tensor, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}

	var metadata map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		delete(raw, metadataKey)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if sum, ok := metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(data, sum); err != nil {
			return nil, nil, err
		}
	}

	headers := make(map[string]SafeTensorHeader, len(raw))
	metas := make([]TensorMeta, 0, len(raw))
	for name, msg := range raw {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, nil, fmt.Errorf("failed to parse tensor %s: %w", name, err)
		}
		if h.DType != "F32" {
			return nil, nil, fmt.Errorf("%w: tensor %s has dtype %s", ErrUnsupportedDType, name, h.DType)
		}
		headers[name] = h
		metas = append(metas, TensorMeta{Name: name, Offset: h.DataOffsets[0], Size: h.DataOffsets[1] - h.DataOffsets[0]})
	}
	if err := ValidateTensorOffsets(metas, int64(len(data))); err != nil {
		return nil, nil, err
	}

	state := make(map[string]*tensor.Tensor, len(headers))
	for name, h := range headers {
		shape := make(tensor.Shape, len(h.Shape))
		for i, d := range h.Shape {
			shape[i] = int(d)
		}
		region := data[h.DataOffsets[0]:h.DataOffsets[1]]
		if int64(shape.NumElements()*4) != int64(len(region)) {
			return nil, nil, &ValidationError{
				Type:    "size_mismatch",
				Tensor:  name,
				Details: fmt.Sprintf("shape %v needs %d bytes, region has %d", shape, shape.NumElements()*4, len(region)),
			}
		}
		values := make([]float32, shape.NumElements())
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(region[i*4:]))
		}
		t, err := tensor.FromSlice(values, shape)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		state[name] = t
	}

	return state, metadata, nil
}
