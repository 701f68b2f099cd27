package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ddpm/internal/tensor"
)

func sampleState(t *testing.T) map[string]*tensor.Tensor {
	t.Helper()
	w, err := tensor.FromSlice([]float32{1, -2, 3.5, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float32{0.25, -0.5}, tensor.Shape{2})
	require.NoError(t, err)
	return map[string]*tensor.Tensor{
		"final_conv.weight": w,
		"final_conv.bias":   b,
	}
}

func TestSafeTensorsRoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	state := sampleState(t)

	require.NoError(t, WriteSafeTensors(path, state, map[string]string{"run_id": "abc"}))

	loaded, meta, err := ReadSafeTensors(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", meta["run_id"])
	assert.NotEmpty(t, meta[ChecksumKey])
	require.Len(t, loaded, len(state))
	for name, want := range state {
		got, ok := loaded[name]
		require.True(t, ok, name)
		assert.Equal(t, want.Shape(), got.Shape())
		assert.Equal(t, want.Data(), got.Data())
	}
}

func TestEncodeSafeTensorsLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSafeTensors(&buf, sampleState(t), nil))

	raw := buf.Bytes()
	headerSize := binary.LittleEndian.Uint64(raw[:8])
	header := string(raw[8 : 8+headerSize])
	assert.Contains(t, header, `"final_conv.bias":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}`)
	assert.Contains(t, header, `"final_conv.weight":{"dtype":"F32","shape":[2,3],"data_offsets":[8,32]}`)
	assert.Len(t, raw[8+headerSize:], 32)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSafeTensors(&buf, sampleState(t), nil))
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF

	_, _, err := DecodeSafeTensors(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func encodeRaw(header string, data []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestDecodeRejectsBadFiles(t *testing.T) {
	data := make([]byte, 16)

	tests := []struct {
		name   string
		header string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "dtype",
			header: `{"a":{"dtype":"F16","shape":[2],"data_offsets":[0,4]}}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnsupportedDType) },
		},
		{
			name:   "out of bounds",
			header: `{"a":{"dtype":"F32","shape":[8],"data_offsets":[0,32]}}`,
			check:  validationType("out_of_bounds"),
		},
		{
			name:   "overlap",
			header: `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`,
			check:  validationType("offset_overlap"),
		},
		{
			name:   "size mismatch",
			header: `{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`,
			check:  validationType("size_mismatch"),
		},
		{
			name:   "path name",
			header: `{"../a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInvalidTensorName) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeSafeTensors(bytes.NewReader(encodeRaw(tt.header, data)))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func validationType(want string) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
		assert.Equal(t, want, verr.Type)
	}
}

func TestDecodeRejectsHugeHeader(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1))
	_, _, err := DecodeSafeTensors(&buf)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestEncodeRejectsReservedName(t *testing.T) {
	state := map[string]*tensor.Tensor{metadataKey: tensor.Zeros(tensor.Shape{1})}
	err := EncodeSafeTensors(&bytes.Buffer{}, state, nil)
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Type: "offset_overlap", Tensor: "a", Tensor2: "b", Details: "x"}
	assert.Equal(t, `offset_overlap: tensors "a" and "b": x`, err.Error())
}
