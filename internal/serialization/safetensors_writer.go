package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"sort"

	"github.com/born-ml/ddpm/internal/tensor"
)

const metadataKey = "__metadata__"

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteSafeTensors writes a state dict to a SafeTensors file.
func WriteSafeTensors(path string, stateDict map[string]*tensor.Tensor, metadata map[string]string) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := EncodeSafeTensors(file, stateDict, metadata); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// EncodeSafeTensors writes a state dict in SafeTensors format to w.
//
// Tensors are written in alphabetical order by name. Every tensor is
// stored as F32.
func EncodeSafeTensors(w io.Writer, stateDict map[string]*tensor.Tensor, metadata map[string]string) error {
	tensorNames := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		tensorNames = append(tensorNames, name)
	}
	sort.Strings(tensorNames)

	var data bytes.Buffer
	header := make(map[string]any, len(stateDict)+1)
	var currentOffset int64
	for _, name := range tensorNames {
		t := stateDict[name]
		for _, v := range t.Data() {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			data.Write(b[:])
		}

		shape := make([]int64, len(t.Shape()))
		for i, dim := range t.Shape() {
			shape[i] = int64(dim)
		}
		size := int64(t.NumElements() * 4)
		header[name] = SafeTensorHeader{
			DType:       "F32",
			Shape:       shape,
			DataOffsets: [2]int64{currentOffset, currentOffset + size},
		}
		currentOffset += size
	}

	meta := make(map[string]string, len(metadata)+1)
	maps.Copy(meta, metadata)
	sum := ComputeChecksum(data.Bytes())
	meta[ChecksumKey] = hex.EncodeToString(sum[:])
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}
