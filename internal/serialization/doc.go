// Package serialization saves and loads network state dicts in the
// SafeTensors format:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw little-endian F32, tensors in name order]
//
// The header maps tensor names to dtype, shape and data offsets, plus an
// optional "__metadata__" string map. The writer records a SHA-256 of the
// data section under the "sha256" metadata key; the reader verifies it
// when present.
//
// Example usage:
//
//	meta := map[string]string{"run_id": runID}
//	if err := serialization.WriteSafeTensors("unet.safetensors", net.StateDict(), meta); err != nil {
//	    log.Fatal(err)
//	}
//
//	state, meta, err := serialization.ReadSafeTensors("unet.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = net.LoadStateDict(state)
package serialization
