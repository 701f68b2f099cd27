package webgpu_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/ddpm/backend/webgpu"
)

func TestNewMatchesAvailability(t *testing.T) {
	gpu, err := webgpu.New()
	if !webgpu.IsAvailable() {
		assert.True(t, errors.Is(err, webgpu.ErrUnavailable))
		return
	}
	if err != nil {
		t.Skipf("WebGPU adapter present but unusable: %v", err)
	}
	defer gpu.Release()
	assert.Equal(t, "WebGPU", gpu.Name())
}
