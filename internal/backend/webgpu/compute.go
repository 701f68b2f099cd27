//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/ddpm/internal/tensor"
)

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	// Auto layout (nil layout)
	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()

	return pipeline
}

// createBuffer creates a GPU buffer and uploads initial data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createUniformBuffer creates a uniform buffer padded to 16-byte alignment.
func (b *Backend) createUniformBuffer(data []byte) (*wgpu.Buffer, uint64) {
	alignedSize := (uint64(len(data)) + 15) &^ 15
	padded := make([]byte, alignedSize)
	copy(padded, data)
	return b.createBuffer(padded, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst), alignedSize
}

// readBuffer reads data back from a GPU buffer to CPU memory through a
// staging buffer, since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingBuffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := stagingBuffer.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	stagingBuffer.Unmap()

	return result, nil
}

// dispatch binds buffers to a pipeline and runs ceil(n/workgroupSize) workgroups.
func (b *Backend) dispatch(name, code string, n int, entries []wgpu.BindGroupEntry) {
	pipeline := b.getOrCreatePipeline(name, b.compileShader(name, code))

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // G115: workgroup count is non-negative
	computePass.DispatchWorkgroups(uint32((n+workgroupSize-1)/workgroupSize), 1, 1)
	computePass.End()

	b.queue.Submit(encoder.Finish(nil))
}

// QSample computes sqrtAC[t[b]]*x0 + sqrtOneMinusAC[t[b]]*noise on the GPU.
// Coefficient sequences placed with Place are read from their resident
// buffers; the gather by timestep happens in the shader.
func (b *Backend) QSample(x0, noise, sqrtAC, sqrtOneMinusAC *tensor.Tensor, t []int) (*tensor.Tensor, error) {
	if len(x0.Shape()) == 0 {
		return nil, fmt.Errorf("webgpu: q_sample: scalar input: %w", tensor.ErrShapeMismatch)
	}
	if !x0.Shape().Equal(noise.Shape()) {
		return nil, fmt.Errorf("webgpu: q_sample: noise shape %v != x0 shape %v: %w", noise.Shape(), x0.Shape(), tensor.ErrShapeMismatch)
	}
	if len(sqrtAC.Shape()) != 1 || !sqrtAC.Shape().Equal(sqrtOneMinusAC.Shape()) {
		return nil, fmt.Errorf("webgpu: q_sample: coefficient shapes %v and %v: %w", sqrtAC.Shape(), sqrtOneMinusAC.Shape(), tensor.ErrShapeMismatch)
	}
	batch := x0.Dim(0)
	if len(t) != batch {
		return nil, fmt.Errorf("webgpu: q_sample: %d timesteps for batch %d: %w", len(t), batch, tensor.ErrShapeMismatch)
	}
	steps := sqrtAC.Dim(0)
	ts := make([]byte, batch*4)
	for i, step := range t {
		if step < 0 || step >= steps {
			return nil, fmt.Errorf("webgpu: q_sample: timestep %d out of range [0, %d): %w", step, steps, tensor.ErrShapeMismatch)
		}
		//nolint:gosec // G115: step is checked against the schedule length
		binary.LittleEndian.PutUint32(ts[i*4:], uint32(step))
	}

	n := x0.NumElements()
	size := uint64(n * 4)
	coefSize := uint64(steps * 4)
	tsSize := uint64(batch * 4)

	bufX0, releaseX0 := b.inputBuffer(x0)
	defer releaseX0()
	bufNoise, releaseNoise := b.inputBuffer(noise)
	defer releaseNoise()
	bufA, releaseA := b.inputBuffer(sqrtAC)
	defer releaseA()
	bufS, releaseS := b.inputBuffer(sqrtOneMinusAC)
	defer releaseS()
	bufT := b.createBuffer(ts, wgpu.BufferUsageStorage)
	defer bufT.Release()

	bufResult := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:  size,
	})
	defer bufResult.Release()

	params := make([]byte, 8)
	//nolint:gosec // G115: tensor sizes fit in uint32
	binary.LittleEndian.PutUint32(params[0:4], uint32(n))
	//nolint:gosec // G115: tensor sizes fit in uint32
	binary.LittleEndian.PutUint32(params[4:8], uint32(n/batch))
	bufParams, paramsSize := b.createUniformBuffer(params)
	defer bufParams.Release()

	b.dispatch("qsample", qSampleShader, n, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufX0, 0, size),
		wgpu.BufferBindingEntry(1, bufNoise, 0, size),
		wgpu.BufferBindingEntry(2, bufA, 0, coefSize),
		wgpu.BufferBindingEntry(3, bufS, 0, coefSize),
		wgpu.BufferBindingEntry(4, bufT, 0, tsSize),
		wgpu.BufferBindingEntry(5, bufResult, 0, size),
		wgpu.BufferBindingEntry(6, bufParams, 0, paramsSize),
	})

	raw, err := b.readBuffer(bufResult, size)
	if err != nil {
		return nil, err
	}
	return tensor.New(bytesToFloat32(raw), x0.Shape().Clone(), tensor.WebGPU), nil
}

// ReverseStep applies x = (x - noiseCoef*eps)*invSqrtAlpha + sigma*z on the
// GPU and writes the result back into x. z may be nil.
func (b *Backend) ReverseStep(x, eps, z *tensor.Tensor, noiseCoef, invSqrtAlpha, sigma float32) error {
	if !x.Shape().Equal(eps.Shape()) {
		return fmt.Errorf("webgpu: reverse step: eps shape %v != x shape %v: %w", eps.Shape(), x.Shape(), tensor.ErrShapeMismatch)
	}
	if z != nil && !x.Shape().Equal(z.Shape()) {
		return fmt.Errorf("webgpu: reverse step: z shape %v != x shape %v: %w", z.Shape(), x.Shape(), tensor.ErrShapeMismatch)
	}

	n := x.NumElements()
	size := uint64(n * 4)

	bufX := b.createBuffer(float32ToBytes(x.Data()), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufX.Release()
	bufEps, releaseEps := b.inputBuffer(eps)
	defer releaseEps()

	// Without noise the z binding aliases eps; both are read-only.
	bufZ := bufEps
	hasNoise := uint32(0)
	if z != nil {
		var releaseZ func()
		bufZ, releaseZ = b.inputBuffer(z)
		defer releaseZ()
		hasNoise = 1
	}

	params := make([]byte, 20)
	//nolint:gosec // G115: tensor sizes fit in uint32
	binary.LittleEndian.PutUint32(params[0:4], uint32(n))
	binary.LittleEndian.PutUint32(params[4:8], hasNoise)
	binary.LittleEndian.PutUint32(params[8:12], math.Float32bits(noiseCoef))
	binary.LittleEndian.PutUint32(params[12:16], math.Float32bits(invSqrtAlpha))
	binary.LittleEndian.PutUint32(params[16:20], math.Float32bits(sigma))
	bufParams, paramsSize := b.createUniformBuffer(params)
	defer bufParams.Release()

	b.dispatch("reverse_step", reverseStepShader, n, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufX, 0, size),
		wgpu.BufferBindingEntry(1, bufEps, 0, size),
		wgpu.BufferBindingEntry(2, bufZ, 0, size),
		wgpu.BufferBindingEntry(3, bufParams, 0, paramsSize),
	})

	raw, err := b.readBuffer(bufX, size)
	if err != nil {
		return err
	}
	copy(x.Data(), bytesToFloat32(raw))
	return nil
}

func float32ToBytes(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
