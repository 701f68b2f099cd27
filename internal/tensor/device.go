package tensor

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Placer moves tensors onto a compute device.
//
// Place must be safe to call repeatedly on the same tensor; callers that
// need idempotent placement (for example the noise schedule) cache the
// returned tensor per device.
type Placer interface {
	// Device returns the device tensors are placed on.
	Device() Device

	// Place returns a tensor resident on Device() holding the same values.
	// A tensor already on the device may be returned as is.
	Place(t *Tensor) (*Tensor, error)
}
