package webgpu

// Workgroup size for compute shaders.
const workgroupSize = 256

// qSampleShader computes out = coefA[t[b]]*x0 + coefS[t[b]]*noise, gathering
// each batch element's coefficients from the full schedule sequences.
const qSampleShader = `
@group(0) @binding(0) var<storage, read> x0: array<f32>;
@group(0) @binding(1) var<storage, read> noise: array<f32>;
@group(0) @binding(2) var<storage, read> coefA: array<f32>;
@group(0) @binding(3) var<storage, read> coefS: array<f32>;
@group(0) @binding(4) var<storage, read> timesteps: array<u32>;
@group(0) @binding(5) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    per_sample: u32,
}
@group(0) @binding(6) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params.size) {
        return;
    }
    let t = timesteps[idx / params.per_sample];
    result[idx] = coefA[t] * x0[idx] + coefS[t] * noise[idx];
}
`

// reverseStepShader computes x = (x - noise_coef*eps) * inv_sqrt_alpha + sigma*z.
// The z term is skipped when has_noise is zero.
const reverseStepShader = `
@group(0) @binding(0) var<storage, read_write> x: array<f32>;
@group(0) @binding(1) var<storage, read> eps: array<f32>;
@group(0) @binding(2) var<storage, read> z: array<f32>;

struct Params {
    size: u32,
    has_noise: u32,
    noise_coef: f32,
    inv_sqrt_alpha: f32,
    sigma: f32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params.size) {
        return;
    }
    var v = (x[idx] - params.noise_coef * eps[idx]) * params.inv_sqrt_alpha;
    if (params.has_noise != 0u) {
        v = v + params.sigma * z[idx];
    }
    x[idx] = v;
}
`
