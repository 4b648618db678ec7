package bndither

// Kernel and buffer names used with the compute registry. Names are
// stable so repeated dither calls reuse the compiled entries.
const (
	KernelGrayscale = "GrayscaleDither"
	KernelColor     = "ColorDither"

	bufInput   = "input"
	bufOutput  = "output"
	bufNoise   = "noise"
	bufOffsets = "noise_offsets"
)

// Device buffers hold one u32 per sample byte; the engine widens pixel
// bytes before upload and narrows after readback. Workgroup sizes carry
// the registry's specialization tokens and are fixed at dispatch time by
// tile selection. The channel loop in the color kernel is unrolled; naga
// has miscompiled short loops in the past and four channels do not earn
// one.

const grayscaleKernelSource = `
fn bn_index(x: u32, y: u32, o: u32, bn_width: u32, bn_height: u32) -> u32 {
    let offset_x = (o % bn_width + x) % bn_width;
    let offset_y = (o / bn_width + y) % bn_height;
    return offset_x + offset_y * bn_width;
}

@group(0) @binding(0) var<storage, read> input: array<u32>;
@group(0) @binding(1) var<storage, read> blue_noise: array<u32>;
@group(0) @binding(2) var<storage, read_write> output: array<u32>;
@group(0) @binding(3) var<uniform> input_width: u32;
@group(0) @binding(4) var<uniform> input_height: u32;
@group(0) @binding(5) var<uniform> blue_noise_width: u32;
@group(0) @binding(6) var<uniform> blue_noise_height: u32;
@group(0) @binding(7) var<uniform> blue_noise_offset: u32;

@compute @workgroup_size(__WG_0__, __WG_1__)
fn GrayscaleDither(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = gid.x;
    let y = gid.y;
    if (x >= input_width || y >= input_height) {
        return;
    }
    let b_i = bn_index(x, y, blue_noise_offset, blue_noise_width, blue_noise_height);
    let i = x + y * input_width;
    output[i] = select(0u, 255u, input[i] > blue_noise[b_i]);
}
`

const colorKernelSource = `
fn bn_index(x: u32, y: u32, o: u32, bn_width: u32, bn_height: u32) -> u32 {
    let offset_x = (o % bn_width + x) % bn_width;
    let offset_y = (o / bn_width + y) % bn_height;
    return offset_x + offset_y * bn_width;
}

@group(0) @binding(0) var<storage, read> input: array<u32>;
@group(0) @binding(1) var<storage, read> blue_noise: array<u32>;
@group(0) @binding(2) var<storage, read_write> output: array<u32>;
@group(0) @binding(3) var<uniform> input_width: u32;
@group(0) @binding(4) var<uniform> input_height: u32;
@group(0) @binding(5) var<uniform> blue_noise_width: u32;
@group(0) @binding(6) var<uniform> blue_noise_height: u32;
@group(0) @binding(7) var<storage, read> blue_noise_offsets: array<u32>;

@compute @workgroup_size(__WG_0__, __WG_1__)
fn ColorDither(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = gid.x;
    let y = gid.y;
    if (x >= input_width || y >= input_height) {
        return;
    }
    let b_r = bn_index(x, y, blue_noise_offsets[0], blue_noise_width, blue_noise_height);
    let b_g = bn_index(x, y, blue_noise_offsets[1], blue_noise_width, blue_noise_height);
    let b_b = bn_index(x, y, blue_noise_offsets[2], blue_noise_width, blue_noise_height);
    let base = (x + y * input_width) * 4u;
    output[base] = select(0u, 255u, input[base] > blue_noise[b_r]);
    output[base + 1u] = select(0u, 255u, input[base + 1u] > blue_noise[b_g]);
    output[base + 2u] = select(0u, 255u, input[base + 2u] > blue_noise[b_b]);
    output[base + 3u] = input[base + 3u];
}
`

// GrayscaleKernelSource returns the grayscale dithering kernel source.
func GrayscaleKernelSource() string { return grayscaleKernelSource }

// ColorKernelSource returns the color dithering kernel source.
func ColorKernelSource() string { return colorKernelSource }
