//go:build windows

package webgpu

import "strings"

// WGSL compute shaders for the banded attention kernels.

// workgroupSize is the number of invocations of the flat shaders.
const workgroupSize = 256

// tile is the side of the shared-memory tiles. A 16x16 workgroup stays
// within the default limit of 256 invocations per workgroup.
const tile = 16

// paramsStruct is shared by every shader; see shaderParams.
const paramsStruct = `
struct Params {
    batch: u32,
    length: u32,
    features: u32,
    window: u32,
    query_start: u32,
    key_start: u32,
    rows: u32,
    cols: u32,
    pitch: u32,
    size: u32,
    batch_start: u32,
    _pad0: u32,
}
`

// addShader performs element-wise addition: result = a + b.
const addShader = paramsStruct + `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.y * params.pitch + gid.x;
    if (idx < params.size) {
        result[idx] = a[idx] + b[idx];
    }
}
`

// blockMatMulShader writes the dense product of a query chunk against its
// key range:
//
//	block[n, r, c] = sum_e a[n, query_start + r, e] * b[n, key_start + c, e]
//
// Workgroups are (col tile, row tile, n - batch_start); both operands are staged through
// 16x16 workgroup tiles along the feature axis.
const blockMatMulShader = paramsStruct + `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> dense: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;

const TILE: u32 = 16u;

var<workgroup> tile_a: array<array<f32, 16>, 16>;
var<workgroup> tile_b: array<array<f32, 16>, 16>;

@compute @workgroup_size(16, 16)
fn main(@builtin(workgroup_id) wg: vec3<u32>, @builtin(local_invocation_id) lid: vec3<u32>) {
    let n = params.batch_start + wg.z;
    let r = wg.y * TILE + lid.y;
    let c = wg.x * TILE + lid.x;

    var acc = 0.0;
    let steps = (params.features + TILE - 1u) / TILE;
    for (var t = 0u; t < steps; t = t + 1u) {
        let ea = t * TILE + lid.x;
        var va = 0.0;
        if (r < params.rows && ea < params.features) {
            va = a[(n * params.length + params.query_start + r) * params.features + ea];
        }
        tile_a[lid.y][lid.x] = va;

        let eb = t * TILE + lid.y;
        var vb = 0.0;
        if (c < params.cols && eb < params.features) {
            vb = b[(n * params.length + params.key_start + c) * params.features + eb];
        }
        tile_b[lid.y][lid.x] = vb;
        workgroupBarrier();

        for (var kk = 0u; kk < TILE; kk = kk + 1u) {
            acc = acc + tile_a[lid.y][kk] * tile_b[kk][lid.x];
        }
        workgroupBarrier();
    }

    if (r < params.rows && c < params.cols) {
        dense[(n * params.rows + r) * params.cols + c] = acc;
    }
}
`

// selectTemplate copies the band of a dense block into the banded output.
// One invocation per block element; it writes out[n, l, k] only when key s
// lies in query l's window. EXTRA_BINDINGS and VALUE are filled per copy
// policy.
const selectTemplate = paramsStruct + `
@group(0) @binding(0) var<storage, read> dense: array<f32>;
@group(0) @binding(1) var<storage, read_write> banded: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
EXTRA_BINDINGS

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.y * params.pitch + gid.x;
    let per_batch = params.rows * params.cols;
    if (idx >= params.batch * per_batch) {
        return;
    }
    let n = idx / per_batch;
    let rem = idx % per_batch;
    let l = params.query_start + rem / params.cols;
    let s = params.key_start + rem % params.cols;

    let k = i32(s) - i32(l) + i32(params.window / 2u);
    if (k < 0 || k >= i32(params.window) || l >= params.length || s >= params.length) {
        return;
    }
    banded[(n * params.length + l) * params.window + u32(k)] = VALUE;
}
`

// Copy policies of the band-selection shader.
var (
	maskedSelectShader = strings.NewReplacer(
		"EXTRA_BINDINGS", "@group(0) @binding(3) var<storage, read> mask: array<f32>;",
		"VALUE", "dense[idx] + mask[l * params.length + s]",
	).Replace(selectTemplate)

	plainSelectShader = strings.NewReplacer(
		"EXTRA_BINDINGS", "",
		"VALUE", "dense[idx]",
	).Replace(selectTemplate)
)

// bandAccessors read zero-padded elements of (batch, L, E) values and
// (batch, L, C) factors.
const bandAccessors = `
fn value_at(n: u32, row: i32, e: u32) -> f32 {
    if (row < 0 || row >= i32(params.length) || e >= params.features) {
        return 0.0;
    }
    return values[(n * params.length + u32(row)) * params.features + e];
}

fn factor_at(n: u32, row: i32, k: i32) -> f32 {
    if (row < 0 || row >= i32(params.length) || k < 0 || k >= i32(params.window)) {
        return 0.0;
    }
    return factors[(n * params.length + u32(row)) * params.window + u32(k)];
}
`

// weightedAverageShader accumulates
//
//	out[n, l, e] += sum_k factors[n, l, k] * values[n, l - C/2 + k, e]
//
// Workgroups are (feature tile, length tile, n). Per window chunk the
// factors tile and two adjacent values tiles starting at l0 - C/2 + k0 are
// loaded, then reduced between two barriers.
const weightedAverageShader = paramsStruct + `
@group(0) @binding(0) var<storage, read> factors: array<f32>;
@group(0) @binding(1) var<storage, read> values: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;

const TILE: u32 = 16u;

var<workgroup> sh_factors: array<array<f32, 16>, 16>;
var<workgroup> sh_values: array<array<f32, 16>, 32>;
` + bandAccessors + `
@compute @workgroup_size(16, 16)
fn main(@builtin(workgroup_id) wg: vec3<u32>, @builtin(local_invocation_id) lid: vec3<u32>) {
    let n = params.batch_start + wg.z;
    let l0 = wg.y * TILE;
    let e0 = wg.x * TILE;
    let i = lid.y;
    let j = lid.x;
    let half_win = i32(params.window / 2u);

    var acc = 0.0;
    for (var k0 = 0u; k0 < params.window; k0 = k0 + TILE) {
        let base = i32(l0) - half_win + i32(k0);
        sh_factors[i][j] = factor_at(n, i32(l0 + i), i32(k0 + j));
        sh_values[i][j] = value_at(n, base + i32(i), e0 + j);
        sh_values[TILE + i][j] = value_at(n, base + i32(TILE + i), e0 + j);
        workgroupBarrier();

        for (var kk = 0u; kk < TILE; kk = kk + 1u) {
            acc = acc + sh_factors[i][kk] * sh_values[i + kk][j];
        }
        workgroupBarrier();
    }

    let l = l0 + i;
    let e = e0 + j;
    if (l < params.length && e < params.features) {
        let idx = (n * params.length + l) * params.features + e;
        result[idx] = result[idx] + acc;
    }
}
`

// scatterTemplate accumulates the adjoint of the weighted average:
//
//	out[n, s, e] += sum_l values[n, l, e] * factors[n, l, s - l + C/2]
//
// Workgroups are (feature tile, key tile, n). WINDOW_INDEX, ROW_BASE and ROW
// are filled per index-lookup policy; both policies visit the same terms.
const scatterTemplate = paramsStruct + `
@group(0) @binding(0) var<storage, read> factors: array<f32>;
@group(0) @binding(1) var<storage, read> values: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;

const TILE: u32 = 16u;

var<workgroup> sh_factors: array<array<f32, 16>, 32>;
var<workgroup> sh_values: array<array<f32, 16>, 32>;
` + bandAccessors + `
@compute @workgroup_size(16, 16)
fn main(@builtin(workgroup_id) wg: vec3<u32>, @builtin(local_invocation_id) lid: vec3<u32>) {
    let n = params.batch_start + wg.z;
    let s0 = i32(wg.y * TILE);
    let e0 = wg.x * TILE;
    let i = lid.y;
    let j = lid.x;
    let half_win = i32(params.window / 2u);
    let win = i32(params.window);
    let tile_len = i32(TILE);

    var acc = 0.0;
    for (var k0u = 0u; k0u < params.window; k0u = k0u + TILE) {
        let k0 = i32(k0u);
        let base = ROW_BASE;
        var k = -1;
        if (k0u + j < params.window) {
            let kk = i32(j);
            k = WINDOW_INDEX;
        }
        sh_factors[i][j] = factor_at(n, base + i32(i), k);
        sh_factors[TILE + i][j] = factor_at(n, base + i32(TILE + i), k);
        sh_values[i][j] = value_at(n, base + i32(i), e0 + j);
        sh_values[TILE + i][j] = value_at(n, base + i32(TILE + i), e0 + j);
        workgroupBarrier();

        for (var kk = 0u; kk < TILE; kk = kk + 1u) {
            let r = ROW;
            acc = acc + sh_factors[r][kk] * sh_values[r][j];
        }
        workgroupBarrier();
    }

    let s = u32(s0) + i;
    let e = e0 + j;
    if (s < params.length && e < params.features) {
        let idx = (n * params.length + s) * params.features + e;
        result[idx] = result[idx] + acc;
    }
}
`

// Index-lookup policies of the transpose-scatter shader.
var (
	// increasing reads window index k0 + kk.
	increasingScatterShader = strings.NewReplacer(
		"WINDOW_INDEX", "k0 + kk",
		"ROW_BASE", "s0 + half_win - k0 - (tile_len - 1)",
		"ROW", "i + TILE - 1u - kk",
	).Replace(scatterTemplate)

	// reverse reads window index C - k0 - kk - 1.
	reverseScatterShader = strings.NewReplacer(
		"WINDOW_INDEX", "win - k0 - kk - 1",
		"ROW_BASE", "s0 + half_win - win + 1 + k0",
		"ROW", "i + kk",
	).Replace(scatterTemplate)
)
