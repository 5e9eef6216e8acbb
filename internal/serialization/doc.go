// Package serialization reads and writes named tensors in the SafeTensors
// format.
//
// Format:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
//
// The JSON header maps each tensor name to its dtype, shape and byte range
// within the data section, plus an optional "__metadata__" string map.
// Only F32, F64, I32 and I64 tensors are supported.
//
// The localattn CLI stores attention problems (inputs, window and expected
// outputs) in this format so results can be compared across backends and
// against externally produced fixtures.
package serialization
