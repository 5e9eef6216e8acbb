package webgpu

// maxGroupsPerDim is the default limit on workgroups along one dispatch axis.
const maxGroupsPerDim = 65535

// batchChunk is a run of consecutive batch indices dispatched together.
type batchChunk struct {
	start, count int
}

// batchChunks splits total batch entries into dispatches whose z axis stays
// within maxGroupsPerDim.
func batchChunks(total int) []batchChunk {
	chunks := make([]batchChunk, 0, (total+maxGroupsPerDim-1)/maxGroupsPerDim)
	for start := 0; start < total; start += maxGroupsPerDim {
		chunks = append(chunks, batchChunk{start: start, count: min(maxGroupsPerDim, total-start)})
	}
	return chunks
}
