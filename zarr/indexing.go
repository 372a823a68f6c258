package zarr

import "sort"

type chunkDimProjection struct {
	// Index of chunk.
	DimChunkIX int
	// Selection of items from chunk array.
	DimChunkSel []int
	// Selection of items in target (output) array.
	DimOutSel []int
}

// projectDim groups the selected positions of one dimension by the chunk
// holding them, in ascending chunk order.
func projectDim(sel []int, chunkLen int) []chunkDimProjection {
	byChunk := map[int]*chunkDimProjection{}
	var order []int
	for out, i := range sel {
		ix := i / chunkLen
		p, ok := byChunk[ix]
		if !ok {
			p = &chunkDimProjection{DimChunkIX: ix}
			byChunk[ix] = p
			order = append(order, ix)
		}
		p.DimChunkSel = append(p.DimChunkSel, i-ix*chunkLen)
		p.DimOutSel = append(p.DimOutSel, out)
	}
	sort.Ints(order)
	res := make([]chunkDimProjection, len(order))
	for k, ix := range order {
		res[k] = *byChunk[ix]
	}
	return res
}

// A mapping of items from chunk to output array. Can be used to extract items
// from the chunk array for loading into an output array. Can also be used to
// extract items from a value array for setting/updating in a chunk array.
type chunkProjection struct {
	// Indices of chunk
	ChunkCoords []int
	// Selection of items from chunk array, per dimension.
	ChunkSelection [][]int
	// Selection of items in target (output) array, per dimension.
	OutSelection [][]int
}

// projections enumerates every chunk touched by a per-dimension selection,
// in row-major chunk order.
func projections(sel [][]int, chunks []int) []chunkProjection {
	dims := make([][]chunkDimProjection, len(sel))
	for d, s := range sel {
		dims[d] = projectDim(s, chunks[d])
		if len(dims[d]) == 0 {
			return nil
		}
	}
	var res []chunkProjection
	pos := make([]int, len(dims))
	for {
		p := chunkProjection{
			ChunkCoords:    make([]int, len(dims)),
			ChunkSelection: make([][]int, len(dims)),
			OutSelection:   make([][]int, len(dims)),
		}
		for d, k := range pos {
			dp := dims[d][k]
			p.ChunkCoords[d] = dp.DimChunkIX
			p.ChunkSelection[d] = dp.DimChunkSel
			p.OutSelection[d] = dp.DimOutSel
		}
		res = append(res, p)

		d := len(pos) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < len(dims[d]) {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return res
		}
	}
}
