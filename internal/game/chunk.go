package game

// chunkCoord addresses one broad-phase bucket.
type chunkCoord struct{ X, Y int }

// ChunkGrid is the broad-phase index for one entity kind: a mapping from
// chunk coordinate to the set of entity ids whose bounding box overlaps it.
// Entities smaller than a chunk span at most four chunks. The grid is owned
// by a single World and accessed only from its worker goroutine.
type ChunkGrid struct {
	size    float64
	cells   map[chunkCoord]map[uint64]struct{}
	members map[uint64][]chunkCoord
}

// NewChunkGrid creates a grid with the given chunk edge length in tiles.
func NewChunkGrid(size int) *ChunkGrid {
	if size < 1 {
		size = 1
	}
	return &ChunkGrid{
		size:    float64(size),
		cells:   make(map[chunkCoord]map[uint64]struct{}),
		members: make(map[uint64][]chunkCoord),
	}
}

// chunksFor returns the chunk coordinates a bounding box overlaps.
func (g *ChunkGrid) chunksFor(x, y, halfW, halfH float64) []chunkCoord {
	x0 := int(floorDiv(x-halfW, g.size))
	x1 := int(floorDiv(x+halfW, g.size))
	y0 := int(floorDiv(y-halfH, g.size))
	y1 := int(floorDiv(y+halfH, g.size))

	out := make([]chunkCoord, 0, 4)
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			out = append(out, chunkCoord{cx, cy})
		}
	}
	return out
}

func floorDiv(v, size float64) float64 {
	q := v / size
	if q < 0 && q != float64(int(q)) {
		return float64(int(q) - 1)
	}
	return float64(int(q))
}

// Update recomputes an entity's chunk membership after a position change.
func (g *ChunkGrid) Update(id uint64, x, y, halfW, halfH float64) {
	next := g.chunksFor(x, y, halfW, halfH)
	prev := g.members[id]
	if chunksEqual(prev, next) {
		return
	}
	for _, c := range prev {
		g.dropFromCell(c, id)
	}
	for _, c := range next {
		cell := g.cells[c]
		if cell == nil {
			cell = make(map[uint64]struct{})
			g.cells[c] = cell
		}
		cell[id] = struct{}{}
	}
	g.members[id] = next
}

// Remove deregisters an entity from every chunk it occupies. Idempotent.
func (g *ChunkGrid) Remove(id uint64) {
	for _, c := range g.members[id] {
		g.dropFromCell(c, id)
	}
	delete(g.members, id)
}

func (g *ChunkGrid) dropFromCell(c chunkCoord, id uint64) {
	if cell := g.cells[c]; cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, c)
		}
	}
}

// Chunks returns the chunk coordinates an entity currently occupies.
func (g *ChunkGrid) Chunks(id uint64) []chunkCoord { return g.members[id] }

// InSameChunks returns the union of ids registered in other under any chunk
// the given entity occupies in this grid. Used as the broad phase before
// narrow-phase polygon tests.
func (g *ChunkGrid) InSameChunks(id uint64, other *ChunkGrid) []uint64 {
	var out []uint64
	seen := make(map[uint64]struct{})
	for _, c := range g.members[id] {
		for otherID := range other.cells[c] {
			if _, dup := seen[otherID]; dup {
				continue
			}
			seen[otherID] = struct{}{}
			out = append(out, otherID)
		}
	}
	return out
}

// Reset drops all membership. Called when the current map changes; stale
// grids from the previous map must never be queried.
func (g *ChunkGrid) Reset() {
	g.cells = make(map[chunkCoord]map[uint64]struct{})
	g.members = make(map[uint64][]chunkCoord)
}

func chunksEqual(a, b []chunkCoord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
