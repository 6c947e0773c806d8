package gen

import (
	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// Flat fills stone below Ground-1, then dirt, with grass at Ground-1 (world
// block y).
type Flat struct {
	Ground int
}

func (Flat) Name() string { return "flat" }

func (f Flat) CreateChunk(e *chunk.Editor) {
	pos := e.Chunk().Position()
	base := pos.Origin().Y
	columns(pos, func(x, z, _, _ int) {
		fillColumn(e, x, z, base, f.Ground)
	})
}

func (Flat) SecondPass(*chunk.View, world.ChunkPos) {}

// fillColumn writes a column whose topmost solid block is at world y height-1.
func fillColumn(e *chunk.Editor, x, z, base, height int) {
	top := world.Clamp(height-base, 0, world.SizeY)
	for y := 0; y < top; y++ {
		wy := base + y
		id := block.Stone
		switch {
		case wy == height-1:
			id = block.Grass
		case wy >= height-4:
			id = block.Dirt
		}
		e.SetBlock(x, y, z, id)
	}
}
