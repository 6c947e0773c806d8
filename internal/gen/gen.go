// Package gen produces the block contents of fresh chunks.
package gen

import (
	"fmt"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// Generator fills new chunks. CreateChunk sees only the chunk itself.
// SecondPass runs once the chunk's 26 neighbors are resident; v is inside Edit
// and the pass may read any present chunk but writes only target.
type Generator interface {
	Name() string
	CreateChunk(e *chunk.Editor)
	SecondPass(v *chunk.View, target world.ChunkPos)
}

// New returns the generator registered under name.
func New(name string, seed int64, ground int) (Generator, error) {
	switch name {
	case "flat":
		return Flat{Ground: ground}, nil
	case "noise", "":
		return NewNoise(seed, ground), nil
	case "empty":
		return Empty{}, nil
	}
	return nil, fmt.Errorf("unknown generator %q", name)
}

// Empty leaves every chunk as air.
type Empty struct{}

func (Empty) Name() string                           { return "empty" }
func (Empty) CreateChunk(*chunk.Editor)              {}
func (Empty) SecondPass(*chunk.View, world.ChunkPos) {}

// columns calls fn for each world-space column of e's chunk.
func columns(pos world.ChunkPos, fn func(x, z, wx, wz int)) {
	o := pos.Origin()
	for z := 0; z < world.SizeZ; z++ {
		for x := 0; x < world.SizeX; x++ {
			fn(x, z, o.X+x, o.Z+z)
		}
	}
}
