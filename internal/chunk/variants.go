package chunk

import (
	"fmt"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/voxel"
	"github.com/freeeve/chunkworld/internal/world"
)

// Voxels is the read surface shared by every chunk variant. Variants that
// cannot be edited return ErrUnsupported from SetBlock.
type Voxels interface {
	Position() world.ChunkPos
	Block(x, y, z int) uint16
	Light(x, y, z int) uint8
	Sunlight(x, y, z int) uint8
	SetBlock(x, y, z int, id uint16) (uint16, error)
}

var (
	_ Voxels = (*Chunk)(nil)
	_ Voxels = (*LodChunk)(nil)
	_ Voxels = Placeholder{}
)

// LodChunk is a read-only, downsampled copy of a chunk for distant rendering.
// Coordinates are full-resolution; each cell covers scale^3 source blocks.
type LodChunk struct {
	pos      world.ChunkPos
	scale    int
	blocks   voxel.Array
	light    voxel.Array
	sunlight voxel.Array
}

// NewLod downsamples c by scale, which must divide every chunk dimension.
// The most common non-air block wins a cell; light values take the maximum.
func NewLod(c *Chunk, scale int) *LodChunk {
	if scale < 1 || world.SizeX%scale != 0 || world.SizeY%scale != 0 || world.SizeZ%scale != 0 {
		panic(fmt.Sprintf("chunk: invalid lod scale %d", scale))
	}
	sx, sy, sz := world.SizeX/scale, world.SizeY/scale, world.SizeZ/scale
	l := &LodChunk{
		pos:      c.pos,
		scale:    scale,
		blocks:   voxel.NewDense16(sx, sy, sz),
		light:    voxel.NewDense4(sx, sy, sz),
		sunlight: voxel.NewDense4(sx, sy, sz),
	}
	counts := make(map[uint16]int)
	for y := 0; y < sy; y++ {
		for z := 0; z < sz; z++ {
			for x := 0; x < sx; x++ {
				clear(counts)
				var light, sun uint8
				for dy := 0; dy < scale; dy++ {
					for dz := 0; dz < scale; dz++ {
						for dx := 0; dx < scale; dx++ {
							bx, by, bz := x*scale+dx, y*scale+dy, z*scale+dz
							if id := c.Block(bx, by, bz); id != block.Air {
								counts[id]++
							}
							light = max(light, c.Light(bx, by, bz))
							sun = max(sun, c.Sunlight(bx, by, bz))
						}
					}
				}
				var best uint16
				bestN := 0
				for id, n := range counts {
					if n > bestN || (n == bestN && id < best) {
						best, bestN = id, n
					}
				}
				l.blocks.Set(x, y, z, int(best))
				l.light.Set(x, y, z, int(light))
				l.sunlight.Set(x, y, z, int(sun))
			}
		}
	}
	return l
}

func (l *LodChunk) Position() world.ChunkPos { return l.pos }
func (l *LodChunk) Scale() int               { return l.scale }

func (l *LodChunk) Block(x, y, z int) uint16 {
	return uint16(l.blocks.Get(x/l.scale, y/l.scale, z/l.scale))
}

func (l *LodChunk) Light(x, y, z int) uint8 {
	return uint8(l.light.Get(x/l.scale, y/l.scale, z/l.scale))
}

func (l *LodChunk) Sunlight(x, y, z int) uint8 {
	return uint8(l.sunlight.Get(x/l.scale, y/l.scale, z/l.scale))
}

func (l *LodChunk) SetBlock(x, y, z int, id uint16) (uint16, error) {
	return 0, ErrUnsupported
}

// Placeholder stands in for a position that is not resident: all air, no light.
type Placeholder struct {
	Pos world.ChunkPos
}

func (p Placeholder) Position() world.ChunkPos { return p.Pos }

func (p Placeholder) Block(x, y, z int) uint16 {
	checkLocal(x, y, z)
	return block.Air
}

func (p Placeholder) Light(x, y, z int) uint8 {
	checkLocal(x, y, z)
	return 0
}

func (p Placeholder) Sunlight(x, y, z int) uint8 {
	checkLocal(x, y, z)
	return 0
}

func (p Placeholder) SetBlock(x, y, z int, id uint16) (uint16, error) {
	return 0, ErrUnsupported
}

func checkLocal(x, y, z int) {
	if !world.InChunk(x, y, z) {
		panic(fmt.Sprintf("chunk: local position (%d,%d,%d) out of bounds", x, y, z))
	}
}
