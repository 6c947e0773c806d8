package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/exp/constraints"
)

// Chunk dimensions in blocks.
const (
	SizeX = 32
	SizeY = 64
	SizeZ = 32

	Volume = SizeX * SizeY * SizeZ
)

// ChunkPos addresses a chunk in units of whole chunks.
type ChunkPos struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

func (p ChunkPos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

// Add returns p offset by (dx, dy, dz).
func (p ChunkPos) Add(dx, dy, dz int32) ChunkPos {
	return ChunkPos{p.X + dx, p.Y + dy, p.Z + dz}
}

// Less orders positions by x, then y, then z. Multi-chunk locks are taken in this order.
func (p ChunkPos) Less(o ChunkPos) bool {
	if p.X != o.X {
		return p.X < o.X
	}
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.Z < o.Z
}

// Origin returns the world-space block position of the chunk's minimum corner.
func (p ChunkPos) Origin() BlockPos {
	return BlockPos{int(p.X) * SizeX, int(p.Y) * SizeY, int(p.Z) * SizeZ}
}

// BlockPos is a block coordinate. Depending on context it is world-space,
// chunk-local, or relative to a view's origin chunk.
type BlockPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p BlockPos) String() string {
	return fmt.Sprintf("[%d,%d,%d]", p.X, p.Y, p.Z)
}

// Add returns p offset by o.
func (p BlockPos) Add(o BlockPos) BlockPos {
	return BlockPos{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// Sub returns p - o.
func (p BlockPos) Sub(o BlockPos) BlockPos {
	return BlockPos{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

// Step returns the neighbor of p across side s.
func (p BlockPos) Step(s Side) BlockPos {
	d := s.Offset()
	return BlockPos{p.X + int(d.X), p.Y + int(d.Y), p.Z + int(d.Z)}
}

// ChunkOf splits a block coordinate into its chunk and the chunk-local offset.
func ChunkOf(p BlockPos) (ChunkPos, BlockPos) {
	cx, lx := floorDiv(p.X, SizeX)
	cy, ly := floorDiv(p.Y, SizeY)
	cz, lz := floorDiv(p.Z, SizeZ)
	return ChunkPos{int32(cx), int32(cy), int32(cz)}, BlockPos{lx, ly, lz}
}

// ChunkPosOf floors a world-space position to the chunk containing it.
func ChunkPosOf(v mgl64.Vec3) ChunkPos {
	return ChunkPos{
		X: int32(math.Floor(v.X() / SizeX)),
		Y: int32(math.Floor(v.Y() / SizeY)),
		Z: int32(math.Floor(v.Z() / SizeZ)),
	}
}

// CenterOf returns the world-space center of a chunk.
func CenterOf(p ChunkPos) mgl64.Vec3 {
	o := p.Origin()
	return mgl64.Vec3{float64(o.X) + SizeX/2, float64(o.Y) + SizeY/2, float64(o.Z) + SizeZ/2}
}

// InChunk reports whether a chunk-local coordinate is inside the chunk bounds.
func InChunk(x, y, z int) bool {
	return x >= 0 && x < SizeX && y >= 0 && y < SizeY && z >= 0 && z < SizeZ
}

// Manhattan returns the grid distance between two chunk positions.
func Manhattan(a, b ChunkPos) int {
	return int(abs(a.X-b.X) + abs(a.Y-b.Y) + abs(a.Z-b.Z))
}

// Neighbors26 returns the 26 face, edge and corner neighbors of p.
func Neighbors26(p ChunkPos) []ChunkPos {
	out := make([]ChunkPos, 0, 26)
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(-1); dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out = append(out, p.Add(dx, dy, dz))
			}
		}
	}
	return out
}

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs[T constraints.Signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

func floorDiv(v, d int) (q, r int) {
	q = v / d
	r = v % d
	if r < 0 {
		q--
		r += d
	}
	return q, r
}
