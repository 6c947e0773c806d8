package gen

import (
	"math"

	"github.com/ojrac/opensimplex-go"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// Noise builds rolling terrain from fractal opensimplex noise around a base
// height. The second pass places torches on exposed surface cells.
type Noise struct {
	Ground      int
	Amplitude   float64
	Scale       float64
	Octaves     int
	Lacunarity  float64
	Persistence float64
	// One column in TorchEvery gets a torch candidate.
	TorchEvery uint64

	seed  int64
	noise opensimplex.Noise
}

func NewNoise(seed int64, ground int) *Noise {
	return &Noise{
		Ground:      ground,
		Amplitude:   24,
		Scale:       96,
		Octaves:     4,
		Lacunarity:  2,
		Persistence: 0.5,
		TorchEvery:  61,
		seed:        seed,
		noise:       opensimplex.New(seed),
	}
}

func (n *Noise) Name() string { return "noise" }

// Height returns the world y one above the topmost solid block of column (wx, wz).
func (n *Noise) Height(wx, wz int) int {
	x, z := float64(wx), float64(wz)
	amp := n.Amplitude
	val := 0.0
	for i := 0; i < n.Octaves; i++ {
		val += n.noise.Eval2(x/n.Scale, z/n.Scale) * amp
		x *= n.Lacunarity
		z *= n.Lacunarity
		amp *= n.Persistence
	}
	return n.Ground + int(math.Round(val))
}

func (n *Noise) CreateChunk(e *chunk.Editor) {
	pos := e.Chunk().Position()
	base := pos.Origin().Y
	columns(pos, func(x, z, wx, wz int) {
		fillColumn(e, x, z, base, n.Height(wx, wz))
	})
}

// SecondPass puts a torch on a candidate column's surface when the eight
// cells around the torch are open, which may mean reading neighbor chunks.
func (n *Noise) SecondPass(v *chunk.View, target world.ChunkPos) {
	base := v.ToRelative(target, world.BlockPos{})
	origin := target.Origin()
	columns(target, func(x, z, wx, wz int) {
		if !n.torchColumn(wx, wz) {
			return
		}
		y := n.Height(wx, wz) - origin.Y
		if y < 0 || y >= world.SizeY {
			return
		}
		p := world.BlockPos{X: base.X + x, Y: base.Y + y, Z: base.Z + z}
		for dz := -1; dz <= 1; dz++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dz == 0 {
					continue
				}
				id, ok := v.Block(p.Add(world.BlockPos{X: dx, Z: dz}))
				if !ok || id != block.Air {
					return
				}
			}
		}
		v.SetValue(chunk.ChannelBlock, p, int(block.Torch))
	})
}

func (n *Noise) torchColumn(wx, wz int) bool {
	if n.TorchEvery == 0 {
		return false
	}
	h := fnv1a.HashUint64(uint64(uint32(wx))<<32 | uint64(uint32(wz)) ^ uint64(n.seed))
	return h%n.TorchEvery == 0
}
