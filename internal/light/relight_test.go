package light

import (
	"testing"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

var lightChannels = []string{chunk.ChannelSunlightRegen, chunk.ChannelSunlight, chunk.ChannelLight}

// settled builds chunks at the given positions, applies edits to the chunk at
// the origin and lights them from scratch: Internal on every chunk but the
// origin, then Merge on the origin.
func settled(t *testing.T, m *Merger, positions []world.ChunkPos, edits map[world.BlockPos]uint16) world27 {
	t.Helper()
	f := newFactory(t)
	origin := world.ChunkPos{}
	chunks := world27{}
	for _, p := range positions {
		c := f.New(p)
		_ = c.Edit(func(e *chunk.Editor) error {
			if p == origin {
				for b, id := range edits {
					e.SetBlock(b.X, b.Y, b.Z, id)
				}
				return nil
			}
			m.Internal(e)
			return nil
		})
		chunks[p] = c
	}
	v := chunk.NewNeighborhood(origin, chunks.lookup)
	_ = v.Edit(func() error {
		m.Merge(v, origin)
		return nil
	})
	return chunks
}

// setAndRelight edits one block of the origin chunk and relights around it.
func setAndRelight(m *Merger, chunks world27, p world.BlockPos, id uint16) Result {
	origin := world.ChunkPos{}
	v := chunk.NewNeighborhood(origin, chunks.lookup)
	var res Result
	_ = v.Edit(func() error {
		v.Editor(origin).SetBlock(p.X, p.Y, p.Z, id)
		res = m.Relight(v, p)
		return nil
	})
	return res
}

// sameLight fails on the first cell whose light differs between got and want.
func sameLight(t *testing.T, got, want world27) {
	t.Helper()
	for pos, g := range got {
		w := want[pos]
		for _, ch := range lightChannels {
			for y := 0; y < world.SizeY; y++ {
				for z := 0; z < world.SizeZ; z++ {
					for x := 0; x < world.SizeX; x++ {
						if a, b := g.Get(ch, x, y, z), w.Get(ch, x, y, z); a != b {
							t.Fatalf("chunk %v %s at (%d,%d,%d) = %d, want %d", pos, ch, x, y, z, a, b)
						}
					}
				}
			}
		}
	}
}

func around(center world.ChunkPos) []world.ChunkPos {
	var out []world.ChunkPos
	world.Around(center).Each(func(p world.ChunkPos) { out = append(out, p) })
	return out
}

func TestRelightBlockLight(t *testing.T) {
	m := NewMerger(newBlocks(t), skyHigh)
	positions := around(world.ChunkPos{})
	lamp := world.BlockPos{X: 2, Y: world.SizeY / 2, Z: 2}
	wall := lamp.Add(world.BlockPos{X: 1})
	shadow := lamp.Add(world.BlockPos{X: 2})

	chunks := settled(t, m, positions, map[world.BlockPos]uint16{lamp: block.Lamp})
	if got := chunks[world.ChunkPos{}].Light(shadow.X, shadow.Y, shadow.Z); got != 13 {
		t.Fatalf("light before wall = %d, want 13", got)
	}

	// Placing an opaque block next to the lamp darkens the cells behind it.
	res := setAndRelight(m, chunks, wall, block.Stone)
	if res.Light == 0 {
		t.Errorf("Relight touched no light cells")
	}
	sameLight(t, chunks, settled(t, m, positions, map[world.BlockPos]uint16{lamp: block.Lamp, wall: block.Stone}))
	c := chunks[world.ChunkPos{}]
	if got := c.Light(wall.X, wall.Y, wall.Z); got != 0 {
		t.Errorf("light inside wall = %d, want 0", got)
	}
	if got := c.Light(shadow.X, shadow.Y, shadow.Z); got != 11 {
		t.Errorf("light behind wall = %d, want 11", got)
	}
	// Light crossed into the -x neighbor before the edit and still does.
	if got := chunks[world.ChunkPos{X: -1}].Light(world.SizeX-1, lamp.Y, lamp.Z); got != 12 {
		t.Errorf("neighbor light = %d, want 12", got)
	}

	// Removing the lamp leaves the whole neighborhood dark.
	setAndRelight(m, chunks, lamp, block.Air)
	sameLight(t, chunks, settled(t, m, positions, map[world.BlockPos]uint16{wall: block.Stone}))
	if got := chunks[world.ChunkPos{X: -1}].Light(world.SizeX-1, lamp.Y, lamp.Z); got != 0 {
		t.Errorf("neighbor light after removing lamp = %d, want 0", got)
	}

	// Removing the wall again matches a world that never had it.
	setAndRelight(m, chunks, lamp, block.Lamp)
	setAndRelight(m, chunks, wall, block.Air)
	sameLight(t, chunks, settled(t, m, positions, map[world.BlockPos]uint16{lamp: block.Lamp}))
}

func TestRelightSunlightThroughRoof(t *testing.T) {
	m := NewMerger(newBlocks(t), world.SizeY) // chunk y=1 and above is open sky
	positions := []world.ChunkPos{{}, {Y: 1}}
	const roofY = 40
	roof := map[world.BlockPos]uint16{}
	for z := 0; z < world.SizeZ; z++ {
		for x := 0; x < world.SizeX; x++ {
			roof[world.BlockPos{X: x, Y: roofY, Z: z}] = block.Stone
		}
	}
	hole := world.BlockPos{X: 9, Y: roofY, Z: 9}
	chunks := settled(t, m, positions, roof)
	c := chunks[world.ChunkPos{}]
	if got := c.Sunlight(9, 10, 9); got != 0 {
		t.Fatalf("sunlight under roof = %d, want 0", got)
	}

	res := setAndRelight(m, chunks, hole, block.Air)
	if res.Regen == 0 || res.Sunlight == 0 {
		t.Errorf("Relight = %+v, want regen and sunlight changes", res)
	}
	holed := map[world.BlockPos]uint16{}
	for b, id := range roof {
		if b != hole {
			holed[b] = id
		}
	}
	sameLight(t, chunks, settled(t, m, positions, holed))
	cases := []struct {
		x, y, z  int
		regen    uint8
		sunlight uint8
	}{
		{9, roofY, 9, 63, 15},
		{9, 0, 9, 63, 15},
		{10, 10, 9, roofY - 11, 14},
		{12, 10, 12, roofY - 11, 9},
	}
	for _, tc := range cases {
		if got := c.SunlightRegen(tc.x, tc.y, tc.z); got != tc.regen {
			t.Errorf("SunlightRegen(%d,%d,%d) = %d, want %d", tc.x, tc.y, tc.z, got, tc.regen)
		}
		if got := c.Sunlight(tc.x, tc.y, tc.z); got != tc.sunlight {
			t.Errorf("Sunlight(%d,%d,%d) = %d, want %d", tc.x, tc.y, tc.z, got, tc.sunlight)
		}
	}

	// Closing the hole restores the dark, counted-from-roof column.
	setAndRelight(m, chunks, hole, block.Stone)
	sameLight(t, chunks, settled(t, m, positions, roof))
	if got := c.SunlightRegen(9, roofY-2, 9); got != 1 {
		t.Errorf("regen two below closed roof = %d, want 1", got)
	}
	if got := c.Sunlight(9, 0, 9); got != 0 {
		t.Errorf("sunlight below closed roof = %d, want 0", got)
	}
}

func TestRelightUnchangedBlockIsStable(t *testing.T) {
	m := NewMerger(newBlocks(t), skyHigh)
	positions := around(world.ChunkPos{})
	torch := world.BlockPos{X: 16, Y: 20, Z: 16}
	chunks := settled(t, m, positions, map[world.BlockPos]uint16{torch: block.Torch})
	setAndRelight(m, chunks, torch, block.Torch)
	sameLight(t, chunks, settled(t, m, positions, map[world.BlockPos]uint16{torch: block.Torch}))
}

func TestRelightRequiresBorrow(t *testing.T) {
	f := newFactory(t)
	m := NewMerger(newBlocks(t), skyHigh)
	chunks := world27{{}: f.New(world.ChunkPos{})}
	v := chunk.NewNeighborhood(world.ChunkPos{}, chunks.lookup)
	defer func() {
		if recover() == nil {
			t.Errorf("Relight outside Edit did not panic")
		}
	}()
	m.Relight(v, world.BlockPos{})
}
