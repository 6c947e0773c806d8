package light

import (
	"math/rand"
	"testing"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/voxel"
	"github.com/freeeve/chunkworld/internal/world"
)

// skyHigh keeps every test chunk below open sky.
const skyHigh = 1 << 20

func newBlocks(t *testing.T) *block.Registry {
	t.Helper()
	reg, err := block.NewRegistry(block.Defaults()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func newFactory(t *testing.T) *chunk.Factory {
	t.Helper()
	f, err := chunk.NewFactory(voxel.NewRegistry(), chunk.DefaultLayout())
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	return f
}

type world27 map[world.ChunkPos]*chunk.Chunk

func (w world27) lookup(p world.ChunkPos) *chunk.Chunk { return w[p] }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestMergeEmissiveFalloff(t *testing.T) {
	f := newFactory(t)
	m := NewMerger(newBlocks(t), skyHigh)
	center := world.ChunkPos{}
	chunks := world27{}
	world.Around(center).Each(func(p world.ChunkPos) {
		c := f.New(p)
		if p != center {
			_ = c.Edit(func(e *chunk.Editor) error {
				for s := chunk.InternalLightPending; s <= chunk.Complete; s++ {
					e.AdvanceTo(s)
				}
				return nil
			})
		}
		chunks[p] = c
	})
	lamp := world.BlockPos{X: world.SizeX / 2, Y: world.SizeY / 2, Z: world.SizeZ / 2}
	if _, err := chunks[center].SetBlock(lamp.X, lamp.Y, lamp.Z, block.Lamp); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}

	v := chunk.NewNeighborhood(center, chunks.lookup)
	var res Result
	if err := v.Edit(func() error {
		res = m.Merge(v, center)
		return nil
	}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if res.Light == 0 {
		t.Fatalf("Merge raised no light")
	}

	c := chunks[center]
	for y := 0; y < world.SizeY; y++ {
		for z := 0; z < world.SizeZ; z++ {
			for x := 0; x < world.SizeX; x++ {
				d := abs(x-lamp.X) + abs(y-lamp.Y) + abs(z-lamp.Z)
				want := max(15-d, 0)
				if got := int(c.Light(x, y, z)); got != want {
					t.Fatalf("Light(%d,%d,%d) = %d, want %d", x, y, z, got, want)
				}
			}
		}
	}
	for p, n := range chunks {
		if p == center {
			continue
		}
		if n.Light(0, 0, 0) != 0 || n.Light(world.SizeX-1, world.SizeY/2, world.SizeZ-1) != 0 {
			t.Errorf("neighbor %v lit by a source 15+ steps away", p)
		}
	}
}

func TestMergeLightsNeighborOutward(t *testing.T) {
	f := newFactory(t)
	m := NewMerger(newBlocks(t), skyHigh)
	target := world.ChunkPos{X: -1, Z: 4}
	east := target.Add(1, 0, 0)
	chunks := world27{target: f.New(target), east: f.New(east)}
	if _, err := chunks[target].SetBlock(world.SizeX-1, 10, 7, block.Torch); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	// A wall two cells into the neighbor stops the flood.
	_ = chunks[east].Edit(func(e *chunk.Editor) error {
		for y := 0; y < world.SizeY; y++ {
			for z := 0; z < world.SizeZ; z++ {
				e.SetBlock(2, y, z, block.Stone)
			}
		}
		return nil
	})
	chunks[east].ClearDirty()

	v := chunk.NewNeighborhood(target, chunks.lookup)
	_ = v.Edit(func() error {
		m.Merge(v, target)
		return nil
	})
	e := chunks[east]
	if got := e.Light(0, 10, 7); got != 13 {
		t.Errorf("east Light(0,10,7) = %d, want 13", got)
	}
	if got := e.Light(1, 10, 7); got != 12 {
		t.Errorf("east Light(1,10,7) = %d, want 12", got)
	}
	if got := e.Light(2, 10, 7); got != 0 {
		t.Errorf("light entered opaque wall: %d", got)
	}
	if got := e.Light(3, 10, 7); got != 0 {
		t.Errorf("light passed the wall: %d", got)
	}
	if !e.Dirty() {
		t.Errorf("neighbor not marked dirty after being lit")
	}
}

func TestMergeInwardFromSettledNeighbor(t *testing.T) {
	f := newFactory(t)
	m := NewMerger(newBlocks(t), skyHigh)
	target := world.ChunkPos{}
	west := target.Add(-1, 0, 0)
	chunks := world27{target: f.New(target), west: f.New(west)}
	_ = chunks[west].Edit(func(e *chunk.Editor) error {
		e.SetLight(world.SizeX-1, 5, 5, 9)
		return nil
	})
	v := chunk.NewNeighborhood(target, chunks.lookup)
	_ = v.Edit(func() error {
		m.Merge(v, target)
		return nil
	})
	if got := chunks[target].Light(0, 5, 5); got != 8 {
		t.Errorf("Light(0,5,5) = %d, want 8", got)
	}
	if got := chunks[target].Light(7, 5, 5); got != 1 {
		t.Errorf("Light(7,5,5) = %d, want 1", got)
	}
}

func TestInternalIsolatedLamp(t *testing.T) {
	f := newFactory(t)
	m := NewMerger(newBlocks(t), skyHigh)
	c := f.New(world.ChunkPos{Y: 3})
	_ = c.Edit(func(e *chunk.Editor) error {
		e.SetBlock(0, 0, 0, block.Torch)
		m.Internal(e)
		return nil
	})
	if got := c.Light(0, 0, 0); got != 14 {
		t.Errorf("torch Light = %d, want 14", got)
	}
	if got := c.Light(3, 2, 1); got != 8 {
		t.Errorf("Light(3,2,1) = %d, want 8", got)
	}
	if got := c.Sunlight(10, 10, 10); got != 0 {
		t.Errorf("Sunlight below sky = %d, want 0", got)
	}
}

func TestSunlightUnderSlab(t *testing.T) {
	f := newFactory(t)
	blocks := newBlocks(t)
	m := NewMerger(blocks, world.SizeY) // chunk y=1 and above is open sky
	target := world.ChunkPos{}
	above := target.Add(0, 1, 0)
	chunks := world27{target: f.New(target), above: f.New(above)}

	const slabY = 40
	_ = chunks[target].Edit(func(e *chunk.Editor) error {
		for z := 0; z < world.SizeZ; z++ {
			for x := 0; x < world.SizeX; x++ {
				e.SetBlock(x, slabY, z, block.Stone)
			}
		}
		return nil
	})
	_ = chunks[above].Edit(func(e *chunk.Editor) error {
		m.Internal(e)
		return nil
	})
	if got := chunks[above].SunlightRegen(4, 0, 4); got != chunk.MaxSunlightRegen {
		t.Fatalf("sky regen = %d, want %d", got, chunk.MaxSunlightRegen)
	}
	if got := chunks[above].Sunlight(4, 0, 4); got != chunk.MaxSunlight {
		t.Fatalf("sky sunlight = %d, want %d", got, chunk.MaxSunlight)
	}

	v := chunk.NewNeighborhood(target, chunks.lookup)
	_ = v.Edit(func() error {
		m.Merge(v, target)
		return nil
	})
	c := chunks[target]
	cases := []struct {
		y        int
		regen    uint8
		sunlight uint8
	}{
		{world.SizeY - 1, 63, 15},
		{slabY + 1, 63, 15},
		{slabY, 0, 0},
		{slabY - 1, 0, 0},
		{slabY - 2, 1, 0},
		{0, slabY - 1, 0},
	}
	for _, tc := range cases {
		if got := c.SunlightRegen(9, tc.y, 9); got != tc.regen {
			t.Errorf("SunlightRegen(y=%d) = %d, want %d", tc.y, got, tc.regen)
		}
		if got := c.Sunlight(9, tc.y, 9); got != tc.sunlight {
			t.Errorf("Sunlight(y=%d) = %d, want %d", tc.y, got, tc.sunlight)
		}
	}
}

func TestRegenRestoresSunlightAfterThreshold(t *testing.T) {
	f := newFactory(t)
	m := NewMerger(newBlocks(t), world.SizeY)
	// Two chunks stacked below the sky: a one-block roof at the top of the
	// upper one leaves 48 open cells before regen reaches the threshold.
	upper := world.ChunkPos{Y: 0}
	lower := world.ChunkPos{Y: -1}
	sky := world.ChunkPos{Y: 1}
	chunks := world27{upper: f.New(upper), lower: f.New(lower), sky: f.New(sky)}
	_ = chunks[upper].Edit(func(e *chunk.Editor) error {
		e.SetBlock(5, world.SizeY-1, 5, block.Stone)
		return nil
	})
	_ = chunks[sky].Edit(func(e *chunk.Editor) error {
		m.Internal(e)
		return nil
	})
	for _, p := range []world.ChunkPos{upper, lower} {
		v := chunk.NewNeighborhood(p, chunks.lookup)
		_ = v.Edit(func() error {
			m.Merge(v, p)
			return nil
		})
	}
	c := chunks[upper]
	// Roof at y=63: regen 0 at y=62, 47 at y=15, 48 at y=14.
	if got := c.SunlightRegen(5, 15, 5); got != 47 {
		t.Errorf("regen at y=15 = %d, want 47", got)
	}
	if got := c.SunlightRegen(5, 14, 5); got != 48 {
		t.Errorf("regen at y=14 = %d, want 48", got)
	}
	// Sideways sunlight from the open columns next to the roof reaches under it.
	if got := c.Sunlight(5, 40, 5); got != 14 {
		t.Errorf("sunlight under roof = %d, want 14", got)
	}
	if got := chunks[lower].SunlightRegen(5, world.SizeY-1, 5); got != 63 {
		t.Errorf("lower regen capped = %d, want 63", got)
	}
}

func TestMergeMonotonicAndBounded(t *testing.T) {
	f := newFactory(t)
	m := NewMerger(newBlocks(t), 20)
	rng := rand.New(rand.NewSource(7))
	ids := []uint16{block.Air, block.Air, block.Air, block.Stone, block.Glass, block.Torch, block.Lamp, block.Leaves}
	target := world.ChunkPos{}
	chunks := world27{}
	world.Around(target).Each(func(p world.ChunkPos) {
		if rng.Intn(4) == 0 && p != target {
			return
		}
		c := f.New(p)
		_ = c.Edit(func(e *chunk.Editor) error {
			for i := 0; i < 3000; i++ {
				e.SetBlock(rng.Intn(world.SizeX), rng.Intn(world.SizeY), rng.Intn(world.SizeZ), ids[rng.Intn(len(ids))])
			}
			m.Internal(e)
			return nil
		})
		chunks[p] = c
	})

	type snap struct{ light, sun, regen []uint8 }
	take := func(c *chunk.Chunk) snap {
		var s snap
		for y := 0; y < world.SizeY; y++ {
			for z := 0; z < world.SizeZ; z++ {
				for x := 0; x < world.SizeX; x++ {
					s.light = append(s.light, c.Light(x, y, z))
					s.sun = append(s.sun, c.Sunlight(x, y, z))
					s.regen = append(s.regen, c.SunlightRegen(x, y, z))
				}
			}
		}
		return s
	}
	before := map[world.ChunkPos]snap{}
	for p, c := range chunks {
		before[p] = take(c)
	}

	v := chunk.NewNeighborhood(target, chunks.lookup)
	_ = v.Edit(func() error {
		m.Merge(v, target)
		return nil
	})

	for p, c := range chunks {
		after := take(c)
		b := before[p]
		for i := range after.light {
			if after.light[i] < b.light[i] || after.sun[i] < b.sun[i] || after.regen[i] < b.regen[i] {
				t.Fatalf("chunk %v cell %d decreased", p, i)
			}
			if after.light[i] > 15 || after.sun[i] > 15 || after.regen[i] > 63 {
				t.Fatalf("chunk %v cell %d out of range: %d %d %d", p, i, after.light[i], after.sun[i], after.regen[i])
			}
		}
	}

	// A second merge over settled data changes nothing.
	var res Result
	_ = v.Edit(func() error {
		res = m.Merge(v, target)
		return nil
	})
	if res.Total() != 0 {
		t.Errorf("second Merge raised %+v, want nothing", res)
	}
}

func TestMergeRequiresBorrow(t *testing.T) {
	f := newFactory(t)
	m := NewMerger(newBlocks(t), skyHigh)
	chunks := world27{{}: f.New(world.ChunkPos{})}
	v := chunk.NewNeighborhood(world.ChunkPos{}, chunks.lookup)
	defer func() {
		if recover() == nil {
			t.Errorf("Merge outside Edit did not panic")
		}
	}()
	m.Merge(v, world.ChunkPos{})
}
