package chunk

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/voxel"
	"github.com/freeeve/chunkworld/internal/world"
)

func newTestFactory(t *testing.T, layout Layout) *Factory {
	t.Helper()
	f, err := NewFactory(voxel.NewRegistry(), layout)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	return f
}

func TestNewFactoryValidates(t *testing.T) {
	reg := voxel.NewRegistry()
	bad := DefaultLayout()
	bad.Block = "dense-8bit"
	if _, err := NewFactory(reg, bad); err == nil {
		t.Errorf("8-bit block channel accepted")
	}
	bad = DefaultLayout()
	bad.SunlightRegen = "sparse-4bit"
	if _, err := NewFactory(reg, bad); err == nil {
		t.Errorf("4-bit regen channel accepted")
	}
	bad = DefaultLayout()
	bad.Light = "dense-5bit"
	if _, err := NewFactory(reg, bad); !errors.Is(err, voxel.ErrUnknownFactory) {
		t.Errorf("err = %v, want ErrUnknownFactory", err)
	}
	bad = DefaultLayout()
	bad.Extra = map[string]string{ChannelLight: "dense-8bit"}
	if _, err := NewFactory(reg, bad); err == nil {
		t.Errorf("extra channel shadowing light accepted")
	}
}

func TestEditorSetsAndMarksDirty(t *testing.T) {
	layout := DefaultLayout()
	layout.Extra = map[string]string{"humidity": "dense-4bit"}
	c := newTestFactory(t, layout).New(world.ChunkPos{X: 1})
	c.ClearDirty()

	err := c.Edit(func(e *Editor) error {
		e.SetBlock(1, 2, 3, block.Stone)
		e.SetLight(1, 2, 3, 15)
		e.SetSunlight(0, 0, 0, 7)
		e.SetSunlightRegen(0, 0, 0, 63)
		e.SetExtra("humidity", 4, 4, 4, 9)
		if !c.Locked() {
			t.Errorf("Locked() = false inside Edit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if c.Locked() {
		t.Errorf("Locked() = true after Edit")
	}
	if !c.Dirty() {
		t.Errorf("Dirty() = false after edits")
	}
	if got := c.Block(1, 2, 3); got != block.Stone {
		t.Errorf("Block = %d, want %d", got, block.Stone)
	}
	if got := c.Light(1, 2, 3); got != 15 {
		t.Errorf("Light = %d, want 15", got)
	}
	if got := c.SunlightRegen(0, 0, 0); got != 63 {
		t.Errorf("SunlightRegen = %d, want 63", got)
	}
	if got, ok := c.Extra("humidity", 4, 4, 4); !ok || got != 9 {
		t.Errorf("Extra = %d, %v, want 9", got, ok)
	}
}

func TestEditorRangeChecks(t *testing.T) {
	c := newTestFactory(t, DefaultLayout()).New(world.ChunkPos{})
	cases := map[string]func(e *Editor){
		"light 16":  func(e *Editor) { e.Set(ChannelLight, 0, 0, 0, 16) },
		"sun 16":    func(e *Editor) { e.Set(ChannelSunlight, 0, 0, 0, 16) },
		"regen 64":  func(e *Editor) { e.Set(ChannelSunlightRegen, 0, 0, 0, 64) },
		"oob":       func(e *Editor) { e.SetBlock(world.SizeX, 0, 0, 1) },
		"skip":      func(e *Editor) { e.AdvanceTo(LightPropagationPending) },
		"backwards": func(e *Editor) { e.AdvanceTo(AdjacencyPending) },
	}
	for name, fn := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: expected panic", name)
				}
			}()
			_ = c.Edit(func(e *Editor) error {
				fn(e)
				return nil
			})
		}()
		if c.Locked() {
			t.Fatalf("%s: borrow not released after panic", name)
		}
	}
}

func TestAdvanceForward(t *testing.T) {
	c := newTestFactory(t, DefaultLayout()).New(world.ChunkPos{})
	for s := InternalLightPending; s <= Complete; s++ {
		_ = c.Edit(func(e *Editor) error {
			e.AdvanceTo(s)
			return nil
		})
		if c.State() != s {
			t.Fatalf("State = %v, want %v", c.State(), s)
		}
	}
}

func TestTryEditSkipsBorrowed(t *testing.T) {
	c := newTestFactory(t, DefaultLayout()).New(world.ChunkPos{})
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = c.Edit(func(e *Editor) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	ran, err := c.TryEdit(func(e *Editor) error { return nil })
	if ran || err != nil {
		t.Errorf("TryEdit on borrowed chunk = %v, %v, want false, nil", ran, err)
	}
	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for c.Locked() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	ran, err = c.TryEdit(func(e *Editor) error { return nil })
	if !ran || err != nil {
		t.Errorf("TryEdit on free chunk = %v, %v, want true, nil", ran, err)
	}
}

func TestEditAllNoDeadlock(t *testing.T) {
	f := newTestFactory(t, DefaultLayout())
	a := f.New(world.ChunkPos{X: 0})
	b := f.New(world.ChunkPos{X: 1})
	c := f.New(world.ChunkPos{X: 2})
	var wg sync.WaitGroup
	orders := [][]*Chunk{{a, b, c}, {c, b, a}, {b, nil, a, c}}
	for i := 0; i < 50; i++ {
		for _, order := range orders {
			order := order
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = EditAll(order, func(eds []*Editor) error {
					for j, e := range eds {
						if (order[j] == nil) != (e == nil) {
							t.Errorf("editor %d misaligned", j)
						}
						if e != nil {
							e.SetLight(0, 0, 0, uint8(j))
						}
					}
					return nil
				})
			}()
		}
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("EditAll deadlocked")
	}
}

func TestChunkSetBlockDisposed(t *testing.T) {
	c := newTestFactory(t, DefaultLayout()).New(world.ChunkPos{})
	if _, err := c.SetBlock(0, 0, 0, block.Dirt); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	_ = c.Edit(func(e *Editor) error {
		e.Dispose()
		return nil
	})
	if _, err := c.SetBlock(0, 0, 0, block.Stone); !errors.Is(err, ErrDisposed) {
		t.Errorf("SetBlock after dispose err = %v, want ErrDisposed", err)
	}
}

func TestDeflateKeepsValues(t *testing.T) {
	c := newTestFactory(t, DefaultLayout()).New(world.ChunkPos{})
	_ = c.Edit(func(e *Editor) error {
		for z := 0; z < world.SizeZ; z++ {
			for x := 0; x < world.SizeX; x++ {
				for y := 0; y < 10; y++ {
					e.SetBlock(x, y, z, block.Stone)
				}
				e.SetSunlight(x, 40, z, 15)
			}
		}
		e.SetLight(5, 12, 5, 14)
		return nil
	})
	before := c.EstimatedMemoryBytes()
	var stats []DeflateStat
	_ = c.Edit(func(e *Editor) error {
		stats = e.Deflate()
		return nil
	})
	if len(stats) != 4 {
		t.Fatalf("len(stats) = %d, want 4", len(stats))
	}
	if after := c.EstimatedMemoryBytes(); after >= before {
		t.Errorf("memory %d -> %d, want smaller", before, after)
	}
	if c.Block(3, 9, 3) != block.Stone || c.Block(3, 10, 3) != block.Air {
		t.Errorf("block values changed by deflate")
	}
	if c.Sunlight(31, 40, 31) != 15 || c.Light(5, 12, 5) != 14 {
		t.Errorf("light values changed by deflate")
	}
}

func TestLodAndPlaceholder(t *testing.T) {
	c := newTestFactory(t, DefaultLayout()).New(world.ChunkPos{Y: 2})
	_ = c.Edit(func(e *Editor) error {
		e.SetBlock(0, 0, 0, block.Dirt)
		e.SetBlock(1, 0, 0, block.Dirt)
		e.SetBlock(0, 1, 0, block.Stone)
		e.SetLight(1, 1, 1, 12)
		return nil
	})
	lod := NewLod(c, 2)
	if got := lod.Block(1, 1, 1); got != block.Dirt {
		t.Errorf("lod Block = %d, want dirt", got)
	}
	if got := lod.Light(0, 0, 0); got != 12 {
		t.Errorf("lod Light = %d, want 12", got)
	}
	if _, err := lod.SetBlock(0, 0, 0, 1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("lod SetBlock err = %v, want ErrUnsupported", err)
	}
	var v Voxels = Placeholder{Pos: world.ChunkPos{X: 9}}
	if v.Block(1, 1, 1) != block.Air || v.Position().X != 9 {
		t.Errorf("placeholder not air")
	}
	if _, err := v.SetBlock(0, 0, 0, 1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("placeholder SetBlock err = %v, want ErrUnsupported", err)
	}
}

func TestViewAcrossChunks(t *testing.T) {
	f := newTestFactory(t, DefaultLayout())
	center := world.ChunkPos{X: 5, Y: 0, Z: -2}
	chunks := map[world.ChunkPos]*Chunk{
		center:             f.New(center),
		center.Add(1, 0, 0): f.New(center.Add(1, 0, 0)),
	}
	v := NewNeighborhood(center, func(p world.ChunkPos) *Chunk { return chunks[p] })
	if v.Complete() {
		t.Errorf("Complete() = true with 25 chunks missing")
	}
	if _, ok := v.Block(world.BlockPos{X: -1}); ok {
		t.Errorf("cell in missing chunk reported available")
	}
	east := world.BlockPos{X: world.SizeX, Y: 3, Z: 4}
	if v.Writable(east) {
		t.Errorf("Writable outside Edit")
	}
	err := v.Edit(func() error {
		v.SetValue(ChannelLight, east, 11)
		return nil
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got := chunks[center.Add(1, 0, 0)].Light(0, 3, 4); got != 11 {
		t.Errorf("neighbor Light = %d, want 11", got)
	}
	cp, local := v.Locate(east)
	if cp != center.Add(1, 0, 0) || local != (world.BlockPos{X: 0, Y: 3, Z: 4}) {
		t.Errorf("Locate = %v %v", cp, local)
	}
	if back := v.ToRelative(cp, local); back != east {
		t.Errorf("ToRelative = %v, want %v", back, east)
	}
}
