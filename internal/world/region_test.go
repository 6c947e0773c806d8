package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestChunkOfNegative(t *testing.T) {
	tests := []struct {
		in    BlockPos
		chunk ChunkPos
		local BlockPos
	}{
		{BlockPos{0, 0, 0}, ChunkPos{0, 0, 0}, BlockPos{0, 0, 0}},
		{BlockPos{31, 63, 31}, ChunkPos{0, 0, 0}, BlockPos{31, 63, 31}},
		{BlockPos{32, 64, 32}, ChunkPos{1, 1, 1}, BlockPos{0, 0, 0}},
		{BlockPos{-1, -1, -1}, ChunkPos{-1, -1, -1}, BlockPos{31, 63, 31}},
		{BlockPos{-33, 0, 5}, ChunkPos{-2, 0, 0}, BlockPos{31, 0, 5}},
	}
	for _, tt := range tests {
		c, l := ChunkOf(tt.in)
		if c != tt.chunk || l != tt.local {
			t.Errorf("ChunkOf(%v) = %v %v, want %v %v", tt.in, c, l, tt.chunk, tt.local)
		}
	}
}

func TestChunkPosOf(t *testing.T) {
	got := ChunkPosOf(mgl64.Vec3{-0.5, 64, 33})
	want := ChunkPos{-1, 1, 1}
	if got != want {
		t.Errorf("ChunkPosOf = %v, want %v", got, want)
	}
}

func TestSideReverse(t *testing.T) {
	for _, s := range Sides {
		r := s.Reverse()
		if r.Reverse() != s {
			t.Errorf("%v.Reverse().Reverse() = %v", s, r.Reverse())
		}
		a, b := s.Offset(), r.Offset()
		if a.X+b.X != 0 || a.Y+b.Y != 0 || a.Z+b.Z != 0 {
			t.Errorf("%v and %v offsets do not cancel", s, r)
		}
	}
}

func TestSubtractCoversDifference(t *testing.T) {
	a := Box(ChunkPos{0, 0, 0}, Extent{3, 1, 3})
	cases := []Region{
		Box(ChunkPos{1, 0, 0}, Extent{3, 1, 3}),
		Box(ChunkPos{1, 1, -1}, Extent{3, 1, 3}),
		Box(ChunkPos{20, 0, 0}, Extent{3, 1, 3}),
		a,
	}
	for _, b := range cases {
		parts := b.Subtract(a)
		seen := make(map[ChunkPos]int)
		for _, p := range parts {
			p.Each(func(c ChunkPos) { seen[c]++ })
		}
		want := 0
		b.Each(func(c ChunkPos) {
			if a.Contains(c) {
				if seen[c] != 0 {
					t.Errorf("%v in both boxes but reported in difference", c)
				}
				return
			}
			want++
			if seen[c] != 1 {
				t.Errorf("%v covered %d times, want 1", c, seen[c])
			}
		})
		if len(seen) != want {
			t.Errorf("difference has %d positions, want %d", len(seen), want)
		}
	}
}

func TestSubtractSlabOnMove(t *testing.T) {
	before := Box(ChunkPos{0, 0, 0}, Extent{4, 2, 4})
	after := Box(ChunkPos{1, 0, 0}, Extent{4, 2, 4})
	parts := after.Subtract(before)
	if len(parts) != 1 {
		t.Fatalf("len(parts) = %d, want 1", len(parts))
	}
	if parts[0].Min.X != 5 || parts[0].Max.X != 5 {
		t.Errorf("slab = %v, want x=5", parts[0])
	}
	if parts[0].Volume() != 5*9 {
		t.Errorf("slab volume = %d, want %d", parts[0].Volume(), 5*9)
	}
}

func TestManhattanAndNeighbors(t *testing.T) {
	if d := Manhattan(ChunkPos{1, -2, 3}, ChunkPos{-1, 0, 0}); d != 7 {
		t.Errorf("Manhattan = %d, want 7", d)
	}
	n := Neighbors26(ChunkPos{})
	if len(n) != 26 {
		t.Fatalf("len(Neighbors26) = %d, want 26", len(n))
	}
	for _, p := range n {
		if p == (ChunkPos{}) {
			t.Errorf("Neighbors26 includes the center")
		}
	}
}

func TestClamp(t *testing.T) {
	if v := Clamp(20, 0, 15); v != 15 {
		t.Errorf("Clamp(20) = %d, want 15", v)
	}
	if v := Clamp(int8(-3), 0, 15); v != 0 {
		t.Errorf("Clamp(-3) = %d, want 0", v)
	}
}
