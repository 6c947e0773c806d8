package chunk

import (
	"fmt"
	"sort"

	"github.com/freeeve/chunkworld/internal/voxel"
)

// Editor is a borrowed write handle on one chunk. It is valid only inside the
// callback it was passed to; the borrow is released when the callback returns
// and any later use panics.
type Editor struct {
	c *Chunk
}

// Edit borrows c exclusively for the duration of fn.
func (c *Chunk) Edit(fn func(*Editor) error) error {
	c.mu.Lock()
	e := c.borrow()
	defer c.release(e)
	return fn(e)
}

// TryEdit borrows c only if no one else holds it. It reports whether fn ran.
func (c *Chunk) TryEdit(fn func(*Editor) error) (bool, error) {
	if !c.mu.TryLock() {
		return false, nil
	}
	e := c.borrow()
	defer c.release(e)
	return true, fn(e)
}

func (c *Chunk) borrow() *Editor {
	c.borrowed.Store(true)
	return &Editor{c: c}
}

func (c *Chunk) release(e *Editor) {
	e.c = nil
	c.borrowed.Store(false)
	c.mu.Unlock()
}

// EditAll borrows every non-nil chunk, locking in position order so that
// concurrent multi-chunk borrows cannot deadlock. The editors passed to fn are
// index-aligned with chunks; nil chunks get nil editors.
func EditAll(chunks []*Chunk, fn func([]*Editor) error) error {
	order := make([]int, 0, len(chunks))
	for i, c := range chunks {
		if c != nil {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(a, b int) bool {
		return chunks[order[a]].pos.Less(chunks[order[b]].pos)
	})
	editors := make([]*Editor, len(chunks))
	for _, i := range order {
		c := chunks[i]
		c.mu.Lock()
		editors[i] = c.borrow()
	}
	defer func() {
		for j := len(order) - 1; j >= 0; j-- {
			i := order[j]
			chunks[i].release(editors[i])
		}
	}()
	return fn(editors)
}

// Chunk returns the borrowed chunk.
func (e *Editor) Chunk() *Chunk { return e.c }

// Get reads a channel value.
func (e *Editor) Get(channel string, x, y, z int) int {
	return e.c.array(channel).Get(x, y, z)
}

// Set writes a channel value, enforcing the channel's range, and returns the previous value.
func (e *Editor) Set(channel string, x, y, z, v int) int {
	switch channel {
	case ChannelSunlight, ChannelLight:
		checkRange(channel, v, MaxLight)
	case ChannelSunlightRegen:
		checkRange(channel, v, MaxSunlightRegen)
	}
	prev := e.c.array(channel).Set(x, y, z, v)
	if prev != v {
		e.c.dirty.Store(true)
	}
	return prev
}

func (e *Editor) SetBlock(x, y, z int, id uint16) uint16 {
	return uint16(e.Set(ChannelBlock, x, y, z, int(id)))
}

func (e *Editor) SetSunlight(x, y, z int, v uint8) uint8 {
	return uint8(e.Set(ChannelSunlight, x, y, z, int(v)))
}

func (e *Editor) SetLight(x, y, z int, v uint8) uint8 {
	return uint8(e.Set(ChannelLight, x, y, z, int(v)))
}

func (e *Editor) SetSunlightRegen(x, y, z int, v uint8) uint8 {
	return uint8(e.Set(ChannelSunlightRegen, x, y, z, int(v)))
}

// SetExtra writes a named extra-data channel.
func (e *Editor) SetExtra(name string, x, y, z, v int) int {
	if isBuiltin(name) {
		panic(fmt.Sprintf("chunk: %q is not an extra channel", name))
	}
	return e.Set(name, x, y, z, v)
}

// AdvanceTo moves the chunk exactly one state forward. Skipping or going
// backwards panics.
func (e *Editor) AdvanceTo(s State) {
	cur := e.c.State()
	if s != cur+1 || !s.Valid() {
		panic(fmt.Sprintf("chunk: illegal transition %v -> %v at %v", cur, s, e.c.pos))
	}
	e.c.state.Store(uint32(s))
}

// SetReady records whether the chunk has been announced as ready.
func (e *Editor) SetReady(ready bool) { e.c.ready.Store(ready) }

// MarkDirty flags the chunk for re-meshing.
func (e *Editor) MarkDirty() { e.c.dirty.Store(true) }

// Dispose marks the chunk's resources as released. Disposed chunks are never
// reinserted into a cache.
func (e *Editor) Dispose() {
	e.c.disposed.Store(true)
	e.c.ready.Store(false)
}

// DeflateStat reports the effect of deflating one channel.
type DeflateStat struct {
	Channel string
	Before  int
	After   int
	From    voxel.Kind
	To      voxel.Kind
}

// Deflate re-encodes the named channels (all channels if none are given) into
// their smallest representation. Decoded values never change.
func (e *Editor) Deflate(channels ...string) []DeflateStat {
	if len(channels) == 0 {
		channels = e.c.Channels()
	}
	stats := make([]DeflateStat, 0, len(channels))
	for _, name := range channels {
		a := e.c.array(name)
		d := voxel.Deflate(a)
		stats = append(stats, DeflateStat{
			Channel: name,
			Before:  a.EstimatedMemoryBytes(),
			After:   d.EstimatedMemoryBytes(),
			From:    a.Kind(),
			To:      d.Kind(),
		})
		if d != a {
			e.c.channels[name] = d
		}
	}
	e.c.bindBuiltins()
	return stats
}

func checkRange(channel string, v, max int) {
	if v < 0 || v > max {
		panic(fmt.Sprintf("chunk: %s value %d outside [0,%d]", channel, v, max))
	}
}
