package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/freeeve/chunkworld/internal/voxel"
	"github.com/freeeve/chunkworld/internal/world"
)

// Record layout (big-endian):
//   - magic "CWCK", version (1 byte)
//   - position: x, y, z (int32 each)
//   - state (1 byte)
//   - channel count (uint16)
//   - per channel: name length (1 byte), name, array length (uint32), voxel.Encode bytes
//   - xxhash64 of everything above (8 bytes)

var recordMagic = []byte("CWCK")

const recordVersion = 1

// Marshal encodes c. The caller must hold c's borrow or otherwise guarantee
// no concurrent writer.
func Marshal(c *Chunk) []byte {
	names := c.Channels()
	buf := make([]byte, 0, 64+c.EstimatedMemoryBytes())
	buf = append(buf, recordMagic...)
	buf = append(buf, recordVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(c.pos.X))
	buf = binary.BigEndian.AppendUint32(buf, uint32(c.pos.Y))
	buf = binary.BigEndian.AppendUint32(buf, uint32(c.pos.Z))
	buf = append(buf, byte(c.State()))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(names)))
	for _, name := range names {
		enc := voxel.Encode(c.channels[name])
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(enc)))
		buf = append(buf, enc...)
	}
	return binary.BigEndian.AppendUint64(buf, xxhash.Sum64(buf))
}

// Unmarshal decodes a record produced by Marshal.
//
// Records missing a light channel (older saves) get an empty array for it and
// their state is capped at InternalLightPending so lighting is recomputed.
// A missing block channel, a built-in channel narrower than its layout allows
// or holding values above its maximum, and any corruption return ErrMalformed.
func Unmarshal(data []byte, f *Factory) (*Chunk, error) {
	const fixed = 4 + 1 + 12 + 1 + 2
	if len(data) < fixed+8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	body, sum := data[:len(data)-8], binary.BigEndian.Uint64(data[len(data)-8:])
	if xxhash.Sum64(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrMalformed)
	}
	if !bytes.Equal(body[:4], recordMagic) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformed, body[:4])
	}
	if body[4] != recordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, body[4])
	}
	pos := world.ChunkPos{
		X: int32(binary.BigEndian.Uint32(body[5:9])),
		Y: int32(binary.BigEndian.Uint32(body[9:13])),
		Z: int32(binary.BigEndian.Uint32(body[13:17])),
	}
	state := State(body[17])
	if !state.Valid() {
		return nil, fmt.Errorf("%w: state %d", ErrMalformed, body[17])
	}
	count := int(binary.BigEndian.Uint16(body[18:20]))
	rest := body[fixed:]

	channels := make(map[string]voxel.Array, count)
	for i := 0; i < count; i++ {
		if len(rest) < 1 {
			return nil, fmt.Errorf("%w: channel %d truncated", ErrMalformed, i)
		}
		n := int(rest[0])
		if len(rest) < 1+n+4 {
			return nil, fmt.Errorf("%w: channel %d truncated", ErrMalformed, i)
		}
		name := string(rest[1 : 1+n])
		size := int(binary.BigEndian.Uint32(rest[1+n:]))
		rest = rest[1+n+4:]
		if len(rest) < size {
			return nil, fmt.Errorf("%w: channel %s truncated", ErrMalformed, name)
		}
		a, err := voxel.Decode(rest[:size])
		if err != nil {
			return nil, fmt.Errorf("%w: channel %s: %v", ErrMalformed, name, err)
		}
		if a.SizeX() != world.SizeX || a.SizeY() != world.SizeY || a.SizeZ() != world.SizeZ {
			return nil, fmt.Errorf("%w: channel %s is %dx%dx%d", ErrMalformed, name, a.SizeX(), a.SizeY(), a.SizeZ())
		}
		if err := checkLimits(name, a); err != nil {
			return nil, err
		}
		channels[name] = a
		rest = rest[size:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	if _, ok := channels[ChannelBlock]; !ok {
		return nil, fmt.Errorf("%w: no block channel", ErrMalformed)
	}

	for _, spec := range f.channels {
		if _, ok := channels[spec.name]; ok {
			continue
		}
		channels[spec.name] = f.newArray(spec)
		switch spec.name {
		case ChannelSunlight, ChannelLight, ChannelSunlightRegen:
			state = min(state, InternalLightPending)
		}
	}

	c := &Chunk{pos: pos, channels: channels}
	c.bindBuiltins()
	c.state.Store(uint32(state))
	c.dirty.Store(true)
	return c, nil
}

// checkLimits rejects a decoded built-in channel that is too narrow or holds
// an out-of-range value. Extra channels are not checked.
func checkLimits(name string, a voxel.Array) error {
	lim, ok := builtinLimits[name]
	if !ok {
		return nil
	}
	if a.Bits() < lim.minBits {
		return fmt.Errorf("%w: channel %s is %d bits, need %d", ErrMalformed, name, a.Bits(), lim.minBits)
	}
	if lim.max == 0 || 1<<a.Bits()-1 <= lim.max {
		return nil
	}
	for y := 0; y < a.SizeY(); y++ {
		for z := 0; z < a.SizeZ(); z++ {
			for x := 0; x < a.SizeX(); x++ {
				if v := a.Get(x, y, z); v > lim.max {
					return fmt.Errorf("%w: channel %s holds %d at (%d,%d,%d), max %d", ErrMalformed, name, v, x, y, z, lim.max)
				}
			}
		}
	}
	return nil
}
