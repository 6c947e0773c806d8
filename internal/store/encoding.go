package store

import (
	"encoding/binary"
	"fmt"

	"github.com/freeeve/chunkworld/internal/world"
)

// Keys are 12 bytes: x, y, z as big-endian int32 with the sign bit flipped,
// so byte order matches ChunkPos.Less.
const keySize = 12

func encodeKey(p world.ChunkPos) []byte {
	buf := make([]byte, keySize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.X)^0x80000000)
	binary.BigEndian.PutUint32(buf[4:8], uint32(p.Y)^0x80000000)
	binary.BigEndian.PutUint32(buf[8:12], uint32(p.Z)^0x80000000)
	return buf
}

func decodeKey(key []byte) (world.ChunkPos, error) {
	if len(key) != keySize {
		return world.ChunkPos{}, fmt.Errorf("key has %d bytes, want %d", len(key), keySize)
	}
	return world.ChunkPos{
		X: int32(binary.BigEndian.Uint32(key[0:4]) ^ 0x80000000),
		Y: int32(binary.BigEndian.Uint32(key[4:8]) ^ 0x80000000),
		Z: int32(binary.BigEndian.Uint32(key[8:12]) ^ 0x80000000),
	}, nil
}

// Stored values carry a one-byte codec prefix.
const (
	codecRaw  byte = 0
	codecZstd byte = 1
)
