// Package store keeps chunks that are not resident in memory.
//
// A Store encodes chunks with chunk.Marshal, compresses the record with zstd
// and writes it to one of three backends keyed by the packed chunk position:
//   - memory: a map, for tests and throwaway worlds
//   - sqlite: a single WAL-mode table (modernc.org/sqlite, no cgo)
//   - leveldb: a LevelDB directory
//
// NearCache is the in-memory side: the set of resident chunks, sharded by
// position hash. Insertion is first-writer-wins.
package store
