package store

import (
	"errors"

	"github.com/df-mc/goleveldb/leveldb"
)

// leveldbBackend stores records in a LevelDB directory. The packed key keeps
// iteration in position order.
type leveldbBackend struct {
	db *leveldb.DB
}

func openLevelDB(dir string) (*leveldbBackend, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &leveldbBackend{db: db}, nil
}

func (l *leveldbBackend) name() string { return BackendLevelDB }

func (l *leveldbBackend) get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (l *leveldbBackend) put(key, val []byte) error { return l.db.Put(key, val, nil) }

func (l *leveldbBackend) has(key []byte) (bool, error) { return l.db.Has(key, nil) }

func (l *leveldbBackend) delete(key []byte) error { return l.db.Delete(key, nil) }

func (l *leveldbBackend) forEach(fn func(key, val []byte) error) error {
	it := l.db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func (l *leveldbBackend) purge() error {
	it := l.db.NewIterator(nil, nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	return l.db.Write(batch, nil)
}

func (l *leveldbBackend) close() error { return l.db.Close() }
