package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBStore struct{ db *leveldb.DB }

var _ Store = (*LevelDBStore)(nil)

func NewLevelDB(path string) (*LevelDBStore, error) {
	p := filepath.Clean(path)
	db, err := leveldb.OpenFile(p, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Close() error { return s.db.Close() }

var prefixError = []byte("err:")

// Keys sort by time, so a prefix scan is chronological.
func keyError(rec ErrorRecord) []byte {
	return []byte(fmt.Sprintf("err:%020d:%s", rec.At.UnixNano(), rec.ID))
}
func keyIndex(id string) []byte { return []byte("eid:" + id) }

func (s *LevelDBStore) Append(rec ErrorRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	k := keyError(rec)
	batch := new(leveldb.Batch)
	batch.Put(k, b)
	batch.Put(keyIndex(rec.ID), k)
	return s.db.Write(batch, nil)
}

func (s *LevelDBStore) Get(id string) (ErrorRecord, error) {
	k, err := s.db.Get(keyIndex(id), nil)
	if err == leveldb.ErrNotFound {
		return ErrorRecord{}, ErrNotFound
	}
	if err != nil {
		return ErrorRecord{}, err
	}
	data, err := s.db.Get(k, nil)
	if err == leveldb.ErrNotFound {
		return ErrorRecord{}, ErrNotFound
	}
	if err != nil {
		return ErrorRecord{}, err
	}
	var rec ErrorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ErrorRecord{}, err
	}
	return rec, nil
}

func (s *LevelDBStore) Recent(limit int) ([]ErrorRecord, error) {
	it := s.db.NewIterator(util.BytesPrefix(prefixError), nil)
	defer it.Release()
	var out []ErrorRecord
	for ok := it.Last(); ok; ok = it.Prev() {
		var rec ErrorRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, it.Error()
}
