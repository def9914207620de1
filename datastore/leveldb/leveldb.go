// Package leveldb implements keyvalue.KeyValue on top of goleveldb.
package leveldb

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"

	"rmi/datamodel/keyvalue"
)

var _ keyvalue.KeyValue = (*Store)(nil)

type Store struct {
	path string
	mu   sync.Mutex
	db   *leveldb.DB
}

func initLevelDb(path string) (*leveldb.DB, error) {
	opts := &opt.Options{
		Compression: opt.NoCompression,
	}

	// Open or create the new DB
	db, err := leveldb.OpenFile(path, opts)
	if lerrors.IsCorrupted(err) {
		log.Warnf("LevelDB at %s is corrupted, recovering", path)
		db, err = leveldb.RecoverFile(path, nil)
	}

	if err != nil {
		return nil, err
	}

	log.Infof("Opened LevelDB at %s", path)

	return db, nil
}

func Open(path string) (*Store, error) {
	db, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, db: db}, nil
}

func (l *Store) Has(key keyvalue.Key) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Has(key, nil)
}

func (l *Store) Put(key keyvalue.Key, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Put(key, value, nil)
}

func (l *Store) Get(key keyvalue.Key) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, keyvalue.ErrNotFound
	}
	return raw, err
}

// Keys lists keys starting with prefix in byte order.
func (l *Store) Keys(prefix keyvalue.Key) ([]keyvalue.Key, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var keys []keyvalue.Key
	for iter.Next() {
		// The iterator reuses its buffer
		k := make(keyvalue.Key, len(iter.Key()))
		copy(k, iter.Key())
		keys = append(keys, k)
	}
	return keys, iter.Error()
}

func (l *Store) Delete(key keyvalue.Key) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Delete(key, nil)
}

func (l *Store) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	log.Debugf("Closing LevelDB at %s", l.path)
	return l.db.Close()
}
