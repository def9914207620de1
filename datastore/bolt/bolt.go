// Package bolt implements keyvalue.KeyValue on top of a single bbolt bucket.
package bolt

import (
	"bytes"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"rmi/datamodel/keyvalue"
)

const bucketName = "rmi"

var _ keyvalue.KeyValue = (*Store)(nil)

type Store struct {
	path string
	db   *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Infof("Opened Bolt database at %s", path)
	return &Store{path: path, db: db}, nil
}

func (s *Store) Has(key keyvalue.Key) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(bucketName)).Get(key) != nil
		return nil
	})
	return found, err
}

func (s *Store) Put(key keyvalue.Key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(key, value)
	})
}

func (s *Store) Get(key keyvalue.Key) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get(key)
		if v == nil {
			return keyvalue.ErrNotFound
		}
		// Only valid for the life of the transaction
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

func (s *Store) Keys(prefix keyvalue.Key) ([]keyvalue.Key, error) {
	var keys []keyvalue.Key
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append(keyvalue.Key(nil), k...))
		}
		return nil
	})
	return keys, err
}

func (s *Store) Delete(key keyvalue.Key) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(key)
	})
}

func (s *Store) Close() error {
	log.Debugf("Closing Bolt database at %s", s.path)
	return s.db.Close()
}
