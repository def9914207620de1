// Package flatfs implements keyvalue.KeyValue with one file per key.
// File names are the hex encoding of the key. The first 2 characters of the name are used
// as a subdirectory, so no directory grows beyond a fraction of the keys.
package flatfs

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"rmi/datamodel/keyvalue"
)

var _ keyvalue.KeyValue = (*FlatFS)(nil)

// Keys shorter than one byte still need a shard.
const emptyShard = "__"

type FlatFS struct {
	basePath string
}

func Open(basePath string) (*FlatFS, error) {
	basePath = filepath.Clean(basePath)
	if err := ensureDir(basePath); err != nil {
		return nil, err
	}
	log.Infof("Opened FlatFS at %s", basePath)
	return &FlatFS{basePath: basePath}, nil
}

// ensureDir checks if a directory exists at the given path, and if not, creates it.
func ensureDir(path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(path, 0755)
		}
		return err
	}
	if !stat.IsDir() {
		return &os.PathError{Op: "ensureDir", Path: path, Err: os.ErrExist}
	}
	return nil
}

func (f *FlatFS) keyToPath(key keyvalue.Key) (dirPath string, filePath string) {
	name := hex.EncodeToString(key)
	shard := emptyShard
	if len(name) >= 2 {
		shard = name[:2]
	}
	dirPath = filepath.Join(f.basePath, shard)
	filePath = filepath.Join(dirPath, name+".val")
	return dirPath, filePath
}

func (f *FlatFS) Has(key keyvalue.Key) (bool, error) {
	_, filePath := f.keyToPath(key)
	stat, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !stat.IsDir(), nil
}

// Put writes to a temporary file and renames it, so readers never see half a value.
func (f *FlatFS) Put(key keyvalue.Key, value []byte) error {
	dirPath, filePath := f.keyToPath(key)
	if err := ensureDir(dirPath); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dirPath, ".put-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}

func (f *FlatFS) Get(key keyvalue.Key) ([]byte, error) {
	_, filePath := f.keyToPath(key)
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, keyvalue.ErrNotFound
	}
	return data, err
}

// Keys scans every shard. Entries that do not decode as keys are skipped with a warning.
func (f *FlatFS) Keys(prefix keyvalue.Key) ([]keyvalue.Key, error) {
	shards, err := os.ReadDir(f.basePath)
	if err != nil {
		return nil, err
	}

	var keys []keyvalue.Key
	for _, shard := range shards {
		if !shard.IsDir() {
			log.Warnf("Skipping non-directory entry in FlatFS base path: %s", filepath.Join(f.basePath, shard.Name()))
			continue
		}
		shardPath := filepath.Join(f.basePath, shard.Name())
		entries, err := os.ReadDir(shardPath)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name, ok := strings.CutSuffix(e.Name(), ".val")
			if e.IsDir() || !ok {
				continue
			}
			key, err := hex.DecodeString(name)
			if err != nil {
				log.Warnf("Skipping file %s in shard %s, not a valid key: %v", e.Name(), shardPath, err)
				continue
			}
			if bytes.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
	}

	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys, nil
}

func (f *FlatFS) Delete(key keyvalue.Key) error {
	_, filePath := f.keyToPath(key)
	err := os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FlatFS) Close() error {
	return nil
}
