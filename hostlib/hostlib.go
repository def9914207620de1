// Package hostlib holds the modules a serving node offers its peers: small math and
// process helpers, and persistent key/value stores.
package hostlib

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"rmi/datamodel/keyvalue"
	"rmi/datastore/bolt"
	"rmi/datastore/flatfs"
	"rmi/datastore/leveldb"
	"rmi/symbols"
)

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendFlatFS  = "flatfs"
)

var ErrInvalidStoreName = errors.New("invalid store name")

type Options struct {
	StoreBackend string
	StorePath    string
}

type Host struct {
	opts Options

	mu     sync.Mutex
	stores map[string]*Store
}

func New(opts Options) *Host {
	if opts.StoreBackend == "" {
		opts.StoreBackend = BackendLevelDB
	}
	return &Host{opts: opts, stores: make(map[string]*Store)}
}

// Install registers the math, proc and kv modules. They load on first use.
func (h *Host) Install(r *symbols.Registry) {
	r.RegisterModule("math", func(r *symbols.Registry) error {
		r.MustRegister("math.add", func(a, b int64) int64 { return a + b })
		r.MustRegister("math.mul", func(a, b float64) float64 { return a * b })
		r.MustRegister("math.sqrt", func(x float64) (float64, error) {
			if x < 0 {
				return 0, fmt.Errorf("math.sqrt: negative argument %v", x)
			}
			return math.Sqrt(x), nil
		})
		r.MustRegister("math.sum", func(xs ...float64) float64 {
			var s float64
			for _, x := range xs {
				s += x
			}
			return s
		})
		return nil
	})
	r.RegisterModule("proc", func(r *symbols.Registry) error {
		r.MustRegister("proc.pid", os.Getpid)
		r.MustRegister("proc.hostname", os.Hostname)
		return nil
	})
	r.RegisterModule("kv", func(r *symbols.Registry) error {
		if h.opts.StorePath == "" {
			return errors.New("no store path configured")
		}
		r.MustRegister("kv.open", h.Open)
		r.MustRegister("kv.backend", h.opts.StoreBackend)
		return nil
	})
}

// Open returns the store called name, opening it on first use. Every caller gets the
// same *Store, so peers see one object per store.
func (h *Host) Open(name string) (*Store, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreName, name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.stores[name]; ok {
		return s, nil
	}

	if err := os.MkdirAll(h.opts.StorePath, 0755); err != nil {
		return nil, err
	}

	var (
		kv  keyvalue.KeyValue
		err error
	)
	path := filepath.Join(h.opts.StorePath, name)
	switch h.opts.StoreBackend {
	case BackendLevelDB:
		kv, err = leveldb.Open(path)
	case BackendBolt:
		kv, err = bolt.Open(path + ".bolt")
	case BackendFlatFS:
		kv, err = flatfs.Open(path + ".d")
	default:
		err = fmt.Errorf("unknown store backend %q", h.opts.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{name: name, kv: kv}
	h.stores[name] = s
	log.Infof("Opened %s store %s", h.opts.StoreBackend, name)
	return s, nil
}

// Close closes every store opened through h.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, s := range h.stores {
		if err := s.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store %s: %w", name, err))
		}
		delete(h.stores, name)
	}
	return errors.Join(errs...)
}
