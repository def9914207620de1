// Package symbols resolves dotted names to Go values for a node.
//
// Hosts register values directly ("math.add") or register a module loader that
// populates a whole namespace the first time one of its names is asked for. Names not
// registered outright are resolved by walking methods, fields and map keys from the
// longest registered prefix: with a struct registered as "cfg", "cfg.Name" reads its
// Name field.
package symbols

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound  = errors.New("symbol not found")
	ErrDuplicate = errors.New("symbol already registered")
)

// Loader registers the symbols of one module.
type Loader func(r *Registry) error

type Registry struct {
	mu      sync.RWMutex
	symbols map[string]any
	loaders map[string]Loader
	loaded  map[string]error

	group singleflight.Group
}

func New() *Registry {
	return &Registry{
		symbols: make(map[string]any),
		loaders: make(map[string]Loader),
		loaded:  make(map[string]error),
	}
}

func (r *Registry) Register(name string, v any) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("invalid symbol name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.symbols[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.symbols[name] = v
	return nil
}

// MustRegister is Register for static tables; it panics on a bad or duplicate name.
func (r *Registry) MustRegister(name string, v any) {
	if err := r.Register(name, v); err != nil {
		panic(err)
	}
}

// RegisterModule installs a loader run on the first lookup under name.
func (r *Registry) RegisterModule(name string, load Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[name] = load
}

// Resolve implements node.Resolver.
func (r *Registry) Resolve(name string) (any, error) {
	if v, ok := r.lookup(name); ok {
		return v, nil
	}

	// Load every module along the dotted path, outermost first.
	for i := 0; i < len(name); i++ {
		if name[i] != '.' {
			continue
		}
		if err := r.load(name[:i]); err != nil {
			return nil, err
		}
	}
	if err := r.load(name); err != nil {
		return nil, err
	}
	if v, ok := r.lookup(name); ok {
		return v, nil
	}

	return r.walk(name)
}

func (r *Registry) lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.symbols[name]
	return v, ok
}

// load runs a module's loader once. Concurrent lookups from several connections wait
// for the same load.
func (r *Registry) load(module string) error {
	r.mu.RLock()
	fn, ok := r.loaders[module]
	err, done := r.loaded[module]
	r.mu.RUnlock()
	if !ok || done {
		return err
	}

	_, err, _ = r.group.Do(module, func() (any, error) {
		r.mu.RLock()
		err, done := r.loaded[module]
		r.mu.RUnlock()
		if done {
			return nil, err
		}

		log.Debugf("Loading module %s", module)
		err = fn(r)
		if err != nil {
			log.Errorf("Failed to load module %s: %v", module, err)
			err = fmt.Errorf("loading module %s: %w", module, err)
		}

		r.mu.Lock()
		r.loaded[module] = err
		r.mu.Unlock()
		return nil, err
	})
	return err
}

// walk resolves the remainder of name as attributes of its longest registered prefix.
func (r *Registry) walk(name string) (any, error) {
	parts := strings.Split(name, ".")
	for i := len(parts) - 1; i > 0; i-- {
		v, ok := r.lookup(strings.Join(parts[:i], "."))
		if !ok {
			continue
		}
		for _, attr := range parts[i:] {
			next, err := Attr(v, attr)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			v = next
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Names lists the registered symbols, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.symbols))
	for n := range r.symbols {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Modules lists the registered module loaders, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loaders))
	for n := range r.loaders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Attr returns the method, exported field or string map entry called name on v.
func Attr(v any, name string) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: attribute %s of nil", ErrNotFound, name)
	}
	if m := rv.MethodByName(name); m.IsValid() {
		return m.Interface(), nil
	}

	ind := reflect.Indirect(rv)
	switch ind.Kind() {
	case reflect.Struct:
		if sf, ok := ind.Type().FieldByName(name); ok && sf.IsExported() {
			return ind.FieldByIndex(sf.Index).Interface(), nil
		}
	case reflect.Map:
		if ind.Type().Key().Kind() == reflect.String {
			if e := ind.MapIndex(reflect.ValueOf(name).Convert(ind.Type().Key())); e.IsValid() {
				return e.Interface(), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %T has no attribute %s", ErrNotFound, v, name)
}
