package node

import (
	"reflect"
	"runtime"
	"slices"
	"unsafe"
	"weak"

	"rmi/oid"
)

// exported is the owning handle for a sent object. The entry is the only thing keeping
// the export valid; it goes away when the peer reports the id destroyed.
type exported struct {
	value any
	key   identity
	keyed bool
}

// identity is what makes two sends "the same object". Pointer-shaped values are keyed by
// the address they hold, slices by their backing array and length. Struct and array
// values have no identity and are exported afresh each time.
type identity struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

func identityOf(v any) (identity, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Func:
		// reflect only exposes the code pointer, which every closure of one literal
		// shares. The interface data word points at the closure itself.
		word := (*[2]unsafe.Pointer)(unsafe.Pointer(&v))[1]
		return identity{typ: rv.Type(), ptr: uintptr(word)}, true
	case reflect.Slice:
		return identity{typ: rv.Type(), ptr: rv.Pointer(), n: rv.Len()}, true
	}
	return identity{}, false
}

func sameObject(a, b any) bool {
	ka, oka := identityOf(a)
	kb, okb := identityOf(b)
	return oka && okb && ka == kb
}

func shapeOf(v any) oid.Shape {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Func:
		return oid.ShapeCode
	case reflect.Map:
		return oid.ShapeHash
	case reflect.Slice, reflect.Array:
		return oid.ShapeArray
	case reflect.Chan:
		return oid.ShapeChan
	}
	return oid.ShapeObject
}

// export returns the id under which v is sent, minting one on first use.
func (n *Node) export(v any) oid.Oid {
	n.mu.Lock()
	defer n.mu.Unlock()

	key, keyed := identityOf(v)
	if keyed {
		if id, ok := n.sentIndex[key]; ok {
			return id
		}
	}

	n.seq++
	id := oid.New(shapeOf(v), reflect.TypeOf(v).String(), n.seq)
	n.sent[id] = &exported{value: v, key: key, keyed: keyed}
	if keyed {
		n.sentIndex[key] = id
	}
	return id
}

// ExportedID reports the id v is currently exported under, without exporting it.
func (n *Node) ExportedID(v any) (oid.Oid, bool) {
	key, keyed := identityOf(v)
	if !keyed {
		return "", false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	id, ok := n.sentIndex[key]
	return id, ok
}

func (n *Node) lookupSent(id oid.Oid) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.sent[id]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// releaseSent drops exports the peer no longer references. Unknown ids are a
// discrepancy, not an error: the same id may be reported twice.
func (n *Node) releaseSent(ids []oid.Oid) {
	if len(ids) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var missing []oid.Oid
	for _, id := range ids {
		e, ok := n.sent[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		delete(n.sent, id)
		if e.keyed && n.sentIndex[e.key] == id {
			delete(n.sentIndex, e.key)
		}
	}
	n.log.Debugf("peer released %d exported objects", len(ids)-len(missing))

	if len(missing) > 0 {
		n.discrepancies += uint64(len(missing))
		n.log.Warnf("peer released ids not found in the sent table: %v", missing)
	}
}

type collected struct {
	id oid.Oid
	wp weak.Pointer[Proxy]
}

// proxyFor returns the live proxy for a remote id, creating one if needed.
func (n *Node) proxyFor(id oid.Oid) *Proxy {
	n.mu.Lock()
	defer n.mu.Unlock()

	if wp, ok := n.received[id]; ok {
		if p := wp.Value(); p != nil {
			return p
		}
	}

	// The peer is sending the id again, so a release queued for it is stale.
	n.destroyed = slices.DeleteFunc(n.destroyed, func(d oid.Oid) bool { return d == id })

	p := &Proxy{node: n, id: id, shape: id.Shape()}
	wp := weak.Make(p)
	n.received[id] = wp
	runtime.AddCleanup(p, n.proxyCollected, collected{id: id, wp: wp})
	return p
}

// proxyCollected runs on the runtime's cleanup goroutine once a proxy is unreachable.
// The id rides along with the next message sent in either direction.
func (n *Node) proxyCollected(c collected) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if cur, ok := n.received[c.id]; ok && cur != c.wp {
		// A newer proxy already stands for this id; the peer's export is still in use.
		return
	}
	delete(n.received, c.id)
	if n.closed {
		return
	}
	n.destroyed = append(n.destroyed, c.id)
	n.log.Debugf("proxy for %s collected, release queued", c.id)
}

func (n *Node) drainDestroyed() []oid.Oid {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := n.destroyed
	n.destroyed = nil
	return ids
}

func (n *Node) requeueDestroyed(ids []oid.Oid) {
	if len(ids) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.destroyed = append(ids, n.destroyed...)
}

func (n *Node) hasReceived(id oid.Oid) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	wp, ok := n.received[id]
	return ok && wp.Value() != nil
}
