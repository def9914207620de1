// Package node implements one endpoint of an RMI connection.
//
// A Node owns a duplex byte stream and the identity tables for objects crossing it. The
// client side issues queries with Call; the serving side answers them with ServeOne.
// Either side may do both: while a Call waits for its result, queries arriving from the
// peer are dispatched in place, so a remote function can call back into objects this
// side passed to it.
//
// A Node runs on a single logical thread. At most one query is awaiting a result at any
// time, and Call must not be used from several goroutines at once.
package node

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"weak"

	log "github.com/sirupsen/logrus"

	"rmi/net/wire"
	"rmi/oid"
)

type CallKind int

const (
	CallFunction CallKind = iota
	CallClassMethod
	CallObjectMethod
	CallEval
	CallCoderef
	CallUse
	CallUseLib
)

func (k CallKind) String() string {
	switch k {
	case CallFunction:
		return "call_function"
	case CallClassMethod:
		return "call_class_method"
	case CallObjectMethod:
		return "call_object_method"
	case CallEval:
		return "call_eval"
	case CallCoderef:
		return "call_coderef"
	case CallUse:
		return "call_use"
	case CallUseLib:
		return "call_use_lib"
	}
	return fmt.Sprintf("call_kind(%d)", int(k))
}

// Arity hints sent with every query.
const (
	ArityScalar = 0 // one value back; several results come back as a list anyway
	ArityList   = 1 // results always packed into a []any
)

type Node struct {
	name       string
	logger     *log.Logger
	log        *log.Entry
	r          *bufio.Reader
	w          *bufio.Writer
	closers    []io.Closer
	serializer wire.Serializer
	resolver   Resolver
	evaluator  Evaluator

	mu               sync.Mutex // protects the tables and counters below
	seq              uint64
	sent             map[oid.Oid]*exported
	sentIndex        map[identity]oid.Oid
	received         map[oid.Oid]weak.Pointer[Proxy]
	destroyed        []oid.Oid
	discrepancies    uint64
	messagesSent     uint64
	messagesReceived uint64
	depth            int
	closed           bool
}

// Exchange describes one serviced query, for loops deciding whether to keep serving.
type Exchange struct {
	Closed   bool      // the peer went away; nothing else is set
	Method   string    // method name of the query
	Response wire.Kind // wire.Result or wire.Exception
	Value    any       // the result, or the exception text
}

// Stats is a snapshot of the identity tables and traffic counters.
type Stats struct {
	Sent             int
	Received         int
	PendingDestroyed int
	Discrepancies    uint64
	MessagesSent     uint64
	MessagesReceived uint64
	Depth            int
}

type message struct {
	kind wire.Kind
	data []any
}

// New creates a node reading from r and writing to w. Pass the same connection twice
// for sockets; pipes from a child process usually come as a separate pair. Either side
// is closed by Close if it implements io.Closer.
func New(r io.Reader, w io.Writer, opts ...Option) *Node {
	n := &Node{
		name:      "rmi",
		r:         bufio.NewReader(r),
		w:         bufio.NewWriter(w),
		sent:      make(map[oid.Oid]*exported),
		sentIndex: make(map[identity]oid.Oid),
		received:  make(map[oid.Oid]weak.Pointer[Proxy]),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.serializer == nil {
		n.serializer = wire.JSONLine{}
	}
	if n.logger == nil {
		n.logger = log.StandardLogger()
	}
	n.log = n.logger.WithField("node", n.name)

	if c, ok := r.(io.Closer); ok {
		n.closers = append(n.closers, c)
	}
	if c, ok := w.(io.Closer); ok && !sameObject(r, w) {
		n.closers = append(n.closers, c)
	}
	return n
}

// NewConn creates a node on a bidirectional connection.
func NewConn(rwc io.ReadWriteCloser, opts ...Option) *Node {
	return New(rwc, rwc, opts...)
}

func (n *Node) Name() string {
	return n.name
}

// Call sends one query and waits for its result, servicing any queries the peer sends
// in the meantime. It returns ErrClosed when the connection ends first, a RemoteError
// when the peer raised, and an ErrProtocol error on malformed traffic.
func (n *Node) Call(ctx context.Context, kind CallKind, target any, method string, params ...any) (any, error) {
	return n.CallArity(ctx, kind, ArityScalar, target, method, params...)
}

// CallArity is Call with an explicit arity hint.
func (n *Node) CallArity(ctx context.Context, kind CallKind, arity int, target any, method string, params ...any) (any, error) {
	// The target must outlive the send: a proxy collected mid-call would otherwise report
	// its id as destroyed in the very query that uses it.
	defer runtime.KeepAlive(target)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.isClosed() {
		return nil, ErrClosed
	}

	q, err := n.buildQuery(kind, arity, target, method, params)
	if err != nil {
		return nil, err
	}
	n.log.Debugf("calling %s %s on %v with %d params", kind, method, target, len(params))

	if err := n.send(wire.Query, q); err != nil {
		return nil, err
	}

	for {
		msg, err := n.receive()
		if err != nil {
			return nil, err
		}

		switch msg.kind {
		case wire.Result:
			if len(msg.data) != 1 {
				return nil, protocolError("result carries %d values", len(msg.data))
			}
			n.log.Debugf("%s %s returned %v", kind, method, msg.data[0])
			return msg.data[0], nil
		case wire.Close:
			return nil, ErrClosed
		case wire.Exception:
			text := exceptionText(msg.data)
			n.log.Debugf("%s %s raised: %s", kind, method, text)
			return nil, RemoteError(text)
		case wire.Query:
			// A counter-request, possibly a call on an object we sent. Answer it and
			// keep waiting for our own result.
			if _, err := n.process(ctx, msg.data); err != nil {
				return nil, err
			}
		default:
			return nil, protocolError("unexpected %s message while awaiting a result", msg.kind)
		}
	}
}

func (n *Node) buildQuery(kind CallKind, arity int, target any, method string, params []any) ([]any, error) {
	switch kind {
	case CallFunction:
		if target != nil {
			return nil, fmt.Errorf("%s: target must be nil, got %T", kind, target)
		}
	case CallClassMethod:
		if _, ok := target.(string); !ok {
			return nil, fmt.Errorf("%s: target must be a class name, got %T", kind, target)
		}
	case CallObjectMethod:
		if isNil(target) {
			return nil, fmt.Errorf("%s: target is nil", kind)
		}
	case CallEval:
		if method == "" {
			method = EvalEntryPoint
		}
		if len(params) == 0 {
			return nil, fmt.Errorf("%s: missing expression", kind)
		}
		if _, ok := params[0].(string); !ok {
			return nil, fmt.Errorf("%s: expression must be a string, got %T", kind, params[0])
		}
	case CallCoderef:
		p := proxyOf(target)
		if p == nil || p.node != n {
			return nil, fmt.Errorf("%s: target must be a proxy from this node, got %T", kind, target)
		}
		method = CoderefEntryPoint
		params = append([]any{string(p.id)}, params...)
		target = nil
	case CallUse, CallUseLib:
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, kind)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, kind)
	}

	q := make([]any, 0, 4+len(params))
	q = append(q, method, int64(arity), target, int64(len(params)))
	return append(q, params...), nil
}

// ServeOne reads exactly one message. A query is dispatched and answered; a close
// returns an Exchange with Closed set and no error.
func (n *Node) ServeOne(ctx context.Context) (*Exchange, error) {
	msg, err := n.receive()
	if err != nil {
		return nil, err
	}

	switch msg.kind {
	case wire.Query:
		return n.process(ctx, msg.data)
	case wire.Close:
		return &Exchange{Closed: true}, nil
	}
	return nil, protocolError("unexpected %s message while serving", msg.kind)
}

// Serve answers queries until the peer disconnects or ctx is cancelled.
func (n *Node) Serve(ctx context.Context) error {
	return n.ServeUntil(ctx, nil)
}

// ServeUntil answers queries until the peer disconnects, ctx is cancelled, or stop
// returns true for a serviced exchange.
func (n *Node) ServeUntil(ctx context.Context, stop func(*Exchange) bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ex, err := n.ServeOne(ctx)
		if err != nil {
			return err
		}
		if ex.Closed {
			n.log.Debugf("peer closed the connection")
			return nil
		}
		if stop != nil && stop(ex) {
			return nil
		}
	}
}

func (n *Node) send(kind wire.Kind, data []any) error {
	f, err := n.encode(kind, data)
	if err != nil {
		return err
	}

	line, err := n.serializer.Marshal(f)
	if err != nil {
		n.requeueDestroyed(f.DestroyedIDs)
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	n.log.Debugf("sending: %s", line)

	if _, err := n.w.Write(line); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if err := n.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if err := n.w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}

	n.mu.Lock()
	n.messagesSent++
	n.mu.Unlock()
	return nil
}

// receive reads the next message. Any read failure, including EOF, is reported as a
// close message rather than an error.
func (n *Node) receive() (*message, error) {
	for {
		line, err := n.r.ReadBytes('\n')
		if err != nil {
			if len(bytes.TrimSpace(line)) > 0 {
				n.log.Warnf("discarding partial message at end of stream: %q", line)
			}
			if errors.Is(err, io.EOF) {
				n.log.Debugf("connection closed")
			} else {
				n.log.Debugf("read failure, treating as close: %v", err)
			}
			return &message{kind: wire.Close}, nil
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		n.log.Debugf("got: %s", line)

		f, err := wire.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}

		n.mu.Lock()
		n.messagesReceived++
		n.mu.Unlock()

		data, err := n.decode(f)
		if err != nil {
			return nil, err
		}
		n.releaseSent(f.DestroyedIDs)

		return &message{kind: f.Kind, data: data}, nil
	}
}

// Close closes the underlying stream. A Call blocked on the same node returns ErrClosed.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.closed = true
	n.mu.Unlock()

	var firstErr error
	for _, c := range n.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *Node) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	// Entries whose proxy is gone but whose cleanup has not run yet are not counted.
	received := 0
	for _, wp := range n.received {
		if wp.Value() != nil {
			received++
		}
	}
	return Stats{
		Sent:             len(n.sent),
		Received:         received,
		PendingDestroyed: len(n.destroyed),
		Discrepancies:    n.discrepancies,
		MessagesSent:     n.messagesSent,
		MessagesReceived: n.messagesReceived,
		Depth:            n.depth,
	}
}

func exceptionText(data []any) string {
	if len(data) == 0 || data[0] == nil {
		return "rmi: remote exception without description"
	}
	if s, ok := data[0].(string); ok && s != "" {
		return s
	}
	return fmt.Sprint(data[0])
}
