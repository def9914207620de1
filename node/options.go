package node

import (
	"context"

	log "github.com/sirupsen/logrus"

	"rmi/net/wire"
)

// Resolver maps a dotted name to a callable or value. It is supplied by the host; the
// node never looks anything up on its own beyond its builtin entry points.
type Resolver interface {
	Resolve(name string) (any, error)
}

// Evaluator backs the rmi.eval entry point. Installing one is an explicit decision to
// let the peer run expressions in this process.
type Evaluator interface {
	Eval(ctx context.Context, expr string, args []any) (any, error)
}

type Option func(*Node)

// WithName labels the node in logs, e.g. CLIENT or SERVER.
func WithName(name string) Option {
	return func(n *Node) {
		n.name = name
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithSerializer selects the line format this node writes. Reading always detects the
// format of each incoming line.
func WithSerializer(s wire.Serializer) Option {
	return func(n *Node) {
		n.serializer = s
	}
}

func WithResolver(r Resolver) Option {
	return func(n *Node) {
		n.resolver = r
	}
}

func WithEvaluator(e Evaluator) Option {
	return func(n *Node) {
		n.evaluator = e
	}
}
