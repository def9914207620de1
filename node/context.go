package node

import "context"

type activeKey struct{}

// FromContext returns the node whose dispatch is currently executing, so a handler can
// reach "the current peer" without it being threaded through every signature.
func FromContext(ctx context.Context) (*Node, bool) {
	stack := Active(ctx)
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// Active returns the stack of nodes dispatching on behalf of ctx, outermost first.
func Active(ctx context.Context) []*Node {
	stack, _ := ctx.Value(activeKey{}).([]*Node)
	return stack
}

// enter pushes n for the duration of one dispatch. The returned leave func must be
// deferred; nested dispatch always completes before the enclosing one resumes.
func (n *Node) enter(ctx context.Context) (context.Context, func()) {
	parent := Active(ctx)
	stack := make([]*Node, len(parent), len(parent)+1)
	copy(stack, parent)
	stack = append(stack, n)

	n.mu.Lock()
	n.depth++
	n.mu.Unlock()

	return context.WithValue(ctx, activeKey{}, stack), func() {
		n.mu.Lock()
		n.depth--
		n.mu.Unlock()
	}
}
