package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"

	"rmi/node"
)

// Dial connects to a server at the specified network address.
func Dial(ctx context.Context, network, address string, opts ...node.Option) (*node.Node, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	log.Debugf("transport.Dial: connected to %s", conn.RemoteAddr())
	return node.NewConn(conn, opts...), nil
}

// Stdio returns a node talking over this process's stdin and stdout, the child side of
// Spawn. Nothing else may write to stdout while it runs.
func Stdio(opts ...node.Option) *node.Node {
	return node.New(os.Stdin, os.Stdout, opts...)
}

// Child is a node whose peer is a spawned process.
type Child struct {
	*node.Node
	cmd *exec.Cmd
}

// Spawn starts name with args and talks to it over its stdin and stdout. The child's
// stderr is passed through.
func Spawn(ctx context.Context, name string, args []string, opts ...node.Option) (*Child, error) {
	return SpawnCmd(exec.CommandContext(ctx, name, args...), opts...)
}

// SpawnCmd is Spawn for a prepared command; Stdin and Stdout must be unset.
func SpawnCmd(cmd *exec.Cmd, opts ...node.Option) (*Child, error) {
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	log.Debugf("transport.Spawn: started %s (pid %d)", cmd.Path, cmd.Process.Pid)

	return &Child{Node: node.New(stdout, stdin, opts...), cmd: cmd}, nil
}

func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Close closes the child's stdin, which ends a child serving on Stdio, and waits for it
// to exit.
func (c *Child) Close() error {
	if err := c.Node.Close(); err != nil && !errors.Is(err, node.ErrClosed) {
		log.Warnf("transport.Spawn: closing pipes to %d: %v", c.Pid(), err)
	}
	return c.cmd.Wait()
}
