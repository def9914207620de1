// Package transport obtains the byte streams nodes run on: accepted and dialed TCP
// connections, a spawned child's stdin/stdout, or this process's own stdio.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"

	"rmi/node"
)

// Server runs one node per accepted connection. All nodes share the same options, so
// typically the same Resolver.
type Server struct {
	listener net.Listener
	opts     []node.Option

	mu    sync.Mutex
	nodes map[*node.Node]struct{}
}

func NewServer(listener net.Listener, opts ...node.Option) *Server {
	return &Server{
		listener: listener,
		opts:     opts,
		nodes:    make(map[*node.Node]struct{}),
	}
}

func (srv *Server) Addr() net.Addr {
	return srv.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener fails, then closes
// every open node and waits for them to finish.
func (srv *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the listener unblocks Accept
	go func() {
		<-ctx.Done()
		log.Infof("transport.Server: shutting down listener %s", srv.listener.Addr())
		if err := srv.listener.Close(); err != nil {
			log.Warnf("transport.Server: error closing listener %s: %v", srv.listener.Addr(), err)
		}
	}()

	var g errgroup.Group
	defer func() {
		cancel()
		srv.closeAll()
		g.Wait()
	}()

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				log.Warnf("transport.Server: accept error on %s: %v; retrying in %v", srv.listener.Addr(), err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			log.Errorf("transport.Server: accept error on %s: %v. Server stopping.", srv.listener.Addr(), err)
			return err
		}

		tempDelay = 0
		log.Infof("transport.Server: accepted connection from %s", conn.RemoteAddr())
		g.Go(func() error {
			srv.serveConn(ctx, conn)
			return nil
		})
	}
}

func (srv *Server) serveConn(ctx context.Context, conn net.Conn) {
	opts := append(append([]node.Option(nil), srv.opts...), node.WithName(conn.RemoteAddr().String()))
	n := node.NewConn(conn, opts...)

	srv.mu.Lock()
	srv.nodes[n] = struct{}{}
	srv.mu.Unlock()

	defer func() {
		srv.mu.Lock()
		delete(srv.nodes, n)
		srv.mu.Unlock()
		n.Close()
	}()

	err := n.Serve(ctx)
	switch {
	case err == nil:
		log.Infof("transport.Server: %s disconnected", conn.RemoteAddr())
	case errors.Is(err, context.Canceled), errors.Is(err, node.ErrClosed):
		log.Debugf("transport.Server: %s closed: %v", conn.RemoteAddr(), err)
	default:
		log.Errorf("transport.Server: connection %s failed: %v", conn.RemoteAddr(), err)
	}
}

// Nodes returns the nodes currently serving a connection.
func (srv *Server) Nodes() []*node.Node {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	nodes := make([]*node.Node, 0, len(srv.nodes))
	for n := range srv.nodes {
		nodes = append(nodes, n)
	}
	return nodes
}

func (srv *Server) closeAll() {
	for _, n := range srv.Nodes() {
		n.Close()
	}
}
