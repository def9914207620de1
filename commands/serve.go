package commands

import (
	"context"
	"errors"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rmi/config"
	"rmi/helper/timer"
	"rmi/net/transport"
	"rmi/node"
)

// RunServe accepts TCP connections on the configured address and serves each with its
// own node until ctx is cancelled.
func RunServe(ctx context.Context, cfg *config.Config) error {
	e, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer e.close()

	l, err := net.Listen("tcp", cfg.Network.Listen)
	if err != nil {
		return err
	}
	srv := transport.NewServer(l, e.opts...)
	log.Infof("Serving on %s", srv.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx)
	})
	g.Go(func() error {
		interval := &timer.Interval{
			Duration: time.Duration(cfg.Stats.Interval),
			Jitter:   time.Duration(cfg.Stats.Jitter),
		}
		return timer.RunWithTicker(ctx, "stats", interval, func(context.Context) error {
			for _, n := range srv.Nodes() {
				logStats(n)
			}
			return nil
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RunStdio serves a single peer over stdin and stdout. This is the child side of a
// spawned connection.
func RunStdio(ctx context.Context, cfg *config.Config) error {
	e, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer e.close()

	n := transport.Stdio(append(e.opts, node.WithName("STDIO"))...)
	defer n.Close()

	err = n.Serve(ctx)
	logStats(n)
	if err == nil || errors.Is(err, node.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
