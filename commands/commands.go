package commands

import (
	"os"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"

	"rmi/config"
	"rmi/eval/starlarkeval"
	"rmi/hostlib"
	"rmi/net/wire"
	"rmi/node"
	"rmi/symbols"
)

// SetupLogging applies the log section. Logs always go to stderr: the stdio command
// owns stdout for protocol traffic.
func SetupLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	if cfg.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return nil
	}
	fd := os.Stderr.Fd()
	log.SetFormatter(&log.TextFormatter{
		DisableColors: !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd),
		FullTimestamp: true,
	})
	return nil
}

// env holds what every node of the process shares.
type env struct {
	host *hostlib.Host
	opts []node.Option
}

func newEnv(cfg *config.Config) (*env, error) {
	serializer, err := wire.Lookup(cfg.Protocol.Serializer)
	if err != nil {
		return nil, err
	}

	host := hostlib.New(hostlib.Options{
		StoreBackend: cfg.Store.Backend,
		StorePath:    cfg.Store.Path,
	})
	registry := symbols.New()
	host.Install(registry)

	opts := []node.Option{
		node.WithSerializer(serializer),
		node.WithResolver(registry),
	}
	if cfg.Protocol.AllowEval {
		log.Warn("rmi.eval is enabled: peers may evaluate expressions in this process")
		opts = append(opts, node.WithEvaluator(starlarkeval.New(nil, cfg.Protocol.EvalSteps)))
	}
	return &env{host: host, opts: opts}, nil
}

func (e *env) close() {
	if err := e.host.Close(); err != nil {
		log.Errorf("closing stores: %v", err)
	}
}

func logStats(n *node.Node) {
	s := n.Stats()
	log.WithFields(log.Fields{
		"node":          n.Name(),
		"sent":          s.Sent,
		"received":      s.Received,
		"pending":       s.PendingDestroyed,
		"discrepancies": s.Discrepancies,
		"messages_out":  s.MessagesSent,
		"messages_in":   s.MessagesReceived,
	}).Info("node stats")
}
