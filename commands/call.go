package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	log "github.com/sirupsen/logrus"

	"rmi/config"
	"rmi/net/transport"
	"rmi/node"
)

// RunCall dials the configured server, calls the named function with args and writes
// the result to out as JSON. Each arg is parsed as JSON and falls back to a plain string.
func RunCall(ctx context.Context, cfg *config.Config, out io.Writer, name string, args []string) error {
	return withClient(ctx, cfg, out, func(n *node.Node) (any, error) {
		return n.CallFunction(ctx, name, parseArgs(args)...)
	})
}

// RunEval has the server evaluate expr. The server must allow it.
func RunEval(ctx context.Context, cfg *config.Config, out io.Writer, expr string, args []string) error {
	return withClient(ctx, cfg, out, func(n *node.Node) (any, error) {
		return n.CallEval(ctx, expr, parseArgs(args)...)
	})
}

func withClient(ctx context.Context, cfg *config.Config, out io.Writer, call func(*node.Node) (any, error)) error {
	e, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer e.close()

	n, err := transport.Dial(ctx, "tcp", cfg.Network.Dial, append(e.opts, node.WithName("CLIENT"))...)
	if err != nil {
		return err
	}
	defer n.Close()

	v, err := call(n)
	if err != nil {
		return err
	}
	log.Debugf("result: %v", v)

	data, err := json.Marshal(printable(v))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}

func parseArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = parseArg(a)
	}
	return out
}

func parseArg(s string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return fromJSON(v)
}

func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = fromJSON(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = fromJSON(x[k])
		}
	}
	return v
}

// printable replaces proxies with their ids so results can be written as JSON.
func printable(v any) any {
	switch x := v.(type) {
	case node.Remote:
		return fmt.Sprint(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = printable(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = printable(e)
		}
		return out
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Sprint(x)
		}
	}
	return v
}
