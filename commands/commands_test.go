package commands

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"rmi/config"
	"rmi/net/transport"
	"rmi/node"
)

// serve starts a server configured by cfg and points cfg's dial address at it.
func serve(t *testing.T, cfg *config.Config) {
	t.Helper()
	e, err := newEnv(cfg)
	if err != nil {
		t.Fatal(err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := transport.NewServer(l, e.opts...)
	cfg.Network.Dial = srv.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error { return srv.Serve(ctx) })
	t.Cleanup(func() {
		cancel()
		if err := g.Wait(); !errors.Is(err, context.Canceled) {
			t.Errorf("server stopped with %v", err)
		}
		e.close()
	})
}

func TestRunCall(t *testing.T) {
	cfg := config.NewEmptyConfig("")
	serve(t, cfg)

	for _, serializer := range []string{"s1", "c1"} {
		cfg.Protocol.Serializer = serializer
		var out bytes.Buffer
		if err := RunCall(t.Context(), cfg, &out, "math.add", []string{"2", "3"}); err != nil {
			t.Fatalf("%s: %v", serializer, err)
		}
		if out.String() != "5\n" {
			t.Fatalf("%s: unexpected output %q", serializer, out.String())
		}
	}

	err := RunCall(t.Context(), cfg, &bytes.Buffer{}, "math.sqrt", []string{"-1"})
	var remote node.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected a RemoteError, got %v", err)
	}
}

func TestRunEval(t *testing.T) {
	cfg := config.NewEmptyConfig("")
	serve(t, cfg)
	err := RunEval(t.Context(), cfg, &bytes.Buffer{}, "1+1", nil)
	if err == nil {
		t.Fatal("eval succeeded on a server that does not allow it")
	}

	cfg = config.NewEmptyConfig("")
	cfg.Protocol.AllowEval = true
	serve(t, cfg)
	var out bytes.Buffer
	if err := RunEval(t.Context(), cfg, &out, "args[0] * 2", []string{"21"}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "42\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{"3", "2.5", "true", "null", `"q"`, "plain", "[1, 2]", `{"a": 1}`, "1 2"})
	want := []any{int64(3), 2.5, true, nil, "q", "plain", []any{int64(1), int64(2)}, map[string]any{"a": int64(1)}, "1 2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}
