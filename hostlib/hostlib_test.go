package hostlib

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"rmi/node"
	"rmi/symbols"
)

func serve(t *testing.T, opts Options) (*node.Node, *Host) {
	t.Helper()

	h := New(opts)
	reg := symbols.New()
	h.Install(reg)

	a, b := net.Pipe()
	client := node.NewConn(a, node.WithName("CLIENT"))
	server := node.NewConn(b, node.WithName("SERVER"), node.WithResolver(reg))

	var g errgroup.Group
	g.Go(func() error { return server.Serve(context.Background()) })
	t.Cleanup(func() {
		client.Close()
		if err := g.Wait(); err != nil {
			t.Errorf("server: %v", err)
		}
		if err := h.Close(); err != nil {
			t.Errorf("closing stores: %v", err)
		}
	})
	return client, h
}

func TestMath(t *testing.T) {
	client, _ := serve(t, Options{})
	ctx := context.Background()

	if v, err := client.CallFunction(ctx, "math.add", 7, 8); err != nil || v != int64(15) {
		t.Fatalf("math.add: expected 15, got %v (%v)", v, err)
	}
	if v, err := client.CallFunction(ctx, "math.sum", 1, 2.5, 3); err != nil || v != 6.5 {
		t.Fatalf("math.sum: expected 6.5, got %v (%v)", v, err)
	}
	var re node.RemoteError
	if _, err := client.CallFunction(ctx, "math.sqrt", -1); !errors.As(err, &re) {
		t.Fatalf("math.sqrt: expected a remote error, got %v", err)
	}
	if v, err := client.CallFunction(ctx, "proc.pid"); err != nil || v.(int64) <= 0 {
		t.Fatalf("proc.pid: unexpected %v (%v)", v, err)
	}
}

func TestKVWithoutPath(t *testing.T) {
	client, _ := serve(t, Options{})

	var re node.RemoteError
	if _, err := client.CallFunction(context.Background(), "kv.open", "x"); !errors.As(err, &re) {
		t.Fatalf("expected kv to be unavailable, got %v", err)
	}
}

func TestKV(t *testing.T) {
	for _, backend := range []string{BackendLevelDB, BackendBolt, BackendFlatFS} {
		t.Run(backend, func(t *testing.T) {
			client, h := serve(t, Options{StoreBackend: backend, StorePath: t.TempDir()})
			ctx := context.Background()

			v, err := client.CallFunction(ctx, "kv.open", "users")
			if err != nil {
				t.Fatal(err)
			}
			store, ok := v.(*node.Proxy)
			if !ok {
				t.Fatalf("expected a store proxy, got %T", v)
			}

			again, err := client.CallFunction(ctx, "kv.open", "users")
			if err != nil {
				t.Fatal(err)
			}
			if again != store {
				t.Fatal("opening the same store twice produced two proxies")
			}

			for k, val := range map[string]any{"u/alice": int64(30), "u/bob": "admin", "x": 1.5} {
				if _, err := store.Invoke(ctx, "put", k, val); err != nil {
					t.Fatalf("put %s: %v", k, err)
				}
			}

			if got, err := store.Invoke(ctx, "get", "u/alice"); err != nil || got != int64(30) {
				t.Fatalf("get: expected 30, got %v (%v)", got, err)
			}
			if got, err := store.Invoke(ctx, "get", "nobody"); err != nil || got != nil {
				t.Fatalf("get of a missing key: %v (%v)", got, err)
			}
			if n, err := store.Len(ctx); err != nil || n != 3 {
				t.Fatalf("len: expected 3, got %d (%v)", n, err)
			}

			keys, err := store.InvokeList(ctx, "keys", "u/")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]any{"u/alice", "u/bob"}, keys); diff != "" {
				t.Fatalf("keys mismatch (-want +got):\n%s", diff)
			}

			if _, err := store.Invoke(ctx, "delete", "x"); err != nil {
				t.Fatal(err)
			}
			if has, err := store.Invoke(ctx, "has", "x"); err != nil || has != false {
				t.Fatalf("has after delete: %v (%v)", has, err)
			}

			if _, err := h.Open("../escape"); !errors.Is(err, ErrInvalidStoreName) {
				t.Fatalf("expected ErrInvalidStoreName, got %v", err)
			}
		})
	}
}
