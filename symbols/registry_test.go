package symbols

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type settings struct {
	Name   string
	Limits map[string]int
}

func (s *settings) Describe() string {
	return "settings " + s.Name
}

func TestRegisterAndResolve(t *testing.T) {
	r := New()
	r.MustRegister("math.add", func(a, b int64) int64 { return a + b })

	v, err := r.Resolve("math.add")
	if err != nil {
		t.Fatal(err)
	}
	if add, ok := v.(func(a, b int64) int64); !ok || add(2, 3) != 5 {
		t.Fatalf("unexpected symbol %T", v)
	}

	if err := r.Register("math.add", nil); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	for _, bad := range []string{"", ".x", "x."} {
		if err := r.Register(bad, 1); err == nil {
			t.Errorf("%q: expected an invalid name error", bad)
		}
	}
	if _, err := r.Resolve("math.sub"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestModulesLoadOnce(t *testing.T) {
	r := New()
	var loads atomic.Int32
	r.RegisterModule("text", func(r *Registry) error {
		loads.Add(1)
		return r.Register("text.upper", func(s string) string { return s })
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve("text.upper"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Fatalf("module loaded %d times", n)
	}
	if diff := cmp.Diff([]string{"text"}, r.Modules()); diff != "" {
		t.Fatalf("modules mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"text.upper"}, r.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestModuleLoadFailureIsRemembered(t *testing.T) {
	r := New()
	var loads int
	r.RegisterModule("broken", func(*Registry) error {
		loads++
		return errors.New("no backend")
	})

	for i := 0; i < 2; i++ {
		if _, err := r.Resolve("broken.thing"); err == nil {
			t.Fatal("expected the load failure to surface")
		}
	}
	if loads != 1 {
		t.Fatalf("failed module loaded %d times", loads)
	}
}

func TestAttributeWalk(t *testing.T) {
	r := New()
	r.MustRegister("cfg", &settings{Name: "main", Limits: map[string]int{"depth": 4}})

	cases := map[string]any{
		"cfg.Name":         "main",
		"cfg.Limits.depth": 4,
	}
	for name, want := range cases {
		got, err := r.Resolve(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s: expected %v, got %v", name, want, got)
		}
	}

	v, err := r.Resolve("cfg.Describe")
	if err != nil {
		t.Fatal(err)
	}
	if s := v.(func() string)(); s != "settings main" {
		t.Fatalf("unexpected method result %q", s)
	}

	if _, err := r.Resolve("cfg.Missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
