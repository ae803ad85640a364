package relay

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompose_Order(t *testing.T) {
	var steps []string
	m1 := func(c Context, next HandlerFunc) error {
		steps = append(steps, "m1-in")
		if err := next(c); err != nil {
			return err
		}
		steps = append(steps, "m1-out")
		return nil
	}
	m2 := func(c Context, next HandlerFunc) error {
		steps = append(steps, "m2-in")
		if err := next(c); err != nil {
			return err
		}
		steps = append(steps, "m2-out")
		return nil
	}
	mw := Compose(m1, m2)
	if mw == nil {
		t.Fatalf("Compose returned nil")
	}
	err := mw(nil, func(c Context) error {
		steps = append(steps, "end")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := strings.Join(steps, ","); got != "m1-in,m2-in,end,m2-out,m1-out" {
		t.Fatalf("order = %s", got)
	}

	// the composed function is reusable
	steps = nil
	if err = mw(nil, func(c Context) error { return nil }); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
}

func TestCompose_NextCalledMultipleTimes(t *testing.T) {
	bad := func(c Context, next HandlerFunc) error {
		if err := next(c); err != nil {
			return err
		}
		return next(c)
	}
	mw := Compose(bad, Explicitly)
	err := mw(nil, func(c Context) error { return nil })
	if !errors.Is(err, ErrNextCalledTwice) {
		t.Fatalf("expected ErrNextCalledTwice, got %v", err)
	}
}

func TestCompose_EdgeCases(t *testing.T) {
	if got := Compose(); got != nil {
		t.Fatalf("Compose() expected nil")
	}
	m := func(c Context, next HandlerFunc) error { return errors.New("x") }
	if Compose(m) == nil {
		t.Fatalf("Compose(single) should not be nil")
	}
}

type recordLayer struct {
	name  string
	steps *[]string
	stop  bool
}

func (l *recordLayer) Handle(c Context, next HandlerFunc, args ...string) error {
	*l.steps = append(*l.steps, l.name+"("+strings.Join(args, ",")+")")
	if l.stop {
		return c.String(http.StatusForbidden, "stopped")
	}
	err := next(c)
	*l.steps = append(*l.steps, l.name+"-out")
	return err
}

func newTestContext(method, target string) (*contextImpl, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return newContext(nil, nil, rec, httptest.NewRequest(method, target, nil)), rec
}

func TestRunPipeline_ShortCircuit(t *testing.T) {
	var steps []string
	c, rec := newTestContext(http.MethodGet, "/")
	layers := []Middleware{
		&recordLayer{name: "a", steps: &steps},
		&recordLayer{name: "b", steps: &steps, stop: true},
		&recordLayer{name: "c", steps: &steps},
	}
	refs := []Ref{ParseRef("a:1"), ParseRef("b"), ParseRef("c")}
	err := runPipeline(c, layers, refs, func(c Context) error {
		steps = append(steps, "action")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := strings.Join(steps, " "); got != "a(1) b() a-out" {
		t.Fatalf("steps = %s", got)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRunPipeline_DoubleNext(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")
	twice := MiddlewareFunc(func(c Context, next HandlerFunc) error {
		_ = next(c)
		return next(c)
	})
	calls := 0
	err := runPipeline(c, []Middleware{twice}, []Ref{{Name: "twice"}}, func(c Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrNextCalledTwice) {
		t.Fatalf("expected ErrNextCalledTwice, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("action ran %d times", calls)
	}
}

func TestRunPipeline_Empty(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")
	want := errors.New("boom")
	if err := runPipeline(c, nil, nil, func(Context) error { return want }); err != want {
		t.Fatalf("expected action error, got %v", err)
	}
}
