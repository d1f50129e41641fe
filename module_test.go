package nativebridge

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Gaurav-Gosain/nativebridge/internal/handle"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

type hookModule struct {
	name    string
	rec     *recorder
	onLoop  bool
	initErr error
	created *Object
}

func (m *hookModule) Name() string { return m.name }

func (m *hookModule) Initialize(s *Session) error {
	m.onLoop = s.loop.OnLoop()
	m.rec.add(m.name + ".init")
	if m.initErr != nil {
		return m.initErr
	}
	obj, err := s.Create(context.Background())
	m.created = obj
	return err
}

func (m *hookModule) OnResume()  { m.rec.add(m.name + ".resume") }
func (m *hookModule) OnPause()   { m.rec.add(m.name + ".pause") }
func (m *hookModule) OnDestroy() { m.rec.add(m.name + ".destroy") }

// plainModule implements neither hook interface.
type plainModule struct{ inits int }

func (m *plainModule) Name() string               { return "plain" }
func (m *plainModule) Initialize(s *Session) error { m.inits++; return nil }

func TestModuleHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	a := &hookModule{name: "a", rec: rec}
	b := &hookModule{name: "b", rec: rec}
	p := &plainModule{}

	s, _ := openFake(t, WithModules(a, p, b))

	if !a.onLoop || !b.onLoop {
		t.Error("Initialize did not run on the affinity thread")
	}
	if p.inits != 1 {
		t.Errorf("plain module initialized %d times, want 1", p.inits)
	}
	if !a.created.Valid() {
		t.Error("object created during Initialize is not valid")
	}

	for range 2 {
		if err := s.Resume(ctx); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
	}
	if err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := s.Pause(ctx); err != nil {
		t.Fatalf("second Pause() error = %v", err)
	}
	if err := s.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := []string{
		"a.init", "b.init",
		"a.resume", "b.resume",
		"a.pause", "b.pause",
		"a.resume", "b.resume",
		"a.pause", "b.pause",
		"b.destroy", "a.destroy",
	}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("hooks ran as\n%v\nwant\n%v", got, want)
	}
	if got := s.Stats().Drained; got != 2 {
		t.Errorf("Stats().Drained = %d, want 2", got)
	}
}

func TestModuleInitFailure(t *testing.T) {
	rec := &recorder{}
	a := &hookModule{name: "a", rec: rec}
	b := &hookModule{name: "b", rec: rec, initErr: errors.New("no config")}
	f := newFakeForeign()

	_, err := Open(context.Background(), WithForeign(f.factory), WithModules(a, b))
	if !errors.Is(err, ErrForeignRuntime) {
		t.Fatalf("Open() error = %v, want ErrForeignRuntime", err)
	}

	// Only the module that initialized is destroyed.
	want := []string{"a.init", "b.init", "a.destroy"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("hooks ran as %v, want %v", got, want)
	}
	if !f.isClosed() {
		t.Error("foreign runtime not closed after failed Initialize")
	}
	if n := f.totalFrees(); n != 1 {
		t.Errorf("foreign free called %d times, want 1", n)
	}
}

// nestedModule calls Initialize again from its own Initialize.
type nestedModule struct{ err error }

func (m *nestedModule) Name() string { return "nested" }

func (m *nestedModule) Initialize(s *Session) error {
	m.err = s.Initialize(context.Background())
	return nil
}

func TestModuleNestedInitialize(t *testing.T) {
	ctx := context.Background()
	m := &nestedModule{}
	f := newFakeForeign()

	start := time.Now()
	s, err := Open(ctx, WithForeign(f.factory), withRegistry(handle.NewRegistry()),
		WithModules(m), WithInvokeTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if d := time.Since(start); d > time.Second {
		t.Errorf("Open() took %v", d)
	}
	if !errors.Is(m.err, ErrNotInitialized) {
		t.Errorf("nested Initialize() error = %v, want ErrNotInitialized", m.err)
	}
	if _, err := s.Run(ctx, func() (any, error) { return nil, s.Initialize(ctx) }); err != nil {
		t.Errorf("Initialize() on an active session from the affinity thread error = %v", err)
	}
}
