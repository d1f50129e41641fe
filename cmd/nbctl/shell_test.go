package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Gaurav-Gosain/nativebridge"
)

func newTestShell(t *testing.T) *shell {
	t.Helper()
	s, err := nativebridge.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return newShell(s)
}

func TestShellCommands(t *testing.T) {
	ctx := context.Background()
	sh := newTestShell(t)

	tests := []struct {
		line string
		want string
	}{
		{"new", "n1 = node "},
		{"new box", "box = node "},
		{"set n1 width 120", "n1.width = 120"},
		{"add n1 width -20", "100"},
		{"get n1 width", "100"},
		{"align box align-items center", "box.align-items = center"},
		{"align box align-items", "center"},
		{"idle 1000", "idle"},
		{"free box", "freed box"},
	}
	for _, tt := range tests {
		got, err := sh.exec(ctx, tt.line)
		if err != nil {
			t.Fatalf("exec(%q) error = %v", tt.line, err)
		}
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("exec(%q) = %q, want prefix %q", tt.line, got, tt.want)
		}
	}

	out, _ := sh.exec(ctx, "nodes")
	if strings.Contains(out, "box") || !strings.Contains(out, "n1") {
		t.Errorf("nodes = %q", out)
	}
	out, _ = sh.exec(ctx, "get n1")
	if !strings.Contains(out, "width") || !strings.Contains(out, "margin") {
		t.Errorf("get n1 = %q", out)
	}
}

func TestShellErrors(t *testing.T) {
	ctx := context.Background()
	sh := newTestShell(t)
	sh.exec(ctx, "new a")

	tests := []string{
		"bogus",
		"get missing width",
		"set a depth 1",
		"set a width many",
		"align a width center",
		"align a align-self middle",
		"new a",
	}
	for _, line := range tests {
		if _, err := sh.exec(ctx, line); err == nil {
			t.Errorf("exec(%q) succeeded", line)
		}
	}

	if _, err := sh.exec(ctx, "set a"); !errors.Is(err, errUsage) {
		t.Errorf("exec(set a) error = %v, want usage", err)
	}
}

func TestShellStats(t *testing.T) {
	ctx := context.Background()
	sh := newTestShell(t)
	sh.exec(ctx, "new")
	sh.exec(ctx, "new")
	sh.exec(ctx, "free n2")

	out, err := sh.exec(ctx, "stats")
	if err != nil {
		t.Fatalf("exec(stats) error = %v", err)
	}
	var st nativebridge.Stats
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("stats is not JSON: %v", err)
	}
	if st.Created != 2 || st.Released != 1 || st.Live != 1 || st.State != "active" {
		t.Errorf("stats = %+v", st)
	}
}

func TestShellEngine(t *testing.T) {
	ctx := context.Background()
	sh := newTestShell(t)
	sh.exec(ctx, "new")
	sh.exec(ctx, "new")

	out, err := sh.exec(ctx, "engine")
	if err != nil {
		t.Fatalf("exec(engine) error = %v", err)
	}
	var es nativebridge.EngineStats
	if err := json.Unmarshal([]byte(out), &es); err != nil {
		t.Fatalf("engine is not JSON: %v", err)
	}
	if es.Live != 2 || es.Memory == 0 {
		t.Errorf("engine = %+v, want 2 live nodes", es)
	}
}
