package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Gaurav-Gosain/nativebridge"
)

var errUsage = errors.New("usage")

// shell runs node commands against one session. It holds the only
// references to the nodes it creates, so "drop" makes a node unreachable.
type shell struct {
	s       *nativebridge.Session
	nodes   map[string]*nativebridge.Node
	created int
}

func newShell(s *nativebridge.Session) *shell {
	return &shell{s: s, nodes: make(map[string]*nativebridge.Node)}
}

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

// exec runs one command line and returns its output.
func (sh *shell) exec(ctx context.Context, line string) (string, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "new":
		return sh.cmdNew(ctx, args)
	case "set":
		return sh.cmdSet(ctx, args)
	case "get":
		return sh.cmdGet(ctx, args)
	case "add":
		return sh.cmdAdd(ctx, args)
	case "align":
		return sh.cmdAlign(ctx, args)
	case "free":
		return sh.cmdFree(ctx, args)
	case "drop":
		return sh.cmdDrop(args)
	case "nodes", "ls":
		return sh.cmdNodes(), nil
	case "gc":
		return sh.cmdGC(), nil
	case "idle":
		return sh.cmdIdle(args)
	case "stats":
		return toJSON(sh.s.Stats())
	case "engine":
		st, err := sh.s.Engine(ctx)
		if err != nil {
			return "", err
		}
		return toJSON(st)
	case "pause":
		return "paused", sh.s.Pause(ctx)
	case "resume":
		return "resumed", sh.s.Resume(ctx)
	}
	return "", fmt.Errorf("unknown command: %s", cmd)
}

func (sh *shell) node(name string) (*nativebridge.Node, error) {
	n, ok := sh.nodes[name]
	if !ok {
		return nil, fmt.Errorf("no node named %q", name)
	}
	return n, nil
}

func (sh *shell) cmdNew(ctx context.Context, args []string) (string, error) {
	var name string
	switch len(args) {
	case 0:
		sh.created++
		name = "n" + strconv.Itoa(sh.created)
	case 1:
		name = args[0]
	default:
		return "", usage("new [name]")
	}
	if _, ok := sh.nodes[name]; ok {
		return "", fmt.Errorf("node %q already exists", name)
	}

	n, err := nativebridge.NewNode(ctx, sh.s)
	if err != nil {
		return "", err
	}
	sh.nodes[name] = n
	return fmt.Sprintf("%s = node %s", name, n.Handle()), nil
}

func (sh *shell) cmdSet(ctx context.Context, args []string) (string, error) {
	if len(args) != 3 {
		return "", usage("set <node> <field> <value>")
	}
	n, f, err := sh.nodeField(args[0], args[1])
	if err != nil {
		return "", err
	}
	v, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid value %q: %w", args[2], err)
	}
	if err := n.Set(ctx, f, v); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s = %d", args[0], f, v), nil
}

func (sh *shell) cmdGet(ctx context.Context, args []string) (string, error) {
	switch len(args) {
	case 1:
		n, err := sh.node(args[0])
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for i, f := range nativebridge.Fields() {
			v, err := n.Get(ctx, f)
			if err != nil {
				return "", err
			}
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%-14s %d", f, v)
		}
		return b.String(), nil
	case 2:
		n, f, err := sh.nodeField(args[0], args[1])
		if err != nil {
			return "", err
		}
		v, err := n.Get(ctx, f)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(v, 10), nil
	}
	return "", usage("get <node> [field]")
}

func (sh *shell) cmdAdd(ctx context.Context, args []string) (string, error) {
	if len(args) != 3 {
		return "", usage("add <node> <field> <delta>")
	}
	n, f, err := sh.nodeField(args[0], args[1])
	if err != nil {
		return "", err
	}
	d, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid delta %q: %w", args[2], err)
	}
	v, err := n.Add(ctx, f, d)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}

func (sh *shell) cmdAlign(ctx context.Context, args []string) (string, error) {
	switch len(args) {
	case 2:
		n, f, err := sh.nodeField(args[0], args[1])
		if err != nil {
			return "", err
		}
		a, err := n.Align(ctx, f)
		if err != nil {
			return "", err
		}
		return a.String(), nil
	case 3:
		n, f, err := sh.nodeField(args[0], args[1])
		if err != nil {
			return "", err
		}
		a, err := nativebridge.ParseAlign(args[2])
		if err != nil {
			return "", err
		}
		if err := n.SetAlign(ctx, f, a); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.%s = %s", args[0], f, a), nil
	}
	return "", usage("align <node> <field> [value]")
}

func (sh *shell) cmdFree(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", usage("free <node>")
	}
	n, err := sh.node(args[0])
	if err != nil {
		return "", err
	}
	if err := n.Free(ctx); err != nil {
		return "", err
	}
	delete(sh.nodes, args[0])
	return "freed " + args[0], nil
}

func (sh *shell) cmdDrop(args []string) (string, error) {
	if len(args) != 1 {
		return "", usage("drop <node>")
	}
	if _, err := sh.node(args[0]); err != nil {
		return "", err
	}
	delete(sh.nodes, args[0])
	return "dropped " + args[0] + " (run gc to reclaim)", nil
}

func (sh *shell) cmdNodes() string {
	names := make([]string, 0, len(sh.nodes))
	for name := range sh.nodes {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-8s %s", name, sh.nodes[name].Handle())
	}
	return b.String()
}

func (sh *shell) cmdGC() string {
	before := sh.s.Stats().Reclaimed
	runtime.GC()
	runtime.GC()
	sh.s.WaitForIdle(time.Second)
	after := sh.s.Stats().Reclaimed
	return fmt.Sprintf("reclaimed %d node(s)", after-before)
}

func (sh *shell) cmdIdle(args []string) (string, error) {
	timeout := time.Duration(0)
	if len(args) == 1 {
		ms, err := strconv.Atoi(args[0])
		if err != nil || ms < 0 {
			return "", usage("idle [ms]")
		}
		timeout = time.Duration(ms) * time.Millisecond
	}
	if !sh.s.WaitForIdle(timeout) {
		return "", errors.New("session did not become idle")
	}
	return "idle", nil
}

func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (sh *shell) nodeField(node, field string) (*nativebridge.Node, nativebridge.Field, error) {
	n, err := sh.node(node)
	if err != nil {
		return nil, 0, err
	}
	f, err := nativebridge.ParseField(field)
	if err != nil {
		return nil, 0, err
	}
	return n, f, nil
}

// commands lists what exec understands, for completion.
var commands = []string{
	"new", "set", "get", "add", "align", "free", "drop", "nodes",
	"gc", "idle", "stats", "engine", "pause", "resume",
}
