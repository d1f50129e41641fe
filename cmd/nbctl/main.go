// Command nbctl provides an interactive shell for driving layout nodes
// through a nativebridge session.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/Gaurav-Gosain/nativebridge"
)

const version = "0.1.0"

// Styles
var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	warningColor   = lipgloss.Color("#F59E0B")
	infoColor      = lipgloss.Color("#3B82F6")
	dimColor       = lipgloss.Color("#6B7280")

	logoStyle     = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	promptStyle   = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	errorMsgStyle = lipgloss.NewStyle().Foreground(errorColor)
	successStyle  = lipgloss.NewStyle().Foreground(secondaryColor)
	infoStyle     = lipgloss.NewStyle().Foreground(infoColor)
	dimStyle      = lipgloss.NewStyle().Foreground(dimColor)
	cmdStyle      = lipgloss.NewStyle().Foreground(warningColor)
	titleStyle    = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Underline(true)
	resultStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
)

// Syntax highlighter for JSON output.
var (
	jsonLexer   chroma.Lexer
	chromaStyle *chroma.Style
	formatter   chroma.Formatter
)

func initSyntaxHighlighter() {
	jsonLexer = lexers.Get("json")
	if jsonLexer == nil {
		jsonLexer = lexers.Fallback
	}
	jsonLexer = chroma.Coalesce(jsonLexer)
	chromaStyle = styles.Get("dracula")
	if chromaStyle == nil {
		chromaStyle = styles.Fallback
	}
	formatter = formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
}

func highlightJSON(code string) string {
	if jsonLexer == nil {
		return code
	}
	var buf bytes.Buffer
	iterator, err := jsonLexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	if err := formatter.Format(&buf, chromaStyle, iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// REPL state
type replState struct {
	sh         *shell
	rl         *readline.Instance
	showTiming bool
	execCount  int
	startTime  time.Time
}

func main() {
	os.Exit(run())
}

func run() int {
	script := flag.String("e", "", "run commands separated by ';' and exit")
	timeout := flag.Duration("timeout", nativebridge.DefaultInvokeTimeout, "invocation timeout")
	logLevel := flag.String("log", "", "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "show version")
	showHelp := flag.Bool("help", false, "show help")
	timing := flag.Bool("timing", false, "show execution time")
	watch := flag.Bool("watch", false, "show a live dashboard of session counters")
	flag.Parse()

	initSyntaxHighlighter()

	if *showVersion {
		printVersion()
		return 0
	}
	if *showHelp {
		printUsage()
		return 0
	}
	if *timeout <= 0 {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" -timeout must be positive")
		return 2
	}

	if *logLevel != "" {
		log, err := newLogger(*logLevel)
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" "+err.Error())
			return 2
		}
		defer log.Sync()
		nativebridge.SetLogger(log)
	}

	ctx := context.Background()
	s, err := nativebridge.Open(ctx, nativebridge.WithInvokeTimeout(*timeout))
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" failed to open session:", err)
		return 1
	}
	defer s.Close()

	state := &replState{
		sh:         newShell(s),
		showTiming: *timing,
		startTime:  time.Now(),
	}

	if *script != "" {
		for _, line := range strings.Split(*script, ";") {
			if !state.execAndPrint(ctx, line) {
				return 1
			}
		}
		return 0
	}

	if args := flag.Args(); len(args) > 0 {
		for _, filename := range args {
			if err := state.runFile(ctx, filename); err != nil {
				printError(err)
				return 1
			}
		}
		return 0
	}

	if *watch {
		if err := runWatch(state.sh); err != nil {
			printError(err)
			return 1
		}
		return 0
	}

	// Piped input is read as a script.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if err := state.runReader(ctx, "stdin", os.Stdin); err != nil {
			printError(err)
			return 1
		}
		return 0
	}

	state.runREPL(ctx)
	return 0
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func printVersion() {
	fmt.Println(logoStyle.Render("nbctl") + dimStyle.Render(" v"+version))
	fmt.Println(dimStyle.Render("Layout nodes over a WebAssembly bridge"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("Go %s, %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)))
}

type helpEntry struct{ cmd, desc string }

var nodeHelp = []helpEntry{
	{"new [name]", "Create a node"},
	{"set <n> <f> <v>", "Set a field"},
	{"get <n> [f]", "Read one field or all of them"},
	{"add <n> <f> <d>", "Add to a field"},
	{"align <n> <f> [a]", "Read or set an align field"},
	{"free <n>", "Release a node"},
	{"drop <n>", "Forget a node without releasing it"},
	{"nodes", "List nodes"},
	{"gc", "Run the collector and reclaim dropped nodes"},
	{"idle [ms]", "Wait until no invocation is pending"},
	{"stats", "Show session counters"},
	{"engine", "Show the engine's own node count and memory"},
	{"pause / resume", "Move the session to the background or foreground"},
}

var replHelp = []helpEntry{
	{".help", "Show this help message"},
	{".exit", "Exit the shell"},
	{".clear", "Clear the screen"},
	{".timing", "Toggle execution timing"},
	{".load <file>", "Run commands from a file"},
	{".info", "Show runtime information"},
}

func printHelp(entries []helpEntry) {
	for _, c := range entries {
		fmt.Printf("  %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-18s", c.cmd)), dimStyle.Render(c.desc))
	}
}

func printUsage() {
	fmt.Println()
	fmt.Println(titleStyle.Render("nbctl - nativebridge node shell"))
	fmt.Println()

	fmt.Println(logoStyle.Render("USAGE"))
	fmt.Println("  nbctl [options] [script...]")
	fmt.Println()

	fmt.Println(logoStyle.Render("OPTIONS"))
	fmt.Println("  " + cmdStyle.Render("-e <cmds>") + "      Run commands separated by ';' and exit")
	fmt.Println("  " + cmdStyle.Render("-timeout <d>") + "   Invocation timeout (default 5s)")
	fmt.Println("  " + cmdStyle.Render("-log <level>") + "   Log bridge activity to stderr")
	fmt.Println("  " + cmdStyle.Render("-watch") + "         Show a live dashboard")
	fmt.Println("  " + cmdStyle.Render("-timing") + "        Show execution time")
	fmt.Println("  " + cmdStyle.Render("-version") + "       Show version information")
	fmt.Println("  " + cmdStyle.Render("-help") + "          Show this help message")
	fmt.Println()

	fmt.Println(logoStyle.Render("COMMANDS"))
	printHelp(nodeHelp)
	fmt.Println()
	fmt.Println(logoStyle.Render("SHELL COMMANDS"))
	printHelp(replHelp)
	fmt.Println()
}

func (s *replState) runFile(ctx context.Context, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	defer f.Close()
	return s.runReader(ctx, filename, f)
}

// runReader runs one command per line. Blank lines and lines starting with
// '#' are skipped.
func (s *replState) runReader(ctx context.Context, name string, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out, err := s.exec(ctx, line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
		printOutput(line, out)
	}
	return sc.Err()
}

func (s *replState) exec(ctx context.Context, line string) (string, error) {
	s.execCount++
	start := time.Now()
	out, err := s.sh.exec(ctx, line)
	if s.showTiming {
		printTiming(time.Since(start))
	}
	return out, err
}

func (s *replState) runREPL(ctx context.Context) {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".nbctl_history")
	}

	completer := readline.NewPrefixCompleter()
	for _, item := range commands {
		completer.Children = append(completer.Children, readline.PcItem(item))
	}
	for _, item := range []string{".help", ".exit", ".clear", ".timing", ".load", ".info"} {
		completer.Children = append(completer.Children, readline.PcItem(item))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            promptStyle.Render("nb") + dimStyle.Render(" > "),
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" failed to initialize readline:", err)
		return
	}
	defer rl.Close()
	s.rl = rl

	printBanner()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Println()
				fmt.Println(dimStyle.Render("Goodbye!"))
				return
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "exit" || line == "quit" {
			fmt.Println(dimStyle.Render("Goodbye!"))
			return
		}
		if strings.HasPrefix(line, ".") {
			if !s.handleCommand(ctx, line) {
				return
			}
			continue
		}
		s.execAndPrint(ctx, line)
	}
}

func printBanner() {
	logo := `
   ┌┐┌┌┐
   │││├┴┐
   ┘└┘└─┘`

	fmt.Println(logoStyle.Render(logo))
	fmt.Println()
	fmt.Println(dimStyle.Render("  nativebridge node shell v" + version))
	fmt.Println(dimStyle.Render("  Type ") + cmdStyle.Render(".help") + dimStyle.Render(" for commands"))
	fmt.Println()
}

// handleCommand runs a shell command and reports whether to keep going.
func (s *replState) handleCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case ".help", ".h", ".?":
		fmt.Println()
		fmt.Println(titleStyle.Render("Commands"))
		fmt.Println()
		printHelp(nodeHelp)
		fmt.Println()
		printHelp(replHelp)
		fmt.Println()
	case ".exit", ".quit", ".q":
		fmt.Println(dimStyle.Render("Goodbye!"))
		return false
	case ".clear", ".cls":
		fmt.Print("\033[H\033[2J")
	case ".timing", ".time":
		s.showTiming = !s.showTiming
		if s.showTiming {
			fmt.Println(successStyle.Render("✓") + " Timing enabled")
		} else {
			fmt.Println(infoStyle.Render("○") + " Timing disabled")
		}
	case ".load", ".l":
		if len(args) == 0 {
			fmt.Println(errorStyle.Render("Usage:") + " .load <filename>")
			break
		}
		if err := s.runFile(ctx, args[0]); err != nil {
			printError(err)
		} else {
			fmt.Println(successStyle.Render("✓") + " Loaded successfully")
		}
	case ".info", ".i":
		s.cmdInfo()
	default:
		fmt.Println(errorStyle.Render("Unknown command:") + " " + cmd)
		fmt.Println(dimStyle.Render("Type .help for available commands"))
	}
	return true
}

func (s *replState) cmdInfo() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	st := s.sh.s.Stats()
	engineLive, engineMem := "unavailable", "unavailable"
	if es, err := s.sh.s.Engine(context.Background()); err == nil {
		engineLive = fmt.Sprintf("%d", es.Live)
		engineMem = fmt.Sprintf("%d KB", es.Memory/1024)
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Runtime Information"))
	fmt.Println()

	info := []struct{ label, value string }{
		{"Version", version},
		{"Engine", "WebAssembly node engine (wazero)"},
		{"Session", fmt.Sprintf("%d (%s)", s.sh.s.ID(), st.State)},
		{"Go Version", runtime.Version()},
		{"OS/Arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)},
		{"Go Heap", fmt.Sprintf("%.2f MB", float64(memStats.HeapAlloc)/1024/1024)},
		{"GC Runs", fmt.Sprintf("%d", memStats.NumGC)},
		{"Live Nodes", fmt.Sprintf("%d", st.Live)},
		{"Engine Nodes", engineLive},
		{"Engine Memory", engineMem},
		{"Commands", fmt.Sprintf("%d", s.execCount)},
		{"Uptime", time.Since(s.startTime).Round(time.Second).String()},
	}
	for _, i := range info {
		fmt.Printf("  %s  %s\n", dimStyle.Render(fmt.Sprintf("%-14s", i.label)), i.value)
	}
	fmt.Println()
}

// execAndPrint runs line and reports whether it succeeded.
func (s *replState) execAndPrint(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	out, err := s.exec(ctx, line)
	if err != nil {
		printError(err)
		return false
	}
	printOutput(line, out)
	return true
}

func printOutput(line, out string) {
	if out == "" {
		return
	}
	if strings.HasPrefix(line, "stats") || strings.HasPrefix(line, "engine") {
		fmt.Println(highlightJSON(out))
		return
	}
	fmt.Println(resultStyle.Render(out))
}

func printError(err error) {
	fmt.Println()
	fmt.Println(errorStyle.Render("Error"))
	fmt.Println(errorMsgStyle.Render(err.Error()))
	fmt.Println()
}

func printTiming(duration time.Duration) {
	var style lipgloss.Style
	switch {
	case duration < 10*time.Millisecond:
		style = successStyle
	case duration < 100*time.Millisecond:
		style = lipgloss.NewStyle().Foreground(warningColor)
	default:
		style = errorStyle
	}
	fmt.Println(style.Render(fmt.Sprintf("⏱  %v", duration)))
}
