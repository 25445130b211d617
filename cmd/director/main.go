// ABOUTME: Entry point for the agentic director coordinator
// ABOUTME: Serves agent channels and processes free-form requests from stdin

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/agentic-director/internal/agent"
	"github.com/2389/agentic-director/internal/analyzer"
	"github.com/2389/agentic-director/internal/config"
	"github.com/2389/agentic-director/internal/director"
	"github.com/2389/agentic-director/internal/engine"
	"github.com/2389/agentic-director/internal/mcp"
	"github.com/2389/agentic-director/internal/transport"
	"github.com/2389/agentic-director/internal/workflow"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                          _   _
   __ _  __ _  ___ _ __ | |_(_) ___
  / _' |/ _' |/ _ \ '_ \| __| |/ __|
 | (_| | (_| |  __/ | | | |_| | (__
  \__,_|\__, |\___|_| |_|\__|_|\___|  director
        |___/
`

// getConfigPath returns the path to the director config file.
// Priority: AGENTIC_CONFIG env var > XDG_CONFIG_HOME/agentic/director.yaml > ~/.config/agentic/director.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AGENTIC_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "director.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "agentic", "director.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: director <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the director and its agent channels")
		fmt.Println("  agents  List agent channels on this host")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "agents":
		err = runAgents()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// channelAgent is the director-side stand-in for an agent that runs in its
// own process and serves commands over its channel. The handle exists only
// for lifecycle bookkeeping; execution always goes over the wire.
type channelAgent struct{}

func (channelAgent) Initialize(ctx context.Context) error { return nil }

func (channelAgent) Execute(ctx context.Context, cmd *agent.Command) *agent.ExecutionResult {
	return agent.NewFailureResult(cmd.ID, mcp.CodeExecutionFailed, "agent runs out of process")
}

func (channelAgent) Shutdown(ctx context.Context) error { return nil }

func (channelAgent) Health(ctx context.Context) agent.HealthStatus {
	return agent.HealthStatus{Healthy: true, LastHeartbeat: time.Now().UTC()}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Sockets:  %s\n", cfg.Channels.SocketDir)
	if len(cfg.Workflows.Paths) > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Workflows: %d\n", len(cfg.Workflows.Paths))
	}
	fmt.Println()

	logger.Info("starting director",
		"config", configPath,
		"socket_dir", cfg.Channels.SocketDir,
	)

	registry := agent.NewRegistry(logger)
	eng := engine.New(engine.Options{
		Source:         "director",
		SocketDir:      cfg.Channels.SocketDir,
		HealthInterval: cfg.Health.SweepInterval,
		PingTimeout:    cfg.Health.PingTimeout,
		ConnectTimeout: cfg.Channels.ConnectTimeout,
		Logger:         logger,
	})
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("starting protocol engine: %w", err)
	}
	defer eng.Stop()

	workflows := workflow.NewEngine(eng, registry, logger)
	for _, path := range cfg.Workflows.Paths {
		def, err := workflow.LoadDefinition(path)
		if err != nil {
			return fmt.Errorf("loading workflow %s: %w", path, err)
		}
		if err := workflows.Register(def); err != nil {
			return err
		}
	}

	d, err := director.New(director.Options{
		Registry:       registry,
		Engine:         eng,
		Analyzer:       analyzer.New(nil, logger),
		Workflows:      workflows,
		MaxConcurrent:  cfg.Director.MaxConcurrentRequests,
		CommandTimeout: cfg.Director.CommandTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating director: %w", err)
	}

	// Open channels for the agents this host expects. The agent processes
	// dial in on their own schedule; requests route once they register.
	for _, desc := range expectedAgents() {
		if err := d.RegisterAgent(ctx, desc, channelAgent{}); err != nil {
			return fmt.Errorf("registering agent %s: %w", desc.ID, err)
		}
		logger.Info("agent channel open",
			"agent_id", desc.ID,
			"channel", transport.ChannelName(desc.ID),
		)
	}
	defer func() {
		for _, desc := range expectedAgents() {
			_ = d.UnregisterAgent(context.Background(), desc.ID)
		}
	}()

	return requestLoop(ctx, d)
}

// expectedAgents is the static roster of agent channels this host serves.
func expectedAgents() []*agent.Descriptor {
	return []*agent.Descriptor{
		{
			ID:      "fs-1",
			Name:    "Filesystem Agent",
			Version: version,
			Capabilities: []agent.Capability{
				{Name: "read_file", Description: "Read a file's contents"},
				{Name: "write_file", Description: "Write content to a file"},
				{Name: "list_dir", Description: "List a directory"},
			},
		},
	}
}

// requestLoop reads one request per line from stdin and runs it through
// the director until EOF or shutdown.
func requestLoop(ctx context.Context, d *director.Director) error {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	fmt.Println("Type a request and press enter. Ctrl-D to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		resp, err := d.ProcessRequest(ctx, text)
		if err != nil {
			red.Printf("✗ %v\n", err)
			continue
		}

		if resp.Success {
			green.Print("✓ ")
		} else {
			red.Print("✗ ")
		}
		fmt.Print(resp.Message)
		if resp.ErrorCode != "" {
			gray.Printf(" [%s]", resp.ErrorCode)
		}
		gray.Printf(" (%s)\n", resp.Duration.Round(time.Millisecond))
	}
	return scanner.Err()
}

// runAgents lists the agent channels present in the configured socket
// directory. A channel being listed means the director is serving it, not
// that the agent process is connected.
func runAgents() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	entries, err := os.ReadDir(cfg.Channels.SocketDir)
	if err != nil {
		return fmt.Errorf("reading socket directory: %w", err)
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	found := 0
	for _, entry := range entries {
		id, ok := transport.AgentIDFromSocket(entry.Name())
		if !ok {
			continue
		}
		found++
		cyan.Printf("%s", id)
		gray.Printf("  %s\n", filepath.Join(cfg.Channels.SocketDir, entry.Name()))
	}

	if found == 0 {
		gray.Println("no agent channels (is the director running?)")
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
