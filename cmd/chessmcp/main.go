// Command chessmcp runs the multi-agent chess MCP server: a JSON-RPC 2.0
// service exposing chess game sessions, legal-move/analysis tools, and
// opening/AI metadata over stdio and/or WebSocket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/chessmcp/internal/agentreg"
	"github.com/kadirpekel/chessmcp/internal/config"
	"github.com/kadirpekel/chessmcp/internal/engine"
	"github.com/kadirpekel/chessmcp/internal/engine/builtin"
	"github.com/kadirpekel/chessmcp/internal/logging"
	"github.com/kadirpekel/chessmcp/internal/mcpserver"
	"github.com/kadirpekel/chessmcp/internal/notify"
	"github.com/kadirpekel/chessmcp/internal/observability"
	"github.com/kadirpekel/chessmcp/internal/ratchet"
	"github.com/kadirpekel/chessmcp/internal/ratelimit"
	"github.com/kadirpekel/chessmcp/internal/session"
	"github.com/kadirpekel/chessmcp/internal/transport"
)

// CLI is the kong command tree: a single "serve" subcommand plus the
// global flags every subcommand shares.
type CLI struct {
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path; empty logs to stderr." default:""`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
	Config    string `help:"Path to a YAML config file; empty uses spec defaults." default:""`

	Serve ServeCmd `cmd:"" help:"Run the chess MCP server."`
}

// ServeCmd starts the configured transports and blocks until shutdown.
type ServeCmd struct{}

func (s *ServeCmd) Run(cli *CLI) error {
	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logging.OpenLogFile(cli.LogFile)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer cleanup()
		output = file
	}
	level, _ := logging.ParseLevel(cli.LogLevel)
	logging.Init(level, output, cli.LogFormat)
	log := logging.GetLogger()

	var cfg *config.Config
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	metrics, err := observability.New(observability.Config{Enabled: cfg.Metrics.Enabled, Namespace: cfg.Metrics.Namespace})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	engines := engine.NewRegistry()
	registerBuiltinEngines(engines)

	dispatcher := engine.NewDispatcher(metrics)
	defer dispatcher.Stop()

	notifyBus := notify.New()

	sessions := session.NewManager(session.Deps{
		Engines:             engines,
		Dispatcher:          dispatcher,
		Notifications:       notifyBus,
		MaxSessionsPerAgent: cfg.MCP.Concurrent.MaxSessionsPerAgent,
		MaxSessionsGlobal:   cfg.MCP.Concurrent.MaxTotalSessions,
	})

	tools := mcpserver.NewTools(mcpserver.Deps{Sessions: sessions, Engines: engines})
	resources := mcpserver.NewResources(mcpserver.Deps{Sessions: sessions, Engines: engines})

	limiter := ratelimit.New(map[ratelimit.Class]ratelimit.Rule{
		ratelimit.ClassBurst:   {Window: 10 * time.Second, Limit: cfg.MCP.RateLimit.BurstLimit},
		ratelimit.ClassMoves:   {Window: time.Minute, Limit: cfg.MCP.RateLimit.MovesPerMinute},
		ratelimit.ClassGeneral: {Window: time.Minute, Limit: cfg.MCP.RateLimit.RequestsPerMinute},
	})

	agents := agentreg.New(cfg.MCP.Concurrent.MaxAgents)
	ratchetSvc := ratchet.NewService()
	agents.OnExpire = func(agentID string) {
		sessions.EndAgentSessions(agentID)
		notifyBus.Unsubscribe(agentID)
		limiter.Reset(agentID)
		ratchetSvc.Remove(agentID)
		log.Info("agent expired", "agent", agentID)
	}

	router := mcpserver.NewRouter(tools, resources, limiter, agents, metrics, log, ratchetSvc, cfg.MCP.Encryption.Enabled)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go agents.Run(5*time.Minute, 30*time.Minute, ctx.Done())

	var wg errGroup

	if cfg.MCP.Transport == config.TransportStdio || cfg.MCP.Transport == config.TransportBoth {
		stdio := &transport.Stdio{
			Router: router, Agents: agents, Notify: notifyBus, Log: log,
			Reader: os.Stdin, Writer: os.Stdout,
		}
		wg.Go(func() error { return stdio.Serve(ctx) })
	}

	if cfg.MCP.Transport == config.TransportWebSocket || cfg.MCP.Transport == config.TransportBoth {
		ws := &transport.WebSocket{Router: router, Agents: agents, Notify: notifyBus, Log: log}
		mux := http.NewServeMux()
		mux.Handle("/", ws)
		if metrics != nil {
			mux.Handle("/metrics", metrics.Handler())
		}
		addr := fmt.Sprintf(":%d", cfg.MCP.WebSocket.Port)
		server := &http.Server{Addr: addr, Handler: mux}
		wg.Go(func() error {
			log.Info("websocket transport listening", "addr", addr)
			err := server.ListenAndServe()
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		})
		wg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return wg.Wait()
}

// registerBuiltinEngines binds the twelve recognized engine names to the
// dependency-free stand-ins in internal/engine/builtin, partitioned by the
// same class the dispatcher routes on. Production deployments replace
// these with real engine bridges satisfying engine.ChessEngine.
func registerBuiltinEngines(registry *engine.Registry) {
	for _, name := range engine.Names {
		var impl engine.ChessEngine
		switch engine.ClassOf(name) {
		case engine.ClassNeural:
			impl = builtin.NewShallowNegamax()
		case engine.ClassClassical:
			impl = builtin.NewGreedyCapture()
		default:
			impl = builtin.NewRandomMover()
		}
		_ = registry.Register(name, impl)
	}
}

// errGroup is a tiny stand-in for golang.org/x/sync/errgroup: run several
// goroutines and return the first non-nil error once they have all
// finished, without pulling in another module for a few lines of logic.
type errGroup struct {
	fns []func() error
}

func (g *errGroup) Go(fn func() error) { g.fns = append(g.fns, fn) }

func (g *errGroup) Wait() error {
	errs := make(chan error, len(g.fns))
	for _, fn := range g.fns {
		go func(fn func() error) { errs <- fn() }(fn)
	}
	var first error
	for range g.fns {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("chessmcp"),
		kong.Description("Multi-agent Model Context Protocol server for chess."),
	)
	if err := ctx.Run(&cli); err != nil {
		slog.Error("chessmcp exited with error", "error", err)
		os.Exit(1)
	}
}
