package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/perbu/esxiops/agent"
	"github.com/perbu/esxiops/gateway"
	"github.com/perbu/esxiops/logging"
	"github.com/perbu/esxiops/plan"
	"github.com/perbu/esxiops/prompts"
	"github.com/perbu/esxiops/remote"
	"github.com/perbu/esxiops/repl"
	"github.com/perbu/esxiops/tools"
	"golang.org/x/term"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

//go:embed .version
var version string

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	debug := flag.Bool("debug", false, "Enable debug output")
	showCommands := flag.Bool("commands", false, "Print the host commands each tool issues and exit")
	flag.Parse()

	if *showCommands {
		repl.PrintMarkdown(os.Stdout, mustTopic("vim-cmd"))
		return
	}

	// Load .env file (optional, won't error if missing)
	if err := godotenv.Load(); err != nil && *debug {
		log.Printf("No .env file found, using environment variables")
	}

	configSet := false
	flag.Visit(func(f *flag.Flag) { configSet = configSet || f.Name == "config" })
	cfg, err := loadConfig(*configPath, configSet)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.applyEnv(os.Environ()); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger, closeLog := newLogger(interactive, level)
	defer closeLog()

	ctx := context.Background()

	geminiModel, err := gemini.NewModel(ctx, cfg.Gemini.Model, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Fatalf("Failed to create Gemini model: %v", err)
	}

	systemPrompt := prompts.System(cfg.Prompts.System, tools.GenerateToolDocs())
	planner := gateway.New(gateway.NewADKModel(geminiModel, true), cfg.gatewaySettings(systemPrompt), logger)

	runner, err := remote.NewSSHRunner(cfg.remoteSettings())
	if err != nil {
		log.Fatalf("Failed to set up SSH: %v", err)
	}

	dispatcher := agent.New(agent.Config{
		Planner:  planner,
		Resolver: plan.NewResolver(cfg.planDefaults()),
		Executor: tools.NewExecutor(runner, cfg.toolSettings(), logger.With("component", "executor")),
		Logger:   logger,
	})

	replInstance := repl.New(dispatcher, *debug)

	if !interactive {
		if *debug {
			fmt.Fprintf(os.Stderr, "Host: %s | Model: %s\n", cfg.remoteSettings().Addr(), cfg.Gemini.Model)
		}
		if err := replInstance.RunLines(ctx, os.Stdin, os.Stdout); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	replInstance.PrintWelcome(os.Stdout, strings.TrimSpace(version), cfg.Gemini.Model, cfg.remoteSettings().Addr(), len(tools.Catalog()))

	if err := replInstance.Run(ctx); err != nil {
		log.Fatalf("REPL error: %v", err)
	}
}

// newLogger writes to stderr, except under the full-screen UI where stderr
// output would corrupt the display; there it goes to ~/.esxiops/esxiops.log.
func newLogger(interactive bool, level slog.Level) (*slog.Logger, func()) {
	if !interactive {
		return logging.New(level), func() {}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return logging.NewNop(), func() {}
	}
	dir := filepath.Join(home, ".esxiops")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return logging.NewNop(), func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "esxiops.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return logging.NewNop(), func() {}
	}
	return logging.NewWithWriter(f, level), func() { _ = f.Close() }
}

func mustTopic(topic string) string {
	doc, err := prompts.Lookup(topic)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return doc
}
