// Command analyst is the host: a chat interface that answers questions about
// the local transaction database by asking a model to plan SQL, running it
// through the analyst-server subprocess, and asking the model to explain the
// result.
//
// Usage:
//
//	analyst [flags]
//	OLLAMA_HOST=http://localhost:11434 analyst
//	GEMINI_API_KEY=gk-... analyst -provider gemini
//
// Flags:
//
//	-provider string  Provider: ollama, gemini (default: ollama; gemini is
//	                  auto-selected when only GEMINI_API_KEY is set)
//	-model string     Model ID (default: provider default)
//	-host string      Ollama host (default: $OLLAMA_HOST or localhost:11434)
//	-server string    Path to the analyst-server binary (default: next to
//	                  this executable)
//	-session string   Path to session file to resume
//	-q string         One-shot mode: answer this question and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/fwojciec/analyst"
	"github.com/fwojciec/analyst/bridge"
	bt "github.com/fwojciec/analyst/bubbletea"
	"github.com/fwojciec/analyst/gemini"
	analystjson "github.com/fwojciec/analyst/json"
	"github.com/fwojciec/analyst/ollama"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "analyst: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags.
	var (
		providerFlag = flag.String("provider", "", "Provider: ollama, gemini (auto-detected if omitted)")
		model        = flag.String("model", "", "Model ID (provider-specific)")
		host         = flag.String("host", "", "Ollama host (default: $OLLAMA_HOST or "+ollama.DefaultHost+")")
		serverPath   = flag.String("server", "", "Path to the analyst-server binary")
		sessionPath  = flag.String("session", "", "Path to session file to resume")
		question     = flag.String("q", "", "One-shot mode: answer this question and exit")
	)
	flag.Parse()

	// Optional .env next to the working directory; absence is fine.
	_ = godotenv.Load()

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Resolve provider. Env vars are read here and passed as values.
	providerName, provider, err := resolveProvider(ctx, *providerFlag, *model, *host,
		os.Getenv("OLLAMA_HOST"), os.Getenv("GEMINI_API_KEY"))
	if err != nil {
		return err
	}

	// Resolve tool server location and build the bridge. The bridge pins the
	// child's working directory to the server binary's directory so the
	// server finds its data store.
	sp, err := resolveServerPath(*serverPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.DiscardHandler)
	if *question != "" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	br := bridge.New(sp, bridge.WithLogger(logger))

	loop := analyst.NewLoop(provider, br, analyst.WithModel(*model))

	// Load or create session.
	session, err := loadOrCreateSession(*sessionPath)
	if err != nil {
		return err
	}

	if *question != "" {
		answer, err := loop.Run(ctx, &session, *question)
		if err != nil {
			return err
		}
		fmt.Println(answer)
		return saveSession(*sessionPath, session)
	}

	// Interactive mode: run the chat TUI.
	turn := func(ctx context.Context, s *analyst.Session, q string, onEvent func(analyst.Event)) (string, error) {
		return loop.Run(ctx, s, q, analyst.WithEventHandler(onEvent))
	}
	config := bt.Config{ProviderName: providerName, ModelName: *model}
	tuiModel := bt.New(turn, &session, analyst.DefaultTheme(), config)

	if err := bt.Run(ctx, tuiModel); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}

	return saveSession(*sessionPath, session)
}

// resolveProvider picks the model backend. Ollama is the default; Gemini is
// chosen when requested explicitly or when only a Gemini key is present.
func resolveProvider(ctx context.Context, name, model, hostFlag, hostEnv, geminiKey string) (string, analyst.Provider, error) {
	if name == "" {
		name = "ollama"
		if geminiKey != "" {
			name = "gemini"
		}
	}

	switch name {
	case "ollama":
		host := hostFlag
		if host == "" {
			host = hostEnv
		}
		var opts []ollama.Option
		if model != "" {
			opts = append(opts, ollama.WithModel(model))
		}
		return name, ollama.New(host, opts...), nil

	case "gemini":
		if geminiKey == "" {
			return "", nil, errors.New("gemini provider requires GEMINI_API_KEY")
		}
		var opts []gemini.Option
		if model != "" {
			opts = append(opts, gemini.WithModel(model))
		}
		c, err := gemini.New(ctx, geminiKey, opts...)
		if err != nil {
			return "", nil, err
		}
		return name, c, nil

	default:
		return "", nil, fmt.Errorf("unknown provider %q (want ollama or gemini)", name)
	}
}

// resolveServerPath locates the tool server binary, defaulting to a sibling
// of this executable.
func resolveServerPath(flagValue string) (string, error) {
	if flagValue != "" {
		return filepath.Abs(flagValue)
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "analyst-server"), nil
}

func loadOrCreateSession(sessionPath string) (analyst.Session, error) {
	if sessionPath != "" {
		if _, err := os.Stat(sessionPath); err == nil {
			s, err := analystjson.Load(sessionPath)
			if err != nil {
				return analyst.Session{}, fmt.Errorf("load session: %w", err)
			}
			return s, nil
		}
	}

	now := time.Now()
	return analyst.Session{
		ID:        fmt.Sprintf("%d", now.UnixNano()),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// saveSession persists the session: to the explicit path when given,
// otherwise to the default location when there is anything to keep.
func saveSession(sessionPath string, session analyst.Session) error {
	switch {
	case sessionPath != "":
		if err := analystjson.Save(sessionPath, session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	case len(session.Messages) > 0:
		savePath := defaultSessionPath(session.ID)
		if err := analystjson.Save(savePath, session); err != nil {
			return fmt.Errorf("auto-save session: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Session saved to %s\n", savePath)
	}
	return nil
}

func defaultSessionPath(id string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".analyst", "sessions", id+".json")
}
