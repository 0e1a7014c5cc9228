package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"llmdeepseek/config"
	"llmdeepseek/internal/adapter"
	"llmdeepseek/internal/app"
	"llmdeepseek/internal/core"
	"llmdeepseek/internal/logging"
	"llmdeepseek/internal/translator"
)

const usage = `llmdeepseek runs prompts against DeepSeek models.

Usage:
  llmdeepseek <command> [flags]

Commands:
  models   List the available models and their aliases
  prompt   Execute a prompt and print the response
  serve    Start the HTTP server

Run 'llmdeepseek <command> -h' for command flags.`

// CLI dispatches subcommands. Model output goes to Stdout, logs to Stderr.
type CLI struct {
	Stdout io.Writer
	Stderr io.Writer

	// newApp builds the application; tests replace it.
	newApp func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

// Execute runs the command named by args[0].
func (c *CLI) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.printUsage()
	}

	switch args[0] {
	case "models":
		return c.models(ctx, args[1:])
	case "prompt":
		return c.prompt(ctx, args[1:])
	case "serve":
		return c.serve(ctx, args[1:])
	case "help", "-h", "--help":
		return c.printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func (c *CLI) printUsage() error {
	fmt.Fprintln(c.Stdout, strings.TrimSpace(usage))
	return nil
}

// setup loads configuration, installs logging and builds the app.
func (c *CLI) setup(ctx context.Context, configPath string) (*config.Config, *app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if _, err := logging.Setup(cfg.Logging, c.Stderr); err != nil {
		return nil, nil, err
	}
	newApp := c.newApp
	if newApp == nil {
		newApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg, app.Options{})
		}
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, a, nil
}

func (c *CLI) flagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	configPath := fs.String("config", "", "path to config.yaml")
	return fs, configPath
}

func (c *CLI) models(ctx context.Context, args []string) error {
	fs, configPath := c.flagSet("models")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, a, err := c.setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer shutdown(a)

	if !a.Adapter().HasCredential() {
		fmt.Fprintf(c.Stdout, "DeepSeek API key not set. Use 'llm keys set %s' to set it.\n", a.Adapter().Provider())
		return nil
	}

	variants, err := a.Adapter().ListVariants(ctx)
	if err != nil {
		return err
	}
	for _, v := range variants {
		fmt.Fprintln(c.Stdout, v.String())
		fmt.Fprintf(c.Stdout, "  Aliases: %s\n", v.Alias())
		if v.Kind == core.KindCompletion {
			fmt.Fprintln(c.Stdout)
		}
	}
	return nil
}

// keyValues collects repeated -o key=value flags. Values are decoded as YAML
// scalars so numbers and booleans keep their type.
type keyValues map[string]any

func (kv keyValues) String() string {
	return fmt.Sprint(map[string]any(kv))
}

func (kv keyValues) Set(s string) error {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		v = raw
	}
	kv[key] = v
	return nil
}

// loadConversation reads prior turns from a YAML list of prompt/response pairs.
func loadConversation(path string) (core.Turns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}
	var turns []struct {
		Prompt   string `yaml:"prompt"`
		Response string `yaml:"response"`
	}
	if err := yaml.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to parse conversation %q: %w", path, err)
	}
	out := make(core.Turns, 0, len(turns))
	for _, t := range turns {
		out = append(out, core.Turn{Prompt: t.Prompt, Response: t.Response})
	}
	return out, nil
}

func (c *CLI) prompt(ctx context.Context, args []string) error {
	fs, configPath := c.flagSet("prompt")
	model := fs.String("m", "deepseek-chat", "model id or alias")
	prefill := fs.String("prefill", "", "text the response must continue from")
	responseFormat := fs.String("response-format", "", "response format, e.g. json_object")
	noStream := fs.Bool("no-stream", false, "wait for the whole response")
	conversationPath := fs.String("conversation", "", "YAML file of prior prompt/response turns")
	params := keyValues{}
	fs.Var(params, "o", "model option key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		return errors.New("a prompt is required")
	}

	var conv core.Conversation
	if *conversationPath != "" {
		turns, err := loadConversation(*conversationPath)
		if err != nil {
			return err
		}
		conv = turns
	}

	_, a, err := c.setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer shutdown(a)

	if !a.Adapter().HasCredential() {
		return fmt.Errorf("DeepSeek API key not set. Use 'llm keys set %s' to set it", a.Adapter().Provider())
	}

	m, err := a.Models(ctx).Resolve(*model)
	if err != nil {
		return err
	}

	resp, err := m.Execute(ctx, text, adapter.ExecuteOptions{
		Stream:       !*noStream,
		Conversation: conv,
		Options: translator.Options{
			Prefill:        *prefill,
			ResponseFormat: *responseFormat,
			Params:         params,
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Close()
	}()

	for fragment, err := range resp.Chunks() {
		if err != nil {
			fmt.Fprintln(c.Stdout)
			return err
		}
		fmt.Fprint(c.Stdout, fragment)
	}
	fmt.Fprintln(c.Stdout)
	return nil
}

func (c *CLI) serve(ctx context.Context, args []string) error {
	fs, configPath := c.flagSet("serve")
	addr := fs.String("addr", "", "listen address (default :$PORT)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, a, err := c.setup(ctx, *configPath)
	if err != nil {
		return err
	}

	listen := *addr
	if listen == "" {
		listen = ":" + cfg.Server.Port
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := a.Start(ctx, listen); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		slog.Warn("shutdown error", "error", err)
	}
}
