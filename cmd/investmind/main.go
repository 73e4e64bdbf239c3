// Command investmind runs the equity-analysis orchestration engine: serve
// starts its HTTP surface, validate checks an agent catalogue offline, and
// agents lists the currently enabled roster.
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
	"gopkg.in/yaml.v3"

	"github.com/icysaintdx/InvestMind-Pro-sub005/internal/httpclient"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/config"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/coordinator"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/evidence"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/governor"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/llm"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/marketdata"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/registry"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/server"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP analysis server."`
	Validate ValidateCmd `cmd:"" help:"Validate an agent catalogue file."`
	Agents   AgentsCmd   `cmd:"" help:"List the currently enabled agent roster."`

	Catalogue string `short:"c" help:"Path to the agent catalogue document." default:"configs/agents.json" type:"path"`
	State     string `help:"Path to the mutable overrides/profile state document." default:"configs/state.json" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port              int    `help:"Port to listen on." default:"8080"`
	GlobalConcurrency int    `name:"global-concurrency" help:"Max concurrent LLM calls process-wide." default:"4"`
	QuoteBaseURL      string `name:"quote-url" help:"Base URL for the quote snapshot fetcher." default:"http://localhost:9100/quote"`
	NewsBaseURL       string `name:"news-url" help:"Base URL for the news evidence fetcher." default:"http://localhost:9100/news"`
	FundFlowBaseURL   string `name:"fund-flow-url" help:"Base URL for the fund-flow evidence fetcher." default:"http://localhost:9100/fund-flow"`
	SectorBaseURL     string `name:"sector-url" help:"Base URL for the sector evidence fetcher." default:"http://localhost:9100/sector"`
	MacroBaseURL      string `name:"macro-url" help:"Base URL for the macro evidence fetcher." default:"http://localhost:9100/macro"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	reg, err := config.NewRegistry(cli.Catalogue, cli.State)
	if err != nil {
		return fmt.Errorf("investmind: loading catalogue: %w", err)
	}

	providers := make([]string, 0, 2)
	for _, p := range []string{"anthropic", "openai"} {
		if reg.CredentialHandle(p) != "" {
			providers = append(providers, p)
		}
	}
	creds := llm.LoadCredentials(reg, providers)
	llmClient := llm.NewClient(httpclient.Config{})
	gov := governor.New(governor.Config{GlobalCapacity: c.GlobalConcurrency})

	transport := httpclient.New(&http.Client{Timeout: 15 * time.Second}, httpclient.Config{})
	evidenceReg := registry.NewBaseRegistry[evidence.Provider]()
	for key, baseURL := range map[string]string{
		"news":      c.NewsBaseURL,
		"fund-flow": c.FundFlowBaseURL,
		"sector":    c.SectorBaseURL,
		"macro":     c.MacroBaseURL,
	} {
		if err := evidenceReg.Register(key, marketdata.NewHTTPEvidenceProvider(baseURL, transport)); err != nil {
			return fmt.Errorf("investmind: registering evidence provider %q: %w", key, err)
		}
	}
	evidenceByKey := evidenceReg.Snapshot()
	collector := evidence.New(evidenceByKey)

	quote := marketdata.NewQuoteFetcher(c.QuoteBaseURL, transport)

	engine := coordinator.NewEngine(reg, gov, llmClient, creds, collector, quote, 0)
	srv := server.New(engine, evidenceByKey)

	addr := fmt.Sprintf(":%d", c.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("investmind server listening", "addr", addr, "agents", len(reg.List()))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("investmind: server error: %w", err)
	}
	return nil
}

// ValidateCmd validates a catalogue file without starting the server.
type ValidateCmd struct {
	Path string `arg:"" optional:"" help:"Catalogue path; falls back to --catalogue." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	path := c.Path
	if path == "" {
		path = cli.Catalogue
	}
	doc, err := config.LoadDocument(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		return err
	}
	fmt.Printf("valid: %d agents across %d stages\n", len(doc.Agents), stageCount(doc))
	return nil
}

func stageCount(doc *config.Document) int {
	seen := make(map[int]bool)
	for _, a := range doc.Agents {
		seen[a.Stage] = true
	}
	return len(seen)
}

// AgentsCmd lists the enabled roster for the current profile/overrides.
type AgentsCmd struct{}

func (c *AgentsCmd) Run(cli *CLI) error {
	reg, err := config.NewRegistry(cli.Catalogue, cli.State)
	if err != nil {
		return fmt.Errorf("investmind: loading catalogue: %w", err)
	}

	type row struct {
		ID       string          `yaml:"id"`
		Role     string          `yaml:"role"`
		Stage    int             `yaml:"stage"`
		Priority config.Priority `yaml:"priority"`
		Enabled  bool            `yaml:"enabled"`
	}
	specs := reg.EnabledFor(nil)
	rows := make([]row, len(specs))
	for i, s := range specs {
		rows[i] = row{ID: s.ID, Role: s.Role, Stage: s.Stage, Priority: s.Priority, Enabled: s.Enabled}
	}

	out, err := yaml.Marshal(rows)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("investmind"),
		kong.Description("Staged multi-agent equity analysis orchestration engine."),
		kong.UsageOnError(),
	)

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cli.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
