// Package main provides the autopilot command: a browser-task runner that
// executes natural-language tasks against websites, learns which tasks are
// deterministic, and replays them from generated scripts on repeat runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/autopilot/pkg/analyzer"
	"github.com/entrhq/autopilot/pkg/browser"
	appconfig "github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/explorer"
	"github.com/entrhq/autopilot/pkg/generator"
	"github.com/entrhq/autopilot/pkg/library"
	"github.com/entrhq/autopilot/pkg/library/sqlite"
	"github.com/entrhq/autopilot/pkg/llm/openai"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/orchestrator"
	"github.com/entrhq/autopilot/pkg/script"
	"github.com/entrhq/autopilot/pkg/task"
	"github.com/entrhq/autopilot/pkg/types"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	ConfigFile  string
	Target      string
	Task        string
	Constraints constraintList
	TasksFile   string
	Concurrency int
	OutputFile  string
	ShowVersion bool
}

// constraintList collects repeated -constraint key=value flags.
type constraintList map[string]string

func (c constraintList) String() string {
	pairs := make([]string, 0, len(c))
	for k, v := range c {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (c constraintList) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || k == "" {
		return fmt.Errorf("constraint must be key=value, got %q", value)
	}
	c[k] = v
	return nil
}

// taskEntry is one item in a batch tasks file.
type taskEntry struct {
	Target       string            `yaml:"target"`
	Instructions string            `yaml:"instructions"`
	Constraints  map[string]string `yaml:"constraints"`
}

// taskReport pairs a task with its outcome in the batch summary.
type taskReport struct {
	Target       string `json:"target"`
	Instructions string `json:"instructions"`
	Success      bool   `json:"success"`
	Method       string `json:"method"`
	Payload      string `json:"payload,omitempty"`
	Steps        int    `json:"steps,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Error        string `json:"error,omitempty"`
}

func main() {
	config := parseFlags()

	if config.ShowVersion {
		fmt.Printf("autopilot v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, config); err != nil {
		cancel()
		log.Printf("Execution failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags.
func parseFlags() *CLIConfig {
	config := &CLIConfig{Constraints: constraintList{}}

	flag.StringVar(&config.APIKey, "api-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key")
	flag.StringVar(&config.BaseURL, "base-url", os.Getenv("OPENAI_BASE_URL"), "OpenAI API base URL")
	flag.StringVar(&config.Model, "model", "", "LLM model for exploration decisions (overrides config)")
	flag.StringVar(&config.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&config.Target, "target", "", "Target URL for the task")
	flag.StringVar(&config.Task, "task", "", "Task instructions (required if no tasks file)")
	flag.Var(&config.Constraints, "constraint", "Task constraint as key=value (repeatable)")
	flag.StringVar(&config.TasksFile, "tasks", "", "YAML file with a list of tasks to run as a batch")
	flag.IntVar(&config.Concurrency, "concurrency", 2, "Concurrent task limit in batch mode")
	flag.StringVar(&config.OutputFile, "output", "", "Write the JSON result summary to this file instead of stdout")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Autopilot - Self-Optimizing Browser Task Runner\n\n")
		fmt.Fprintf(os.Stderr, "Usage: autopilot [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run a single task\n")
		fmt.Fprintf(os.Stderr, "  autopilot -target https://example.com/jobs -task \"list open engineering roles\"\n\n")
		fmt.Fprintf(os.Stderr, "  # Parameterize the task with constraints\n")
		fmt.Fprintf(os.Stderr, "  autopilot -target https://example.com/jobs -task \"search for roles\" \\\n")
		fmt.Fprintf(os.Stderr, "    -constraint role=engineer -constraint min_salary=100000\n\n")
		fmt.Fprintf(os.Stderr, "  # Run a batch of tasks\n")
		fmt.Fprintf(os.Stderr, "  autopilot -tasks tasks.yaml -concurrency 4\n\n")
	}

	flag.Parse()
	return config
}

// run wires the pipeline and executes the requested task or batch.
func run(ctx context.Context, cliConfig *CLIConfig) error {
	cfg, err := appconfig.Load(cliConfig.ConfigFile)
	if err != nil {
		return err
	}
	if cliConfig.Model != "" {
		cfg.Explorer.Model = cliConfig.Model
	}

	// NewLogger falls back to stderr on failure, so the error is advisory.
	logger, err := logging.NewLogger("autopilot")
	if err != nil {
		log.Printf("file logging unavailable: %v", err)
	}
	defer logger.Close()

	providerOpts := []openai.Option{
		openai.WithModel(cfg.Explorer.Model),
	}
	if cliConfig.BaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(cliConfig.BaseURL))
	}
	provider, err := openai.NewProvider(cliConfig.APIKey, providerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}

	engine := browser.NewEngine()
	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer engine.Shutdown()

	browserOpts := browser.Options{
		Headless:        cfg.Browser.Headless,
		ViewportWidth:   cfg.Browser.ViewportWidth,
		ViewportHeight:  cfg.Browser.ViewportHeight,
		ActionTimeoutMS: cfg.Browser.ActionTimeoutMS,
	}
	sessions := func(ctx context.Context) (browser.Capability, error) {
		return engine.NewSession(browserOpts)
	}

	store, err := openStore(cfg.Library)
	if err != nil {
		return fmt.Errorf("failed to open script library: %w", err)
	}

	runner := script.NewRunner(script.SessionFactory(sessions), logger)
	anz := analyzer.New(cfg.Analyzer)
	orch := orchestrator.New(
		explorer.New(provider, sessions, cfg.Explorer, logger),
		anz,
		generator.New(runner, anz, logger),
		runner,
		store,
		cfg.Orchestrator,
		cfg.Library,
		logger,
	)
	defer orch.Close()

	if cliConfig.TasksFile != "" {
		return runBatch(ctx, orch, cliConfig)
	}
	return runSingle(ctx, orch, cliConfig)
}

func runSingle(ctx context.Context, orch *orchestrator.Orchestrator, cliConfig *CLIConfig) error {
	spec, err := task.New(cliConfig.Target, cliConfig.Task, cliConfig.Constraints)
	if err != nil {
		return err
	}

	result := orch.Execute(ctx, spec)
	report := []taskReport{reportFor(spec, result)}
	if err := writeReports(cliConfig.OutputFile, report); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("task failed: %s", result.Err)
	}
	return nil
}

// runBatch executes every task in the file with a bounded worker count. Tasks
// share the orchestrator and its script library, so repeated tasks in one
// batch benefit from scripts generated earlier in the same run.
func runBatch(ctx context.Context, orch *orchestrator.Orchestrator, cliConfig *CLIConfig) error {
	entries, err := loadTasks(cliConfig.TasksFile)
	if err != nil {
		return err
	}

	specs := make([]task.Spec, len(entries))
	for i, entry := range entries {
		spec, err := task.New(entry.Target, entry.Instructions, entry.Constraints)
		if err != nil {
			return fmt.Errorf("task %d: %w", i+1, err)
		}
		specs[i] = spec
	}

	reports := make([]taskReport, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cliConfig.Concurrency, 1))
	for i, spec := range specs {
		g.Go(func() error {
			reports[i] = reportFor(spec, orch.Execute(gctx, spec))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeReports(cliConfig.OutputFile, reports); err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(reports))
	}
	return nil
}

func loadTasks(path string) ([]taskEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}
	var entries []taskEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse tasks file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("tasks file %s contains no tasks", path)
	}
	return entries, nil
}

func openStore(cfg appconfig.LibraryConfig) (library.Store, error) {
	if cfg.Backend == "sqlite" {
		path := cfg.Path
		if path == "" {
			path = defaultLibraryPath("scripts.db")
		}
		return sqlite.New(path)
	}
	return library.NewFileStore(cfg.Path)
}

func defaultLibraryPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return home + "/.autopilot/" + name
}

func reportFor(spec task.Spec, result types.ExecutionResult) taskReport {
	return taskReport{
		Target:       spec.Target,
		Instructions: spec.Instructions,
		Success:      result.Success,
		Method:       string(result.Method),
		Payload:      result.Payload,
		Steps:        result.Steps,
		Duration:     result.Duration.Round(time.Millisecond).String(),
		Error:        result.Err,
	}
}

func writeReports(path string, reports []taskReport) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
