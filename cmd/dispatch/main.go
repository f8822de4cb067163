// Package main provides the CLI entry point for dispatch, a QA-analyst
// assistant that routes requests to ServiceNow-backed capability handlers
// and runs a bounded tool-calling loop against an LLM provider.
//
// # Basic Usage
//
// Dry-run the router against a message:
//
//	dispatch route "please look at incident SCS0001234"
//
// Inspect the handler catalog:
//
//	dispatch handlers
//
// Run a one-shot conversation end to end:
//
//	dispatch chat --config dispatch.yaml "validate the password reset catalog item"
//
// # Environment Variables
//
//   - DISPATCH_CONFIG: Path to configuration file (default: dispatch.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key
//   - SN_INSTANCE_URL, SN_USERNAME, SN_PASSWORD: ServiceNow credentials
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/dispatch/internal/agent"
	"github.com/haasonsaas/dispatch/internal/agent/providers"
	"github.com/haasonsaas/dispatch/internal/config"
	"github.com/haasonsaas/dispatch/internal/health"
	"github.com/haasonsaas/dispatch/internal/observability"
	"github.com/haasonsaas/dispatch/internal/orchestrator"
	"github.com/haasonsaas/dispatch/internal/routing"
	"github.com/haasonsaas/dispatch/internal/tools/monitoring"
	"github.com/haasonsaas/dispatch/internal/tools/servicenow"
	"github.com/haasonsaas/dispatch/internal/tools/standards"
	"github.com/haasonsaas/dispatch/pkg/models"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var configPath string

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dispatch",
		Short: "dispatch - QA analyst assistant with health-aware tool routing",
		Long: `dispatch routes QA requests to specialist handlers backed by ServiceNow,
device monitoring, and standards tooling, then runs a bounded tool-calling
loop against an LLM provider with only the matched handlers' tools exposed.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to configuration file")

	rootCmd.AddCommand(
		buildRouteCmd(),
		buildHandlersCmd(),
		buildHealthCmd(),
		buildChatCmd(),
		buildSchemaCmd(),
	)
	return rootCmd
}

func defaultConfigPath() string {
	if env := strings.TrimSpace(os.Getenv("DISPATCH_CONFIG")); env != "" {
		return env
	}
	return "dispatch.yaml"
}

// loadConfig reads the configured file, falling back to pure defaults when
// the default path does not exist. An explicitly named file must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(configPath)
}

func buildRouteCmd() *cobra.Command {
	var instance string
	var release string
	cmd := &cobra.Command{
		Use:   "route <message>",
		Short: "Dry-run the handler router against a message",
		Long: `Route scores the handler catalog against the given message and prints
the shortlist and resulting tool allowlist as JSON, without calling any
LLM provider or backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			registry, err := routing.NewRegistry(routing.DefaultHandlers()...)
			if err != nil {
				return err
			}
			matcher := routing.NewMatcher(registry, nil, matcherConfig(cfg), nil, nil)

			meta := routing.RequestMeta{Fields: map[string]string{}}
			if instance != "" {
				meta.Fields["instance"] = instance
			}
			if release != "" {
				meta.Fields["release"] = release
			}
			matches := matcher.Match(routing.Request{
				Messages: []models.Message{{Role: models.RoleUser, Content: args[0]}},
				Meta:     meta,
			})
			result := routing.BuildAllowlist(matches)

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&instance, "instance", "", "Target instance name, as if detected from context")
	cmd.Flags().StringVar(&release, "release", "", "Release version, as if detected from context")
	return cmd
}

func buildHandlersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handlers",
		Short: "List the handler catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, h := range routing.DefaultHandlers() {
				fmt.Printf("%s (%s)\n", h.ID, h.Kind)
				if len(h.Keywords) > 0 {
					fmt.Printf("  keywords: %s\n", strings.Join(h.Keywords, ", "))
				}
				if len(h.Tools) > 0 {
					fmt.Printf("  tools:    %s\n", strings.Join(h.Tools, ", "))
				}
				if len(h.Events) > 0 {
					fmt.Printf("  events:   %s\n", strings.Join(h.Events, ", "))
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func buildHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe handler backends once and print their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			monitor := health.NewMonitor(health.MonitorConfig{
				TTL:          cfg.Health.TTL,
				ProbeTimeout: cfg.Health.ProbeTimeout,
				Policy:       health.Policy{FailClosed: cfg.Health.FailClosed},
			})

			handlers := routing.DefaultHandlers()
			if cfg.ServiceNow.InstanceURL != "" {
				client := servicenow.NewClient(servicenow.Config{
					InstanceURL: cfg.ServiceNow.InstanceURL,
					Username:    cfg.ServiceNow.Username,
					Password:    cfg.ServiceNow.Password,
					Timeout:     cfg.ServiceNow.Timeout,
				})
				for i := range handlers {
					switch handlers[i].ID {
					case "incident-triage", "catalog-validation", "uat-clone-check":
						handlers[i].Probe = client.Ping
					}
				}
			}
			registry, err := routing.NewRegistry(handlers...)
			if err != nil {
				return err
			}
			registry.RegisterProbes(monitor)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			monitor.Sweep(ctx)

			for _, h := range handlers {
				status, ok := monitor.Status(h.ID)
				if !ok {
					status = "unprobed"
				}
				fmt.Printf("%-20s %s\n", h.ID, status)
			}
			return nil
		},
	}
}

func buildChatCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Run one message through the full generate pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			stack, err := buildStack(ctx, cfg)
			if err != nil {
				return err
			}
			defer stack.Close()

			opts := orchestrator.Options{Model: model}
			reply, err := stack.Orchestrator.Generate(ctx, []models.Message{
				{Role: models.RoleUser, Content: args[0]},
			}, opts)
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Override the configured model")
	return cmd
}

func buildSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

// stack holds the wired pipeline for one-shot commands.
type stack struct {
	Orchestrator *orchestrator.Orchestrator
	closeFns     []func()
}

func (s *stack) Close() {
	for i := len(s.closeFns) - 1; i >= 0; i-- {
		s.closeFns[i]()
	}
}

// buildStack wires the provider, tools, health monitor, and orchestrator
// from configuration.
func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		AddSource: cfg.Logging.AddSource,
	})

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	s := &stack{}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(ctx, "metrics server failed", "error", err)
			}
		}()
		s.closeFns = append(s.closeFns, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	breakers := health.NewBreakerSet(health.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		HalfOpenCooldown: cfg.Breaker.HalfOpenCooldown,
	})
	breakers.OnTransition(func(dependency string, state health.BreakerState) {
		metrics.BreakerTransitions.WithLabelValues(dependency, string(state)).Inc()
	})

	toolRegistry := agent.NewToolRegistry()
	handlers := routing.DefaultHandlers()
	if cfg.ServiceNow.InstanceURL != "" {
		client := servicenow.NewClient(servicenow.Config{
			InstanceURL: cfg.ServiceNow.InstanceURL,
			Username:    cfg.ServiceNow.Username,
			Password:    cfg.ServiceNow.Password,
			Timeout:     cfg.ServiceNow.Timeout,
		})
		for _, tool := range []agent.Tool{
			servicenow.NewGetTicketTool(client),
			servicenow.NewSearchTicketsTool(client),
			servicenow.NewValidateCatalogItemTool(client),
			servicenow.NewCheckCloneDateTool(client),
		} {
			if err := toolRegistry.Register(tool); err != nil {
				return nil, err
			}
		}
		for i := range handlers {
			switch handlers[i].ID {
			case "incident-triage", "catalog-validation", "uat-clone-check":
				handlers[i].Probe = client.Ping
			}
		}
	}
	if cfg.Monitoring.BaseURL != "" {
		client := monitoring.NewHTTPClient(monitoring.ClientConfig{
			BaseURL: cfg.Monitoring.BaseURL,
			Token:   cfg.Monitoring.Token,
			Timeout: cfg.Monitoring.Timeout,
		})
		tool := monitoring.NewQueryDeviceStatusTool(client, breakers.Get("monitoring"))
		if err := toolRegistry.Register(tool); err != nil {
			return nil, err
		}
		for i := range handlers {
			if handlers[i].ID == "device-monitoring" {
				handlers[i].Probe = client.Ping
			}
		}
	}

	if cfg.Standards.IssueLog != "" {
		tool := standards.NewUpdateStandardsTool(standards.NewFileIssueSource(cfg.Standards.IssueLog))
		tool.CommonMistakesPath = cfg.Standards.CommonMistakes
		tool.StandardsPath = cfg.Standards.StandardsDoc
		if err := toolRegistry.Register(tool); err != nil {
			return nil, err
		}
	}

	// Handlers whose tools are not all registered would only produce
	// tool-not-found results, so they leave the catalog entirely.
	handlers = pruneHandlers(handlers, toolRegistry)

	monitor := health.NewMonitor(health.MonitorConfig{
		TTL:           cfg.Health.TTL,
		SweepInterval: cfg.Health.SweepInterval,
		ProbeTimeout:  cfg.Health.ProbeTimeout,
		Policy:        health.Policy{FailClosed: cfg.Health.FailClosed},
		Logger:        logger.Slog(),
	})
	handlerRegistry, err := routing.NewRegistry(handlers...)
	if err != nil {
		return nil, err
	}
	handlerRegistry.RegisterProbes(monitor)
	monitor.Sweep(ctx)
	s.closeFns = append(s.closeFns, monitor.Start(ctx))

	matcher := routing.NewMatcher(handlerRegistry, monitor, matcherConfig(cfg), logger.Slog(), metrics)

	runner := agent.NewRunner(provider, toolRegistry, agent.LoopConfig{
		MaxSteps:  cfg.Loop.MaxSteps,
		Model:     cfg.Provider.Model,
		MaxTokens: cfg.Loop.MaxTokens,
		Executor: agent.ExecutorConfig{
			Concurrency:    cfg.Loop.ToolConcurrency,
			PerToolTimeout: cfg.Loop.ToolTimeout,
		},
	}, logger.Slog(), metrics)

	s.Orchestrator = orchestrator.New(orchestrator.Config{
		Matcher: matcher,
		Runner:  runner,
		Logger:  logger,
		Metrics: metrics,
	})
	return s, nil
}

// pruneHandlers keeps handlers whose declared tools are all present in the
// registry. Handlers with no tools, such as event-driven intake, always
// stay.
func pruneHandlers(handlers []routing.HandlerDefinition, registry *agent.ToolRegistry) []routing.HandlerDefinition {
	kept := handlers[:0]
	for _, h := range handlers {
		available := true
		for _, name := range h.Tools {
			if _, ok := registry.Get(name); !ok {
				available = false
				break
			}
		}
		if available {
			kept = append(kept, h)
		}
	}
	return kept
}

func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	switch cfg.Provider.Name {
	case "anthropic":
		apiKey := cfg.Provider.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       apiKey,
			BaseURL:      cfg.Provider.BaseURL,
			MaxRetries:   cfg.Provider.MaxRetries,
			RetryDelay:   cfg.Provider.RetryDelay,
			DefaultModel: cfg.Provider.Model,
		})
	case "openai":
		apiKey := cfg.Provider.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       apiKey,
			BaseURL:      cfg.Provider.BaseURL,
			MaxRetries:   cfg.Provider.MaxRetries,
			RetryDelay:   cfg.Provider.RetryDelay,
			DefaultModel: cfg.Provider.Model,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func matcherConfig(cfg *config.Config) routing.MatcherConfig {
	return routing.MatcherConfig{
		ShortlistSize:             cfg.Routing.ShortlistSize,
		KeywordWeight:             cfg.Routing.KeywordWeight,
		UtteranceWeight:           cfg.Routing.UtteranceWeight,
		DegradedDamping:           cfg.Routing.DegradedDamping,
		MissingSignalPenalty:      cfg.Routing.MissingSignalPenalty,
		SignalBonus:               cfg.Routing.SignalBonus,
		MissingRequirementPenalty: cfg.Routing.MissingRequirementPenalty,
		RequirementBonus:          cfg.Routing.RequirementBonus,
	}
}
