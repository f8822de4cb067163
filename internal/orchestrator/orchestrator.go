// Package orchestrator sequences a request through context loading,
// handler routing, prompt building, the tool-calling control loop, and
// response formatting. The whole pipeline sits inside one recovery
// boundary: any stage failure triggers the legacy fallback when one is
// configured, otherwise the error surfaces unchanged.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/dispatch/internal/agent"
	"github.com/haasonsaas/dispatch/internal/observability"
	"github.com/haasonsaas/dispatch/internal/routing"
	"github.com/haasonsaas/dispatch/pkg/models"
)

// Context is the enriched conversation a ContextProvider returns. The
// provider may append synthetic assistant messages (a prefetched ticket
// summary, similar-incident search results) and exposes what it detected
// in Metadata.
type Context struct {
	Messages []models.Message
	Metadata routing.RequestMeta
}

// ContextProvider loads external context for a conversation.
type ContextProvider interface {
	LoadContext(ctx context.Context, messages []models.Message, opts Options) (*Context, error)
}

// PromptBuilder renders the system prompt and final conversation from
// loaded context.
type PromptBuilder interface {
	BuildPrompt(loaded *Context, now time.Time) (system string, conversation []models.Message, err error)
}

// Formatter post-processes the loop's final text for the destination
// surface.
type Formatter interface {
	Format(text string) (string, error)
}

// LoopRunner abstracts the control loop for testing.
type LoopRunner interface {
	Run(ctx context.Context, system string, messages []models.Message, allowlist []string) (*agent.RunResult, error)
}

// FallbackFunc is the legacy generation path, invoked with the original
// inputs when any pipeline stage fails.
type FallbackFunc func(ctx context.Context, messages []models.Message, opts Options) (string, error)

// Options carries per-request knobs.
type Options struct {
	ChannelID string
	ThreadTS  string
	Model     string
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	contextProvider ContextProvider
	matcher         *routing.Matcher
	runner          LoopRunner
	promptBuilder   PromptBuilder
	formatter       Formatter
	logger          *observability.Logger
	metrics         *observability.Metrics

	// Legacy is the optional fallback generation path. When nil, stage
	// errors propagate to the caller.
	Legacy FallbackFunc

	now func() time.Time
}

// Config collects the orchestrator's collaborators.
type Config struct {
	ContextProvider ContextProvider
	Matcher         *routing.Matcher
	Runner          LoopRunner
	PromptBuilder   PromptBuilder
	Formatter       Formatter
	Logger          *observability.Logger
	Metrics         *observability.Metrics
	Legacy          FallbackFunc
}

// New creates an orchestrator. ContextProvider, PromptBuilder, and
// Formatter may be nil, in which case that stage is a pass-through.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Orchestrator{
		contextProvider: cfg.ContextProvider,
		matcher:         cfg.Matcher,
		runner:          cfg.Runner,
		promptBuilder:   cfg.PromptBuilder,
		formatter:       cfg.Formatter,
		logger:          logger,
		metrics:         cfg.Metrics,
		Legacy:          cfg.Legacy,
		now:             time.Now,
	}
}

// Generate runs the full pipeline and returns the response text. The
// pipeline is guarded by a single recovery boundary: the first stage error
// aborts the remaining stages and, when a legacy fallback is configured,
// the fallback runs with the original inputs and its result is returned.
// A formatting failure never re-attempts context loading.
func (o *Orchestrator) Generate(ctx context.Context, messages []models.Message, opts Options) (string, error) {
	requestID := uuid.NewString()
	ctx = observability.WithRequestID(ctx, requestID)

	text, err := o.generate(ctx, messages, opts)
	if err == nil {
		return text, nil
	}

	o.logger.Warn(ctx, "pipeline failed",
		"error", err,
		"fallback_available", o.Legacy != nil,
	)
	if o.metrics != nil {
		o.metrics.ErrorCounter.WithLabelValues("orchestrator", "pipeline").Inc()
	}

	if o.Legacy != nil {
		return o.Legacy(ctx, messages, opts)
	}
	return "", err
}

func (o *Orchestrator) generate(ctx context.Context, messages []models.Message, opts Options) (string, error) {
	loaded, err := o.loadContext(ctx, messages, opts)
	if err != nil {
		return "", fmt.Errorf("load context: %w", err)
	}

	allowlist, pendingText := o.route(ctx, loaded)
	if pendingText != "" {
		// No viable handler; ask for the missing context instead of
		// running the loop with an unconstrained tool set.
		return pendingText, nil
	}

	system, conversation, err := o.buildPrompt(loaded)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	result, err := o.runner.Run(ctx, system, conversation, allowlist)
	if err != nil {
		return "", fmt.Errorf("run loop: %w", err)
	}

	text := result.Text
	if o.formatter != nil {
		text, err = o.formatter.Format(text)
		if err != nil {
			return "", fmt.Errorf("format response: %w", err)
		}
	}
	return text, nil
}

func (o *Orchestrator) loadContext(ctx context.Context, messages []models.Message, opts Options) (*Context, error) {
	if o.contextProvider == nil {
		return &Context{
			Messages: messages,
			Metadata: routing.RequestMeta{ChannelID: opts.ChannelID, ThreadTS: opts.ThreadTS},
		}, nil
	}
	loaded, err := o.contextProvider.LoadContext(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	if loaded.Metadata.ChannelID == "" {
		loaded.Metadata.ChannelID = opts.ChannelID
	}
	if loaded.Metadata.ThreadTS == "" {
		loaded.Metadata.ThreadTS = opts.ThreadTS
	}
	return loaded, nil
}

// route produces the tool allowlist for the request. When no handler is
// viable but some are blocked only on missing context requirements, the
// composed prompts are returned as the response text.
func (o *Orchestrator) route(ctx context.Context, loaded *Context) (allowlist []string, pendingText string) {
	if o.matcher == nil {
		return nil, ""
	}

	matches := o.matcher.Match(routing.Request{
		Messages: loaded.Messages,
		Meta:     loaded.Metadata,
	})
	built := routing.BuildAllowlist(matches)

	o.logger.Info(ctx, "routing decision",
		"matches", len(built.Matches),
		"allowlist", built.Allowlist,
		"pending", len(built.Pending),
	)

	if len(built.Allowlist) > 0 {
		return built.Allowlist, ""
	}
	if len(built.Pending) > 0 {
		return nil, formatPending(built.Pending)
	}
	return nil, ""
}

func (o *Orchestrator) buildPrompt(loaded *Context) (string, []models.Message, error) {
	if o.promptBuilder == nil {
		return "", loaded.Messages, nil
	}
	return o.promptBuilder.BuildPrompt(loaded, o.now())
}

func formatPending(pending []routing.PendingRequirement) string {
	var sb strings.Builder
	sb.WriteString("I need a bit more information before I can help:\n")
	for _, req := range pending {
		sb.WriteString("- ")
		sb.WriteString(req.Prompt)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
