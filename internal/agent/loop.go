package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/dispatch/internal/observability"
	"github.com/haasonsaas/dispatch/pkg/models"
)

// Status describes loop progress for advisory observers.
type Status string

const (
	StatusThinking    Status = "thinking"
	StatusCallingTool Status = "calling-tool"
	StatusComplete    Status = "complete"
)

// StatusUpdate is delivered to the status callback as the loop advances.
type StatusUpdate struct {
	Status    Status
	Iteration int
	ToolName  string
}

// StatusFunc receives advisory progress notifications. Callbacks run
// inline on the loop goroutine; panics are recovered and logged so a
// misbehaving observer cannot break a run.
type StatusFunc func(StatusUpdate)

// LoopConfig controls the tool-calling control loop.
type LoopConfig struct {
	// MaxSteps bounds the number of model exchanges per run. Default: 6.
	MaxSteps int

	// Model passed through to the provider on every exchange.
	Model string

	// MaxTokens per completion. Zero lets the provider default apply.
	MaxTokens int

	Executor ExecutorConfig
}

// DefaultLoopConfig returns loop defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxSteps: 6,
		Executor: DefaultExecutorConfig(),
	}
}

func (c LoopConfig) sanitize() LoopConfig {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 6
	}
	return c
}

// RunResult is the outcome of a completed loop run.
type RunResult struct {
	// Text is the model's final text output, trimmed of surrounding
	// whitespace.
	Text string

	// Steps is the number of model exchanges performed.
	Steps int

	// ToolCalls is the total number of tool invocations across the run.
	ToolCalls int

	// Messages is the full transcript, including tool exchanges.
	Messages []models.Message
}

// Runner drives the bounded model-exchange loop: send the conversation
// plus the allowed tools, execute any requested tool calls, append results,
// and repeat until the model answers with text only or the step bound is
// reached.
type Runner struct {
	provider LLMProvider
	registry *ToolRegistry
	executor *Executor
	config   LoopConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	onStatus StatusFunc
}

// NewRunner creates a loop runner. The registry may be nil when the run
// carries no tools.
func NewRunner(provider LLMProvider, registry *ToolRegistry, config LoopConfig, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	config = config.sanitize()
	return &Runner{
		provider: provider,
		registry: registry,
		executor: NewExecutor(registry, config.Executor, logger, metrics),
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// OnStatus registers an advisory status callback. Must be called before Run.
func (r *Runner) OnStatus(fn StatusFunc) {
	r.onStatus = fn
}

// Run executes the loop with the given system prompt, conversation, and
// tool allowlist. On completion the returned result holds the final text;
// hitting the step bound without a text-only reply returns ErrMaxIterations
// and a reply that produced neither text nor tool calls returns
// ErrNoOutputText, both wrapped in a LoopError.
func (r *Runner) Run(ctx context.Context, system string, messages []models.Message, allowlist []string) (*RunResult, error) {
	if r.provider == nil {
		return nil, &LoopError{Phase: PhaseInit, Cause: ErrNoProvider}
	}

	var tools []Tool
	if r.registry != nil && len(allowlist) > 0 {
		tools = r.registry.Subset(allowlist)
	}

	transcript := make([]models.Message, len(messages))
	copy(transcript, messages)

	result := &RunResult{}

	for step := 1; step <= r.config.MaxSteps; step++ {
		result.Steps = step
		r.notify(StatusUpdate{Status: StatusThinking, Iteration: step})

		text, toolCalls, err := r.exchange(ctx, system, transcript, tools)
		if err != nil {
			return nil, &LoopError{Phase: PhaseExchange, Iteration: step, Cause: err}
		}

		if len(toolCalls) == 0 {
			text = strings.TrimSpace(text)
			if text == "" {
				return nil, &LoopError{Phase: PhaseExchange, Iteration: step, Cause: ErrNoOutputText}
			}
			transcript = append(transcript, models.Message{
				Role:    models.RoleAssistant,
				Content: text,
			})
			result.Text = text
			result.Messages = transcript
			if r.metrics != nil {
				r.metrics.LoopIterations.Observe(float64(step))
			}
			r.notify(StatusUpdate{Status: StatusComplete, Iteration: step})
			return result, nil
		}

		transcript = append(transcript, models.Message{
			Role:      models.RoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
		})

		for _, call := range toolCalls {
			r.notify(StatusUpdate{Status: StatusCallingTool, Iteration: step, ToolName: call.Name})
		}

		toolResults := r.executor.ExecuteAll(ctx, toolCalls)
		result.ToolCalls += len(toolCalls)

		transcript = append(transcript, models.Message{
			Role:        models.RoleTool,
			ToolResults: toolResults,
		})
	}

	result.Messages = transcript
	if r.metrics != nil {
		r.metrics.LoopIterations.Observe(float64(r.config.MaxSteps))
	}
	return nil, &LoopError{Phase: PhaseComplete, Iteration: r.config.MaxSteps, Cause: ErrMaxIterations}
}

// exchange performs one provider round trip, collecting streamed text and
// tool calls. The final chunk may carry the full pre-extracted text, which
// takes precedence over the accumulated fragments.
func (r *Runner) exchange(ctx context.Context, system string, messages []models.Message, tools []Tool) (string, []models.ToolCall, error) {
	start := time.Now()

	chunks, err := r.provider.Complete(ctx, &CompletionRequest{
		Model:     r.config.Model,
		System:    system,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: r.config.MaxTokens,
	})
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var toolCalls []models.ToolCall
	var outputText string

	for chunk := range chunks {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return "", nil, chunk.Error
		}
		if chunk.Text != "" {
			sb.WriteString(chunk.Text)
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done && chunk.OutputText != "" {
			outputText = chunk.OutputText
		}
	}

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	if r.metrics != nil {
		r.metrics.LLMRequestDuration.WithLabelValues(r.provider.Name(), r.config.Model).Observe(time.Since(start).Seconds())
	}

	text := outputText
	if text == "" {
		text = sb.String()
	}
	return text, toolCalls, nil
}

func (r *Runner) notify(update StatusUpdate) {
	if r.onStatus == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("status callback panicked", "panic", rec, "status", string(update.Status))
		}
	}()
	r.onStatus(update)
}
