package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/dispatch/internal/observability"
	"github.com/haasonsaas/dispatch/pkg/models"
)

// ExecutorConfig configures tool execution behavior.
type ExecutorConfig struct {
	// Concurrency is the maximum number of concurrent tool executions
	// within one step. Default: 4.
	Concurrency int

	// PerToolTimeout bounds individual tool executions. Default: 30s.
	PerToolTimeout time.Duration
}

// DefaultExecutorConfig returns sensible defaults for tool execution.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Concurrency:    4,
		PerToolTimeout: 30 * time.Second,
	}
}

// Executor runs the tool calls of a single step with isolated failure
// handling: an unknown tool, a returned error, a panic, or a timeout each
// produce an error-shaped result for that call ID and never abort the run.
type Executor struct {
	registry *ToolRegistry
	config   ExecutorConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewExecutor creates a tool executor over the given registry.
func NewExecutor(registry *ToolRegistry, config ExecutorConfig, logger *slog.Logger, metrics *observability.Metrics) *Executor {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// ExecuteAll runs the step's tool calls concurrently, bounded by the
// configured concurrency, and returns once every call has a result. The
// join is a barrier: the loop's next step depends on the complete result
// set. Results are returned in input order.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))

	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = models.ToolResult{
					ToolCallID: call.ID,
					Content:    `{"error": "tool execution canceled"}`,
					IsError:    true,
				}
				return
			}

			results[idx] = e.executeOne(ctx, call)
		}(i, call)
	}

	wg.Wait()
	return results
}

// executeOne runs a single tool call with timeout and panic isolation.
func (e *Executor) executeOne(ctx context.Context, call models.ToolCall) models.ToolResult {
	start := time.Now()
	result := e.executeWithTimeout(ctx, call)

	if e.metrics != nil {
		status := "success"
		if result.IsError {
			status = "error"
		}
		e.metrics.ToolExecutionCounter.WithLabelValues(call.Name, status).Inc()
		e.metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}
	return result
}

func (e *Executor) executeWithTimeout(ctx context.Context, call models.ToolCall) models.ToolResult {
	type execResult struct {
		output *ToolOutput
		err    error
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
	defer cancel()

	resultChan := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				select {
				case resultChan <- execResult{err: fmt.Errorf("tool panicked: %v", r)}:
				default:
				}
			}
		}()
		output, err := e.registry.Execute(toolCtx, call.Name, call.Input)
		select {
		case resultChan <- execResult{output: output, err: err}:
		default:
			e.logger.Warn("tool completed after timeout, result discarded",
				"tool", call.Name,
				"tool_call_id", call.ID,
			)
		}
	}()

	select {
	case <-toolCtx.Done():
		content := `{"error": "tool execution canceled"}`
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			content = fmt.Sprintf(`{"error": "tool execution timed out after %v"}`, e.config.PerToolTimeout)
		}
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    content,
			IsError:    true,
		}
	case res := <-resultChan:
		if res.err != nil {
			return models.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf(`{"error": %q}`, res.err.Error()),
				IsError:    true,
			}
		}
		if res.output == nil {
			return models.ToolResult{
				ToolCallID: call.ID,
				Content:    `{"error": "tool produced no output"}`,
				IsError:    true,
			}
		}
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    res.output.Content,
			IsError:    res.output.IsError,
		}
	}
}
