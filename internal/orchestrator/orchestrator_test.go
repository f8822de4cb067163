package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/dispatch/internal/agent"
	"github.com/haasonsaas/dispatch/internal/routing"
	"github.com/haasonsaas/dispatch/pkg/models"
)

type fakeContextProvider struct {
	calls    int
	err      error
	loaded   *Context
	lastOpts Options
}

func (f *fakeContextProvider) LoadContext(_ context.Context, messages []models.Message, opts Options) (*Context, error) {
	f.calls++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.loaded != nil {
		return f.loaded, nil
	}
	return &Context{Messages: messages}, nil
}

type fakeRunner struct {
	calls         int
	lastSystem    string
	lastAllowlist []string
	result        *agent.RunResult
	err           error
}

func (f *fakeRunner) Run(_ context.Context, system string, messages []models.Message, allowlist []string) (*agent.RunResult, error) {
	f.calls++
	f.lastSystem = system
	f.lastAllowlist = allowlist
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &agent.RunResult{Text: "loop reply", Messages: messages}, nil
}

type fakePromptBuilder struct {
	system string
	err    error
}

func (f *fakePromptBuilder) BuildPrompt(loaded *Context, _ time.Time) (string, []models.Message, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.system, loaded.Messages, nil
}

type fakeFormatter struct {
	err   error
	calls int
}

func (f *fakeFormatter) Format(text string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return strings.ToUpper(text), nil
}

func newTestMatcher(t *testing.T, defs ...routing.HandlerDefinition) *routing.Matcher {
	t.Helper()
	if len(defs) == 0 {
		defs = []routing.HandlerDefinition{
			{
				ID:       "incident-triage",
				Name:     "Incident triage",
				Keywords: []string{"incident", "ticket"},
				Tools:    []string{"get_ticket", "search_tickets"},
			},
		}
	}
	registry, err := routing.NewRegistry(defs...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return routing.NewMatcher(registry, nil, routing.DefaultMatcherConfig(), nil, nil)
}

func userMessage(text string) models.Message {
	return models.Message{Role: models.RoleUser, Content: text}
}

func TestGenerateRunsFullPipeline(t *testing.T) {
	provider := &fakeContextProvider{}
	runner := &fakeRunner{}
	formatter := &fakeFormatter{}
	o := New(Config{
		ContextProvider: provider,
		Matcher:         newTestMatcher(t),
		Runner:          runner,
		PromptBuilder:   &fakePromptBuilder{system: "You are a QA analyst."},
		Formatter:       formatter,
	})

	msgs := []models.Message{userMessage("please look at incident SCS0001234")}
	got, err := o.Generate(context.Background(), msgs, Options{ChannelID: "C123"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "LOOP REPLY" {
		t.Errorf("expected formatted reply, got %q", got)
	}
	if runner.lastSystem != "You are a QA analyst." {
		t.Errorf("system prompt not threaded through: %q", runner.lastSystem)
	}
	if len(runner.lastAllowlist) == 0 {
		t.Fatal("expected a non-empty allowlist")
	}
	for _, name := range runner.lastAllowlist {
		if name != "get_ticket" && name != "search_tickets" {
			t.Errorf("unexpected tool in allowlist: %q", name)
		}
	}
}

func TestGenerateStageFailureInvokesLegacyWithOriginalInputs(t *testing.T) {
	provider := &fakeContextProvider{err: errors.New("slack unavailable")}
	var legacyMsgs []models.Message
	var legacyOpts Options
	o := New(Config{
		ContextProvider: provider,
		Matcher:         newTestMatcher(t),
		Runner:          &fakeRunner{},
		Legacy: func(_ context.Context, messages []models.Message, opts Options) (string, error) {
			legacyMsgs = messages
			legacyOpts = opts
			return "legacy reply", nil
		},
	})

	msgs := []models.Message{userMessage("incident help")}
	got, err := o.Generate(context.Background(), msgs, Options{ChannelID: "C9", ThreadTS: "1724.5"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "legacy reply" {
		t.Errorf("expected legacy reply, got %q", got)
	}
	if len(legacyMsgs) != 1 || legacyMsgs[0].Content != "incident help" {
		t.Errorf("legacy did not receive original messages: %+v", legacyMsgs)
	}
	if legacyOpts.ChannelID != "C9" || legacyOpts.ThreadTS != "1724.5" {
		t.Errorf("legacy did not receive original options: %+v", legacyOpts)
	}
}

func TestGenerateNoLegacyPropagatesError(t *testing.T) {
	runErr := errors.New("provider exploded")
	o := New(Config{
		Matcher: newTestMatcher(t),
		Runner:  &fakeRunner{err: runErr},
	})

	_, err := o.Generate(context.Background(), []models.Message{userMessage("incident SCS0000001")}, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, runErr) {
		t.Errorf("expected wrapped runner error, got %v", err)
	}
}

func TestGenerateFormatterFailureDoesNotReloadContext(t *testing.T) {
	provider := &fakeContextProvider{}
	formatter := &fakeFormatter{err: errors.New("bad markdown")}
	o := New(Config{
		ContextProvider: provider,
		Matcher:         newTestMatcher(t),
		Runner:          &fakeRunner{},
		Formatter:       formatter,
		Legacy: func(_ context.Context, _ []models.Message, _ Options) (string, error) {
			return "legacy reply", nil
		},
	})

	got, err := o.Generate(context.Background(), []models.Message{userMessage("search tickets about VPN")}, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "legacy reply" {
		t.Errorf("expected legacy reply, got %q", got)
	}
	if provider.calls != 1 {
		t.Errorf("context loaded %d times, want exactly once", provider.calls)
	}
}

func TestGeneratePendingRequirementsSkipLoop(t *testing.T) {
	runner := &fakeRunner{}
	matcher := newTestMatcher(t, routing.HandlerDefinition{
		ID:       "uat-clone-check",
		Name:     "UAT clone check",
		Keywords: []string{"clone"},
		Tools:    []string{"check_clone_date"},
		Requirements: []routing.ContextRequirement{
			{
				ID:     "target-instance",
				Prompt: "Which instance should I check the clone date for?",
				Satisfied: func(_ routing.SignalSet, _ routing.RequestMeta) bool {
					return false
				},
			},
		},
	})
	o := New(Config{
		Matcher: matcher,
		Runner:  runner,
	})

	got, err := o.Generate(context.Background(), []models.Message{userMessage("when was the last clone?")}, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if runner.calls != 0 {
		t.Errorf("loop ran %d times, want 0", runner.calls)
	}
	if !strings.Contains(got, "Which instance should I check the clone date for?") {
		t.Errorf("expected pending requirement prompt in response, got %q", got)
	}
}

func TestGenerateWithoutMatcherRunsUnrouted(t *testing.T) {
	runner := &fakeRunner{result: &agent.RunResult{Text: "plain reply"}}
	o := New(Config{Runner: runner})

	got, err := o.Generate(context.Background(), []models.Message{userMessage("hello")}, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "plain reply" {
		t.Errorf("got %q", got)
	}
	if runner.lastAllowlist != nil {
		t.Errorf("expected nil allowlist, got %v", runner.lastAllowlist)
	}
}
