package routing

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/haasonsaas/dispatch/internal/health"
	"github.com/haasonsaas/dispatch/internal/observability"
	"github.com/haasonsaas/dispatch/pkg/models"
)

// MatcherConfig holds the scoring weights and the shortlist size.
type MatcherConfig struct {
	// ShortlistSize caps the number of matches returned. Default: 4.
	ShortlistSize int

	// KeywordWeight is added per matched keyword. Default: 2.0.
	KeywordWeight float64

	// UtteranceWeight is added per matched sample utterance. Default: 1.0.
	UtteranceWeight float64

	// DegradedDamping multiplies the score of degraded handlers. Default: 0.5.
	DegradedDamping float64

	// MissingSignalPenalty is subtracted per absent required signal. Default: 3.0.
	MissingSignalPenalty float64

	// SignalBonus is added per present required signal. Default: 1.0.
	SignalBonus float64

	// MissingRequirementPenalty is subtracted per unmet context
	// requirement. Default: 1.5.
	MissingRequirementPenalty float64

	// RequirementBonus is added per satisfied context requirement. Default: 0.5.
	RequirementBonus float64
}

// DefaultMatcherConfig returns the default scoring configuration.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		ShortlistSize:             4,
		KeywordWeight:             2.0,
		UtteranceWeight:           1.0,
		DegradedDamping:           0.5,
		MissingSignalPenalty:      3.0,
		SignalBonus:               1.0,
		MissingRequirementPenalty: 1.5,
		RequirementBonus:          0.5,
	}
}

func sanitizeMatcherConfig(cfg MatcherConfig) MatcherConfig {
	defaults := DefaultMatcherConfig()
	if cfg.ShortlistSize <= 0 {
		cfg.ShortlistSize = defaults.ShortlistSize
	}
	if cfg.KeywordWeight <= 0 {
		cfg.KeywordWeight = defaults.KeywordWeight
	}
	if cfg.UtteranceWeight <= 0 {
		cfg.UtteranceWeight = defaults.UtteranceWeight
	}
	if cfg.DegradedDamping <= 0 || cfg.DegradedDamping >= 1 {
		cfg.DegradedDamping = defaults.DegradedDamping
	}
	if cfg.MissingSignalPenalty <= 0 {
		cfg.MissingSignalPenalty = defaults.MissingSignalPenalty
	}
	if cfg.SignalBonus <= 0 {
		cfg.SignalBonus = defaults.SignalBonus
	}
	if cfg.MissingRequirementPenalty <= 0 {
		cfg.MissingRequirementPenalty = defaults.MissingRequirementPenalty
	}
	if cfg.RequirementBonus <= 0 {
		cfg.RequirementBonus = defaults.RequirementBonus
	}
	return cfg
}

// HealthSource reports the effective health status of a handler. Satisfied
// by *health.Monitor; tests provide stubs.
type HealthSource interface {
	EffectiveStatus(handlerID string) health.Status
}

// Request is one routing request: the conversation plus caller metadata.
type Request struct {
	Messages []models.Message
	Meta     RequestMeta
}

// HandlerMatch is a scored candidate handler for one request. Matches are
// created fresh per request and never persisted.
type HandlerMatch struct {
	Handler             *HandlerDefinition `json:"-"`
	HandlerID           string             `json:"handler_id"`
	Score               float64            `json:"score"`
	MatchedKeywords     []string           `json:"matched_keywords,omitempty"`
	MissingSignals      []Signal           `json:"missing_signals,omitempty"`
	MissingRequirements []string           `json:"missing_requirements,omitempty"`
}

// Matcher scores handlers against a request and returns the ranked
// shortlist. Dependencies are injected at construction.
type Matcher struct {
	registry *Registry
	health   HealthSource
	config   MatcherConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewMatcher creates a matcher over the given registry. The health source
// and metrics may be nil.
func NewMatcher(registry *Registry, healthSource HealthSource, cfg MatcherConfig, logger *slog.Logger, metrics *observability.Metrics) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		registry: registry,
		health:   healthSource,
		config:   sanitizeMatcherConfig(cfg),
		logger:   logger,
		metrics:  metrics,
	}
}

// Match scores every registered handler against the request and returns up
// to ShortlistSize matches, ranked by score. A match with score <= 0 never
// appears; handlers whose health reads down are excluded outright.
func (m *Matcher) Match(req Request) []HandlerMatch {
	extraction := ExtractSignals(req.Messages, req.Meta)
	return m.MatchExtraction(extraction, req.Meta)
}

// MatchExtraction scores handlers against an already-extracted signal set,
// so callers that need the extraction for other purposes only scan once.
func (m *Matcher) MatchExtraction(extraction Extraction, meta RequestMeta) []HandlerMatch {
	handlers := m.registry.All()
	matches := make([]HandlerMatch, 0, len(handlers))

	for i := range handlers {
		h := &handlers[i]
		match, ok := m.score(h, extraction, meta)
		if !ok {
			continue
		}
		matches = append(matches, match)
	}

	// Stable sort keeps registry declaration order for equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > m.config.ShortlistSize {
		matches = matches[:m.config.ShortlistSize]
	}

	if m.metrics != nil {
		m.metrics.RoutingShortlistSize.Observe(float64(len(matches)))
		for _, match := range matches {
			m.metrics.RoutingDecisions.WithLabelValues(match.HandlerID).Inc()
		}
	}

	return matches
}

func (m *Matcher) score(h *HandlerDefinition, extraction Extraction, meta RequestMeta) (HandlerMatch, bool) {
	match := HandlerMatch{Handler: h, HandlerID: h.ID}
	score := h.BaseWeight

	for _, kw := range h.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(extraction.Corpus, strings.ToLower(kw)) {
			score += m.config.KeywordWeight
			match.MatchedKeywords = append(match.MatchedKeywords, kw)
		}
	}
	utteranceHits := 0
	for _, u := range h.Utterances {
		if u == "" {
			continue
		}
		if strings.Contains(extraction.Corpus, strings.ToLower(u)) {
			score += m.config.UtteranceWeight
			utteranceHits++
		}
	}

	satisfiedSignals := 0
	for _, sig := range h.RequiredSignals {
		if extraction.Signals.Has(sig) {
			score += m.config.SignalBonus
			satisfiedSignals++
		} else {
			score -= m.config.MissingSignalPenalty
			match.MissingSignals = append(match.MissingSignals, sig)
		}
	}

	for _, req := range h.Requirements {
		if req.Satisfied != nil && req.Satisfied(extraction.Signals, meta) {
			score += m.config.RequirementBonus
		} else {
			score -= m.config.MissingRequirementPenalty
			match.MissingRequirements = append(match.MissingRequirements, req.ID)
		}
	}

	// Health applies after the signal and requirement arithmetic so no
	// later bonus can resurrect an excluded handler.
	status := health.StatusHealthy
	if m.health != nil {
		status = m.health.EffectiveStatus(h.ID)
	}
	if m.metrics != nil {
		m.metrics.HandlerHealth.WithLabelValues(h.ID).Set(healthGaugeValue(status))
	}
	switch status {
	case health.StatusDown:
		return HandlerMatch{}, false
	case health.StatusDegraded:
		score *= m.config.DegradedDamping
	case health.StatusHealthy:
		// No adjustment.
	}

	// A handler with no textual match and no satisfied required signal is
	// riding on base weight alone; drop it so unrelated requests stay
	// unrouted.
	if len(match.MatchedKeywords) == 0 && utteranceHits == 0 && satisfiedSignals == 0 {
		return HandlerMatch{}, false
	}
	if score <= 0 {
		return HandlerMatch{}, false
	}

	match.Score = score
	return match, true
}

func healthGaugeValue(status health.Status) float64 {
	switch status {
	case health.StatusDegraded:
		return 1
	case health.StatusDown:
		return 2
	default:
		return 0
	}
}
