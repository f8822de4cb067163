package routing

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/dispatch/pkg/models"
)

// Signal is a boolean fact derived from request content or metadata.
type Signal string

const (
	// SignalTicketID fires when the corpus contains a ticket identifier
	// such as SCS0001234 or INC0012345.
	SignalTicketID Signal = "has-ticket-id"

	// SignalNetworkDevice fires when the corpus mentions network
	// equipment vocabulary.
	SignalNetworkDevice Signal = "mentions-network-device"

	// SignalFeedbackIntent fires when the message reads as feedback
	// rather than a work request.
	SignalFeedbackIntent Signal = "feedback-intent"

	// SignalCallerTicket fires when the caller supplied a ticket
	// identifier explicitly in request metadata.
	SignalCallerTicket Signal = "caller-ticket-id"

	// SignalPriorityFlag fires when request metadata carries a truthy
	// priority flag.
	SignalPriorityFlag Signal = "priority-flag"
)

// SignalSet is an unordered set of detected signals.
type SignalSet map[Signal]struct{}

// Has reports whether the signal was detected.
func (s SignalSet) Has(sig Signal) bool {
	_, ok := s[sig]
	return ok
}

// Add records a detected signal.
func (s SignalSet) Add(sig Signal) {
	s[sig] = struct{}{}
}

// List returns the detected signals in unspecified order.
func (s SignalSet) List() []Signal {
	out := make([]Signal, 0, len(s))
	for sig := range s {
		out = append(out, sig)
	}
	return out
}

// RequestMeta carries caller-supplied request metadata alongside the
// conversation messages.
type RequestMeta struct {
	// TicketID is an explicit ticket identifier supplied by the caller.
	TicketID string

	// ChannelID and ThreadTS identify the inbound conversation.
	ChannelID string
	ThreadTS  string

	// Fields holds named string metadata (release version, instance name).
	Fields map[string]string

	// Flags holds named boolean metadata.
	Flags map[string]bool
}

// Field returns a trimmed metadata field value, or "".
func (m RequestMeta) Field(name string) string {
	return strings.TrimSpace(m.Fields[name])
}

var (
	// ticketIDPattern matches 2-6 uppercase letters followed by 4+ digits.
	ticketIDPattern = regexp.MustCompile(`\b[A-Z]{2,6}[0-9]{4,}\b`)

	feedbackPattern = regexp.MustCompile(`(?i)\b(feedback|thank you|thanks|great job|well done|nice work)\b`)
)

var networkDeviceTerms = []string{
	"router", "switch", "firewall", "access point", "interface",
	"bgp", "ospf", "vlan", "uplink", "port-channel", "chassis",
}

// Extraction is the result of scanning a request: the flattened corpus and
// the set of detected signals. Deterministic given identical input.
type Extraction struct {
	// Corpus is the lower-cased, newline-joined text of all non-system
	// messages.
	Corpus string

	// Signals is the set of detected signals.
	Signals SignalSet

	// TicketIDs lists the ticket identifiers found, in order of first
	// appearance.
	TicketIDs []string
}

// ExtractSignals derives signals from the message corpus and request
// metadata. Content is flattened from any block shape: plain strings, typed
// text blocks, or stringified unknown blocks.
func ExtractSignals(messages []models.Message, meta RequestMeta) Extraction {
	var raw strings.Builder
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		text := msg.Text()
		if text == "" {
			continue
		}
		if raw.Len() > 0 {
			raw.WriteByte('\n')
		}
		raw.WriteString(text)
	}

	rawCorpus := raw.String()
	corpus := strings.ToLower(rawCorpus)
	signals := make(SignalSet)

	// Ticket identifiers keep their case; the pattern runs on the raw text.
	ticketIDs := dedupeStrings(ticketIDPattern.FindAllString(rawCorpus, -1))
	if len(ticketIDs) > 0 {
		signals.Add(SignalTicketID)
	}

	for _, term := range networkDeviceTerms {
		if strings.Contains(corpus, term) {
			signals.Add(SignalNetworkDevice)
			break
		}
	}

	if feedbackPattern.MatchString(rawCorpus) {
		signals.Add(SignalFeedbackIntent)
	}

	if strings.TrimSpace(meta.TicketID) != "" {
		signals.Add(SignalCallerTicket)
		signals.Add(SignalTicketID)
	}
	if meta.Flags["priority"] {
		signals.Add(SignalPriorityFlag)
	}

	return Extraction{
		Corpus:    corpus,
		Signals:   signals,
		TicketIDs: ticketIDs,
	}
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
