package routing

import (
	"testing"

	"github.com/haasonsaas/dispatch/pkg/models"
)

func userMsg(text string) models.Message {
	return models.Message{Role: models.RoleUser, Content: text}
}

func TestExtractSignalsTicketID(t *testing.T) {
	extraction := ExtractSignals([]models.Message{
		userMsg("Can you triage SCS0001234 for me?"),
	}, RequestMeta{})

	if !extraction.Signals.Has(SignalTicketID) {
		t.Fatal("expected ticket-id signal")
	}
	if len(extraction.TicketIDs) != 1 || extraction.TicketIDs[0] != "SCS0001234" {
		t.Fatalf("unexpected ticket ids %v", extraction.TicketIDs)
	}
}

func TestExtractSignalsIgnoresSystemMessages(t *testing.T) {
	extraction := ExtractSignals([]models.Message{
		{Role: models.RoleSystem, Content: "ticket INC0099999 router"},
		userMsg("hello there"),
	}, RequestMeta{})

	if extraction.Signals.Has(SignalTicketID) {
		t.Fatal("system message content must not produce signals")
	}
	if extraction.Corpus != "hello there" {
		t.Fatalf("unexpected corpus %q", extraction.Corpus)
	}
}

func TestExtractSignalsBlockContent(t *testing.T) {
	msg := models.Message{
		Role: models.RoleAssistant,
		Blocks: []models.ContentBlock{
			{Type: "text", Text: "The BGP session on the core router flapped"},
			{Type: "data"},
		},
	}
	extraction := ExtractSignals([]models.Message{msg}, RequestMeta{})

	if !extraction.Signals.Has(SignalNetworkDevice) {
		t.Fatal("expected network-device signal from block text")
	}
}

func TestExtractSignalsMetadata(t *testing.T) {
	extraction := ExtractSignals([]models.Message{userMsg("please look into this")}, RequestMeta{
		TicketID: "CHG0004567",
		Flags:    map[string]bool{"priority": true},
	})

	for _, sig := range []Signal{SignalCallerTicket, SignalTicketID, SignalPriorityFlag} {
		if !extraction.Signals.Has(sig) {
			t.Fatalf("expected %v from metadata", sig)
		}
	}
}

func TestExtractSignalsFeedback(t *testing.T) {
	extraction := ExtractSignals([]models.Message{userMsg("Thanks, great job on that fix!")}, RequestMeta{})
	if !extraction.Signals.Has(SignalFeedbackIntent) {
		t.Fatal("expected feedback-intent signal")
	}
}

func TestExtractSignalsDeterministic(t *testing.T) {
	msgs := []models.Message{userMsg("triage SCS0001234 on the uat switch")}
	a := ExtractSignals(msgs, RequestMeta{})
	b := ExtractSignals(msgs, RequestMeta{})

	if a.Corpus != b.Corpus {
		t.Fatal("corpus must be deterministic")
	}
	if len(a.Signals) != len(b.Signals) {
		t.Fatal("signal sets must be deterministic")
	}
}
