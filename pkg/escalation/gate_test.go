package escalation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGate_AnalysisIntent(t *testing.T) {
	g := NewGate(DefaultMarkers())
	d := g.Evaluate(nil, Signal{
		Query:         "my order never arrived",
		AssistantText: "I will escalate this for you.",
		Intent:        "escalate",
		OrderID:       "A-1",
		TriggerIndex:  3,
		Transcript:    "You: my order never arrived\nAIRA: I will escalate this for you.",
	})
	require.True(t, d.Opened())
	require.Equal(t, SourceAnalysis, d.Source)
	require.Equal(t, "escalate", d.Request.Category)
	require.Equal(t, 3, d.Request.TriggerMessageIndex)
	require.Equal(t, "my order never arrived", d.Request.Draft.OriginatingQuery)
	require.Equal(t, "A-1", d.Request.Draft.OrderID)
	require.Equal(t, "escalate", d.Request.Draft.Intent)
	require.Contains(t, d.Request.Draft.ConversationTranscript, "AIRA:")
	require.Empty(t, d.Request.Draft.ContactEmail)
}

func TestGate_NeedsTicketWithoutIntent(t *testing.T) {
	d := NewGate(nil).Evaluate(nil, Signal{NeedsTicket: true})
	require.True(t, d.Opened())
	require.Equal(t, CategoryNeedsTicket, d.Request.Category)
}

func TestGate_ReportIssueIntent(t *testing.T) {
	d := NewGate(nil).Evaluate(nil, Signal{Intent: "report_issue"})
	require.True(t, d.Opened())
	require.Equal(t, IntentReportIssue, d.Request.Category)
}

func TestGate_OtherIntentDoesNotTrigger(t *testing.T) {
	d := NewGate(nil).Evaluate(nil, Signal{Intent: "product_info", AssistantText: "Here are the specs."})
	require.False(t, d.Opened())
	require.False(t, d.Suppressed)
}

func TestGate_AnalysisBeatsKeyword(t *testing.T) {
	d := NewGate(DefaultMarkers()).Evaluate(nil, Signal{
		Intent:        "report_issue",
		AssistantText: "That sounds frustrating.",
	})
	require.Equal(t, SourceAnalysis, d.Source)
	require.Equal(t, IntentReportIssue, d.Request.Category)
}

func TestGate_KeywordFallback(t *testing.T) {
	g := NewGate(DefaultMarkers())

	d := g.Evaluate(nil, Signal{AssistantText: "I understand this is FRUSTRATING."})
	require.True(t, d.Opened())
	require.Equal(t, SourceKeyword, d.Source)
	require.Equal(t, "frustrating", d.Request.Category)

	d = g.Evaluate(nil, Signal{AssistantText: "Your account has been flagged for review."})
	require.True(t, d.Opened())
	require.Equal(t, "vip", d.Request.Category)
}

func TestGate_NoMarkersDisablesFallback(t *testing.T) {
	d := NewGate([]Marker{{Keyword: "  "}}).Evaluate(nil, Signal{AssistantText: "so frustrating"})
	require.False(t, d.Opened())
}

func TestGate_MarkerCategoryDefaultsToKeyword(t *testing.T) {
	g := NewGate([]Marker{{Keyword: "Refund"}})
	require.Equal(t, []Marker{{Keyword: "refund", Category: "refund"}}, g.Markers())
}

func TestGate_OpenRequestSuppresses(t *testing.T) {
	g := NewGate(DefaultMarkers())
	first := g.Evaluate(nil, Signal{Intent: "escalate"})
	require.True(t, first.Opened())

	second := g.Evaluate(first.Request, Signal{NeedsTicket: true, AssistantText: "frustrating"})
	require.False(t, second.Opened())
	require.True(t, second.Suppressed)
}
