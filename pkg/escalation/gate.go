// Package escalation decides when a conversation has to be handed over to a
// human-support ticket.
package escalation

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	IntentReportIssue = "report_issue"
	IntentEscalate    = "escalate"

	// CategoryNeedsTicket is used when the server flags needs_ticket without
	// naming an intent.
	CategoryNeedsTicket = "needs_ticket"
)

// Marker is a keyword fallback: an assistant reply containing Keyword
// (case-insensitive) opens a request tagged Category.
type Marker struct {
	Keyword  string `yaml:"keyword"`
	Category string `yaml:"category"`
}

// DefaultMarkers are the phrases the assistant uses when it detects a
// frustrated customer or a flagged account.
func DefaultMarkers() []Marker {
	return []Marker{
		{Keyword: "frustrating", Category: "frustrating"},
		{Keyword: "flagged", Category: "vip"},
	}
}

// TicketDraft is fixed when the request opens, except ContactEmail which the
// user supplies at submission.
type TicketDraft struct {
	OriginatingQuery       string
	ConversationTranscript string
	OrderID                string
	Intent                 string
	ContactEmail           string
}

type Request struct {
	TriggerMessageIndex int
	Category            string
	Draft               TicketDraft
	OpenedAt            time.Time
}

// Signal is everything the gate looks at for one answered query.
type Signal struct {
	Query         string
	AssistantText string
	NeedsTicket   bool
	Intent        string
	OrderID       string
	// TriggerIndex is the transcript index of the assistant reply.
	TriggerIndex int
	// Transcript is the rendered conversation including the reply.
	Transcript string
}

type Source string

const (
	SourceNone     Source = ""
	SourceAnalysis Source = "analysis"
	SourceKeyword  Source = "keyword"
)

type Decision struct {
	Request *Request
	Source  Source
	// Suppressed is set when a trigger matched but a request was already open.
	Suppressed bool
}

func (d Decision) Opened() bool { return d.Request != nil }

type Gate struct {
	markers []Marker
	now     func() time.Time
}

// NewGate keeps markers with a non-empty keyword; an empty list disables the
// keyword fallback.
func NewGate(markers []Marker) *Gate {
	g := &Gate{now: time.Now}
	for _, m := range markers {
		kw := strings.ToLower(strings.TrimSpace(m.Keyword))
		if kw == "" {
			continue
		}
		cat := strings.TrimSpace(m.Category)
		if cat == "" {
			cat = kw
		}
		g.markers = append(g.markers, Marker{Keyword: kw, Category: cat})
	}
	return g
}

func (g *Gate) Markers() []Marker {
	cp := make([]Marker, len(g.markers))
	copy(cp, g.markers)
	return cp
}

// Evaluate applies the trigger policy: an open request suppresses
// everything, structured analysis wins over keywords, first match wins.
func (g *Gate) Evaluate(open *Request, sig Signal) Decision {
	category, source := g.match(sig)
	if source == SourceNone {
		return Decision{}
	}
	if open != nil {
		log.Debug().
			Str("category", category).
			Str("open_category", open.Category).
			Msg("escalation trigger suppressed, request already open")
		return Decision{Source: source, Suppressed: true}
	}

	req := &Request{
		TriggerMessageIndex: sig.TriggerIndex,
		Category:            category,
		Draft: TicketDraft{
			OriginatingQuery:       sig.Query,
			ConversationTranscript: sig.Transcript,
			OrderID:                sig.OrderID,
			Intent:                 category,
		},
		OpenedAt: g.now(),
	}
	log.Info().
		Str("category", category).
		Str("source", string(source)).
		Int("trigger_index", sig.TriggerIndex).
		Msg("escalation request opened")
	return Decision{Request: req, Source: source}
}

func (g *Gate) match(sig Signal) (string, Source) {
	intent := strings.ToLower(strings.TrimSpace(sig.Intent))
	if sig.NeedsTicket || intent == IntentReportIssue || intent == IntentEscalate {
		if intent == "" {
			intent = CategoryNeedsTicket
		}
		return intent, SourceAnalysis
	}
	text := strings.ToLower(sig.AssistantText)
	for _, m := range g.markers {
		if strings.Contains(text, m.Keyword) {
			return m.Category, SourceKeyword
		}
	}
	return "", SourceNone
}
