// Package ticket turns an open escalation into a support ticket.
package ticket

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/support-widget/pkg/chatapi"
	"github.com/go-go-golems/support-widget/pkg/escalation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrSubmissionPending = errors.New("ticket: a submission is already in flight")

type Creator interface {
	CreateTicket(ctx context.Context, req chatapi.CreateTicketRequest) (*chatapi.CreateTicketResponse, error)
}

type Result struct {
	TicketID string
	Email    string
}

// Submitter allows one in-flight submission at a time.
type Submitter struct {
	api Creator

	mu      sync.Mutex
	pending bool
}

func NewSubmitter(api Creator) *Submitter {
	return &Submitter{api: api}
}

func (s *Submitter) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Submit validates email and posts req's draft. The caller keeps req open
// on any error.
func (s *Submitter) Submit(ctx context.Context, req escalation.Request, email string) (*Result, error) {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return nil, ErrSubmissionPending
	}
	s.pending = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
	}()

	draft := req.Draft
	draft.ContactEmail = email
	resp, err := s.api.CreateTicket(ctx, NewCreateRequest(draft, req.Category))
	if err != nil {
		log.Warn().Err(err).Str("category", req.Category).Msg("ticket creation failed")
		return nil, err
	}
	log.Info().Str("ticket_id", resp.TicketID.String()).Str("category", req.Category).Msg("ticket created")
	return &Result{TicketID: resp.TicketID.String(), Email: email}, nil
}

// NewCreateRequest maps a draft onto the create-ticket payload. Category is
// sent as `type`; the draft intent as `intent`.
func NewCreateRequest(d escalation.TicketDraft, category string) chatapi.CreateTicketRequest {
	return chatapi.CreateTicketRequest{
		Email:               d.ContactEmail,
		Query:               d.OriginatingQuery,
		ConversationHistory: d.ConversationTranscript,
		OrderID:             d.OrderID,
		Type:                category,
		Intent:              d.Intent,
	}
}

// ConfirmationMessage is the system message appended once a ticket exists.
func ConfirmationMessage(ticketID string) string {
	msg := "Your ticket has been successfully created and shared with the respective team."
	if ticketID != "" {
		msg += " Ticket reference: " + ticketID + "."
	}
	return msg + " Feel free to ask if there's anything else I can help you with."
}
