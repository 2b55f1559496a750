package chatapi

import (
	"bytes"
	"encoding/json"
	"strings"
)

type StartSessionRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

type StartSessionResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatHistoryResponse struct {
	Messages []HistoryMessage `json:"messages"`
}

type QueryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	ClientID  string `json:"client_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

// Analysis is the structured classification the server attaches to some
// query responses.
type Analysis struct {
	NeedsTicket bool   `json:"needs_ticket"`
	Intent      string `json:"intent"`
}

type QueryResponse struct {
	Response string    `json:"response"`
	Analysis *Analysis `json:"analysis,omitempty"`
	OrderID  FlexID    `json:"order_id,omitempty"`
}

type ClearSessionRequest struct {
	SessionID string `json:"session_id"`
}

type CreateTicketRequest struct {
	Email               string `json:"email"`
	Query               string `json:"query"`
	ConversationHistory string `json:"conversation_history"`
	OrderID             string `json:"order_id,omitempty"`
	Type                string `json:"type,omitempty"`
	Intent              string `json:"intent,omitempty"`
}

type CreateTicketResponse struct {
	Status   string `json:"status,omitempty"`
	OK       bool   `json:"ok,omitempty"`
	TicketID FlexID `json:"ticket_id,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Succeeded accepts both the `status: "success"` and the `ok: true` variants.
func (r *CreateTicketResponse) Succeeded() bool {
	if r == nil {
		return false
	}
	return r.OK || strings.EqualFold(r.Status, "success")
}

type UploadResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// FlexID decodes identifiers the server sends either as strings or numbers.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }
