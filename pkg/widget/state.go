package widget

import (
	"github.com/go-go-golems/support-widget/pkg/escalation"
	"github.com/go-go-golems/support-widget/pkg/transcript"
	"github.com/go-go-golems/support-widget/pkg/upload"
)

// State is a read-only snapshot for the presentation layer.
type State struct {
	AssistantName string
	Ready         bool
	Busy          bool
	SessionID     string
	ClientID      string
	OrderID       string
	Messages      []transcript.Message
	// Escalation is the open request, if any. Plain input is disabled while
	// it is set.
	Escalation *escalation.Request
	Upload     *upload.Binding

	InputEnabled bool
	CanClear     bool
}

// State returns the current snapshot. While an operation is running it
// returns the snapshot taken at the operation's last consistent point, so a
// half-applied clear or recovery is never observed.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy && c.view != nil {
		return c.view.clone()
	}
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	st := State{
		AssistantName: c.cfg.AssistantName,
		Busy:          c.busy,
		OrderID:       c.orderID,
		Messages:      c.messages.Messages(),
	}
	if s := c.sessions.Current(); s != nil {
		st.Ready = true
		st.SessionID = s.ID
		st.ClientID = s.ClientID
	}
	if c.pending != nil {
		cp := *c.pending
		st.Escalation = &cp
	}
	if b, ok := c.uploads.Binding(); ok {
		st.Upload = &b
	}
	st.InputEnabled = st.Ready && !st.Busy && st.Escalation == nil
	st.CanClear = st.Ready && !st.Busy && len(st.Messages) > 0
	return st
}

func (s State) clone() State {
	cp := s
	cp.Messages = append([]transcript.Message(nil), s.Messages...)
	if s.Escalation != nil {
		e := *s.Escalation
		cp.Escalation = &e
	}
	if s.Upload != nil {
		u := *s.Upload
		cp.Upload = &u
	}
	return cp
}
