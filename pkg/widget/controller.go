// Package widget is the support-widget controller: the single owner of the
// session, the transcript, the open escalation request and the staged upload.
// Presentation layers drive it and render State snapshots.
package widget

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/support-widget/pkg/chatapi"
	"github.com/go-go-golems/support-widget/pkg/escalation"
	"github.com/go-go-golems/support-widget/pkg/notify"
	"github.com/go-go-golems/support-widget/pkg/persistence/identity"
	"github.com/go-go-golems/support-widget/pkg/session"
	"github.com/go-go-golems/support-widget/pkg/ticket"
	"github.com/go-go-golems/support-widget/pkg/transcript"
	"github.com/go-go-golems/support-widget/pkg/upload"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrBusy           = errors.New("widget: another operation is in progress")
	ErrNotReady       = errors.New("widget: session not initialized")
	ErrEscalationOpen = errors.New("widget: contact details are required before chatting continues")
	ErrNoEscalation   = errors.New("widget: no escalation request is open")
	ErrEmptyQuery     = errors.New("widget: empty query")
	ErrNothingToClear = errors.New("widget: conversation is already empty")

	ErrSubmissionPending = ticket.ErrSubmissionPending
	ErrNoUpload          = upload.ErrNoFile
	ErrStaleUpload       = upload.ErrStaleBinding
)

// User-facing texts.
const (
	ContactPrompt = "To proceed, please share your email address so I can create a priority ticket for you. " +
		"You can also cancel if you'd prefer to continue chatting here."

	textSessionExpired = "Session expired. Starting a new session..."
	textInitFailed     = "Failed to initialize chat session"
	textNotInitialized = "Session not initialized"
	textNoData         = "Please configure the database or upload product data to continue."
	textGeneric        = "Something went wrong"
	textNoResponse     = "Failed to get response from the server"
	textInvalidEmail   = "Please enter a valid email address"
	textTicketRejected = "Failed to send ticket"
	textTicketFailed   = "Failed to send ticket to the team"
	textTicketSent     = "Ticket sent successfully!"
	textCleared        = "Chat history cleared"
	textClearFailed    = "Failed to clear session"
	textNothingToClear = "There is no conversation to clear yet"
	textInvalidFile    = "Please upload a valid CSV file"
	textNoFile         = "Please select a CSV file to upload"
	textStaleFile      = "The selected file belonged to a previous session. Please select it again."
	textUploaded       = "CSV uploaded and processed successfully"
	textUploadFailed   = "Failed to upload CSV"
)

// API is everything the controller needs from the chat server.
type API interface {
	session.API
	ticket.Creator
	upload.Uploader
	Query(ctx context.Context, req chatapi.QueryRequest) (*chatapi.QueryResponse, error)
}

var _ API = &chatapi.Client{}

type Config struct {
	AssistantName string
	// Markers configures the keyword fallback. Nil means the defaults, an
	// empty slice disables it.
	Markers             []escalation.Marker
	AllowedContentTypes []string
}

type Option func(*options)

type options struct {
	sessionOpts []session.Option
}

func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}

// Reply is the outcome of one answered query.
type Reply struct {
	Text       string
	OrderID    string
	Escalation *escalation.Request
}

type Controller struct {
	cfg       Config
	notifier  notify.Notifier
	api       API
	messages  *transcript.Store
	sessions  *session.Manager
	gate      *escalation.Gate
	submitter *ticket.Submitter
	uploads   *upload.Coordinator

	mu      sync.Mutex
	busy    bool
	view    *State
	pending *escalation.Request
	orderID string
}

func New(api API, store identity.Store, notifier notify.Notifier, cfg Config, opts ...Option) *Controller {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	markers := cfg.Markers
	if markers == nil {
		markers = escalation.DefaultMarkers()
	}
	messages := transcript.NewStore()
	return &Controller{
		cfg:       cfg,
		notifier:  notifier,
		api:       api,
		messages:  messages,
		sessions:  session.NewManager(api, store, messages, o.sessionOpts...),
		gate:      escalation.NewGate(markers),
		submitter: ticket.NewSubmitter(api),
		uploads:   upload.NewCoordinator(api, cfg.AllowedContentTypes),
	}
}

// acquire takes the busy gate. The snapshot taken here is what State reports
// until the operation releases it or refreshes it.
func (c *Controller) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	v := c.snapshotLocked()
	c.view = &v
	return nil
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.view = nil
}

func (c *Controller) refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.snapshotLocked()
	c.view = &v
}

func (c *Controller) resetLocalLocked() {
	c.pending = nil
	c.orderID = ""
	c.uploads.Discard()
}

// Start resolves the session: the stored one when the server still knows it,
// a new one otherwise.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	s, err := c.sessions.Resolve(ctx)
	if err != nil {
		log.Error().Err(err).Msg("session resolution failed")
		c.notifier.Notify(notify.Error(chatapi.UserMessage(err, textInitFailed)))
		return err
	}
	log.Info().
		Str("session_id", s.ID).
		Int("messages", c.messages.Len()).
		Int("escalation_markers", len(c.gate.Markers())).
		Msg("widget ready")
	return nil
}

// Send submits a user query. While an escalation request is open plain
// queries are refused.
func (c *Controller) Send(ctx context.Context, query string) (*Reply, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	s := c.sessions.Current()
	if s == nil {
		return nil, ErrNotReady
	}
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return nil, ErrEscalationOpen
	}
	orderID := c.orderID
	c.mu.Unlock()

	c.messages.Append(transcript.Message{Role: transcript.RoleUser, Content: q})
	c.refresh()

	resp, err := c.api.Query(ctx, chatapi.QueryRequest{
		SessionID: s.ID,
		Query:     q,
		ClientID:  s.ClientID,
		OrderID:   orderID,
	})
	if err != nil {
		c.handleQueryError(ctx, err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.messages.Append(transcript.Message{Role: transcript.RoleAssistant, Content: resp.Response})
	if id := resp.OrderID.String(); id != "" {
		c.orderID = id
	}
	sig := escalation.Signal{
		Query:         c.messages.LastUserQuery(),
		AssistantText: resp.Response,
		OrderID:       c.orderID,
		TriggerIndex:  idx,
		Transcript:    transcript.Render(c.messages.Messages(), c.cfg.AssistantName),
	}
	if resp.Analysis != nil {
		sig.NeedsTicket = resp.Analysis.NeedsTicket
		sig.Intent = resp.Analysis.Intent
	}
	reply := &Reply{Text: resp.Response, OrderID: c.orderID}
	d := c.gate.Evaluate(c.pending, sig)
	if d.Suppressed {
		log.Debug().Str("source", string(d.Source)).Str("session_id", s.ID).Msg("escalation already open, trigger ignored")
	}
	if d.Opened() {
		log.Info().Str("source", string(d.Source)).Str("category", d.Request.Category).Str("session_id", s.ID).Msg("contact details requested")
		c.pending = d.Request
		c.messages.Append(transcript.Message{Role: transcript.RoleSystem, Content: ContactPrompt})
		cp := *d.Request
		reply.Escalation = &cp
	}
	return reply, nil
}

func (c *Controller) handleQueryError(ctx context.Context, err error) {
	switch {
	case chatapi.IsSessionInvalid(err):
		c.recover(ctx, err)
	case chatapi.IsNoData(err):
		c.notifier.Notify(notify.Error(textNoData).WithCode(chatapi.CodeNoData))
	default:
		if apiErr, ok := chatapi.AsAPIError(err); ok {
			log.Warn().Err(err).Str("error_code", apiErr.Code).Msg("query rejected")
			c.notifier.Notify(notify.Error(chatapi.UserMessage(err, textGeneric)).WithCode(apiErr.Code))
			return
		}
		log.Warn().Err(err).Msg("query failed")
		c.notifier.Notify(notify.Error(textNoResponse))
	}
}

// recover tears the session down and starts a new one. Emits exactly one
// expiry notice.
func (c *Controller) recover(ctx context.Context, cause error) {
	code := ""
	if apiErr, ok := chatapi.AsAPIError(cause); ok {
		code = apiErr.Code
	}
	c.notifier.Notify(notify.Info(textSessionExpired).WithCode(code))

	c.mu.Lock()
	c.resetLocalLocked()
	c.mu.Unlock()

	if _, err := c.sessions.Recover(ctx, cause); err != nil {
		log.Error().Err(err).Msg("session recovery failed")
		c.notifier.Notify(notify.Error(chatapi.UserMessage(err, textInitFailed)))
	}
}

// SubmitTicket sends the open request with the given contact email. The
// request stays open until the server confirms the ticket.
func (c *Controller) SubmitTicket(ctx context.Context, email string) (*ticket.Result, error) {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return nil, ErrNoEscalation
	}
	if c.submitter.Pending() {
		return nil, ErrSubmissionPending
	}
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	res, err := c.submitter.Submit(ctx, *pending, email)
	if err != nil {
		var vErr *ticket.ValidationError
		switch {
		case errors.As(err, &vErr):
			c.notifier.Notify(notify.Error(textInvalidEmail))
		case chatapi.IsNetwork(err):
			c.notifier.Notify(notify.Error(textTicketFailed))
		default:
			if _, ok := chatapi.AsAPIError(err); ok {
				c.notifier.Notify(notify.Error(chatapi.UserMessage(err, textTicketRejected)))
			} else {
				c.notifier.Notify(notify.Error(textTicketFailed))
			}
		}
		return nil, err
	}

	c.mu.Lock()
	if c.pending == pending {
		c.pending = nil
	}
	c.messages.Append(transcript.Message{Role: transcript.RoleSystem, Content: ticket.ConfirmationMessage(res.TicketID)})
	c.mu.Unlock()
	c.notifier.Notify(notify.Success(textTicketSent))
	return res, nil
}

// CancelTicket drops the open request without contacting the server.
func (c *Controller) CancelTicket() error {
	if c.submitter.Pending() {
		return ErrSubmissionPending
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoEscalation
	}
	log.Debug().Str("category", c.pending.Category).Msg("escalation request cancelled")
	c.pending = nil
	return nil
}

// Clear wipes the conversation on the server and locally, rotating the client
// identity. An empty conversation is refused without contacting the server.
func (c *Controller) Clear(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	before := c.sessions.Current()
	if before == nil {
		c.notifier.Notify(notify.Error(textNotInitialized))
		return ErrNotReady
	}
	if c.messages.Len() == 0 {
		c.notifier.Notify(notify.Info(textNothingToClear))
		return ErrNothingToClear
	}

	_, err := c.sessions.Clear(ctx)

	after := c.sessions.Current()
	if after == nil || after.ID != before.ID {
		c.mu.Lock()
		c.resetLocalLocked()
		c.mu.Unlock()
	}
	if err != nil {
		log.Warn().Err(err).Str("session_id", before.ID).Msg("clear failed")
		c.notifier.Notify(notify.Error(chatapi.UserMessage(err, textClearFailed)))
		return err
	}
	c.notifier.Notify(notify.Success(textCleared))
	return nil
}

// BindFile stages f for upload to the active session. An unsupported file
// also drops any earlier selection.
func (c *Controller) BindFile(f upload.File) error {
	s := c.sessions.Current()
	if s == nil {
		c.notifier.Notify(notify.Error(textNotInitialized))
		return ErrNotReady
	}
	if err := c.uploads.Bind(s.ID, f); err != nil {
		c.notifier.Notify(notify.Error(textInvalidFile))
		return err
	}
	return nil
}

// Upload sends the staged file.
func (c *Controller) Upload(ctx context.Context) (upload.File, error) {
	if err := c.acquire(); err != nil {
		return upload.File{}, err
	}
	defer c.release()

	s := c.sessions.Current()
	if _, ok := c.uploads.Binding(); !ok {
		c.notifier.Notify(notify.Error(textNoFile))
		return upload.File{}, ErrNoUpload
	}
	if s == nil {
		c.notifier.Notify(notify.Error(textNotInitialized))
		return upload.File{}, ErrNotReady
	}

	f, err := c.uploads.Upload(ctx, s.ID)
	switch {
	case err == nil:
		c.notifier.Notify(notify.Success(textUploaded))
		return f, nil
	case errors.Is(err, upload.ErrStaleBinding):
		c.notifier.Notify(notify.Error(textStaleFile))
	case chatapi.IsSessionInvalid(err):
		c.recover(ctx, err)
	default:
		log.Warn().Err(err).Str("session_id", s.ID).Msg("upload failed")
		c.notifier.Notify(notify.Error(chatapi.UserMessage(err, textUploadFailed)))
	}
	return upload.File{}, err
}
