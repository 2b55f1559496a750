package upload

import (
	"bytes"
	"context"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoFile    = errors.New("upload: no file selected")
	ErrNoSession = errors.New("upload: no active session")
	// ErrStaleBinding means the file was chosen under a session that is no
	// longer active. The binding is discarded.
	ErrStaleBinding = errors.New("upload: file was selected for a previous session")
)

type Uploader interface {
	UploadCSV(ctx context.Context, sessionID string, fileName string, contentType string, content io.Reader) error
}

// Binding ties a staged file to the session active when it was chosen.
type Binding struct {
	SessionID string
	File      File
	BoundAt   time.Time
}

type Coordinator struct {
	api     Uploader
	allowed map[string]struct{}
	now     func() time.Time

	mu      sync.Mutex
	binding *Binding
}

// NewCoordinator accepts the given media types; none means text/csv only.
func NewCoordinator(api Uploader, allowedContentTypes []string) *Coordinator {
	c := &Coordinator{api: api, allowed: map[string]struct{}{}, now: time.Now}
	for _, ct := range allowedContentTypes {
		if mt := mediaType(ct); mt != "" {
			c.allowed[mt] = struct{}{}
		}
	}
	if len(c.allowed) == 0 {
		c.allowed[ContentTypeCSV] = struct{}{}
	}
	return c
}

func mediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return mt
}

// Bind stages f for sessionID, replacing any earlier binding. A rejected
// file also clears the earlier binding.
func (c *Coordinator) Bind(sessionID string, f File) error {
	if sessionID == "" {
		return ErrNoSession
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.allowed[mediaType(f.ContentType)]; !ok {
		c.binding = nil
		return &ValidationError{Name: f.Name, ContentType: f.ContentType, Reason: "unsupported file type"}
	}
	c.binding = &Binding{SessionID: sessionID, File: f, BoundAt: c.now()}
	log.Debug().Str("file", f.Name).Int("size", f.Size()).Str("session_id", sessionID).Msg("upload file bound")
	return nil
}

// Binding returns a copy of the staged binding, if any.
func (c *Coordinator) Binding() (Binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.binding == nil {
		return Binding{}, false
	}
	return *c.binding, true
}

func (c *Coordinator) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binding = nil
}

// Upload sends the staged file. Success clears the binding, a failed
// transfer keeps it for a retry.
func (c *Coordinator) Upload(ctx context.Context, activeSessionID string) (File, error) {
	c.mu.Lock()
	b := c.binding
	c.mu.Unlock()

	if b == nil {
		return File{}, ErrNoFile
	}
	if activeSessionID == "" {
		return File{}, ErrNoSession
	}
	if b.SessionID != activeSessionID {
		log.Warn().
			Str("bound_session_id", b.SessionID).
			Str("active_session_id", activeSessionID).
			Msg("discarding upload bound to previous session")
		c.clearIf(b)
		return File{}, ErrStaleBinding
	}

	if err := c.api.UploadCSV(ctx, activeSessionID, b.File.Name, b.File.ContentType, bytes.NewReader(b.File.Data)); err != nil {
		return File{}, err
	}
	c.clearIf(b)
	log.Info().Str("file", b.File.Name).Str("session_id", activeSessionID).Msg("upload complete")
	return b.File, nil
}

// clearIf drops b unless a newer file was bound meanwhile.
func (c *Coordinator) clearIf(b *Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.binding == b {
		c.binding = nil
	}
}
