// Package chatapi is a JSON/HTTP client for the remote chat and ticketing API.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 8 << 20

type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient.Timeout = d
		}
	}
}

// WithHeaders adds headers sent on every request.
func WithHeaders(h map[string]string) Option {
	return func(cl *Client) {
		for k, v := range h {
			cl.headers[k] = v
		}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chatapi: empty base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "chatapi: parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("chatapi: unsupported base url scheme %q", u.Scheme)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers:    map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StartSession creates a session and returns its id.
func (c *Client) StartSession(ctx context.Context, clientID string) (string, error) {
	const op = "start session"
	var resp StartSessionResponse
	if err := c.doJSON(ctx, op, http.MethodPost, "/start_session", StartSessionRequest{ClientID: clientID}, &resp); err != nil {
		return "", err
	}
	if !strings.EqualFold(resp.Status, "success") || strings.TrimSpace(resp.SessionID) == "" {
		msg := resp.Error
		if msg == "" {
			msg = "Failed to initialize chat session"
		}
		return "", &APIError{Op: op, StatusCode: http.StatusOK, Message: msg}
	}
	return resp.SessionID, nil
}

// ChatHistory fetches the stored conversation of a session in server order.
func (c *Client) ChatHistory(ctx context.Context, sessionID string) ([]HistoryMessage, error) {
	if sessionID == "" {
		return nil, &APIError{Op: "chat history", Code: CodeMissingSessionID, Message: "missing session id"}
	}
	var resp ChatHistoryResponse
	if err := c.doJSON(ctx, "chat history", http.MethodGet, "/chat_history/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.doJSON(ctx, "query", http.MethodPost, "/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ClearSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, "clear session", http.MethodPost, "/clear_session", ClearSessionRequest{SessionID: sessionID}, nil)
}

// CreateTicket posts a ticket. A 2xx answer that does not report success is
// returned as an *APIError carrying the server's message.
func (c *Client) CreateTicket(ctx context.Context, req CreateTicketRequest) (*CreateTicketResponse, error) {
	const op = "create ticket"
	var resp CreateTicketResponse
	if err := c.doJSON(ctx, op, http.MethodPost, "/api/create-ticket", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Succeeded() {
		msg := resp.Message
		if msg == "" {
			msg = resp.Error
		}
		return nil, &APIError{Op: op, StatusCode: http.StatusOK, Message: msg}
	}
	return &resp, nil
}

// UploadCSV sends a tabular file bound to sessionID as multipart form data.
func (c *Client) UploadCSV(ctx context.Context, sessionID string, fileName string, contentType string, content io.Reader) error {
	const op = "upload csv"
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(fileName)+`"`)
	if contentType == "" {
		contentType = "text/csv"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return errors.Wrapf(err, "chatapi: %s: create file part", op)
	}
	if _, err := io.Copy(part, content); err != nil {
		return errors.Wrapf(err, "chatapi: %s: copy file", op)
	}
	if err := w.WriteField("session_id", sessionID); err != nil {
		return errors.Wrapf(err, "chatapi: %s: write session id", op)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "chatapi: %s: close form", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_csv", &body)
	if err != nil {
		return errors.Wrapf(err, "chatapi: %s: build request", op)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var resp UploadResponse
	return c.send(op, req, &resp)
}

func (c *Client) doJSON(ctx context.Context, op string, method string, path string, in any, out any) error {
	var rdr io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "chatapi: %s: encode request", op)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrapf(err, "chatapi: %s: build request", op)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.send(op, req, out)
}

func (c *Client) send(op string, req *http.Request, out any) error {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("op", op).Str("url", req.URL.String()).Msg("chat api request failed")
		return &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: op, Err: errors.Wrap(err, "read response")}
	}
	log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("chat api response")

	if resp.StatusCode >= 300 {
		return decodeAPIError(op, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "chatapi: %s: decode response", op)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
