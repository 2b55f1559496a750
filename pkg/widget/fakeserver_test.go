package widget

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-go-golems/support-widget/pkg/chatapi"
	"github.com/stretchr/testify/require"
)

type uploadRecord struct {
	SessionID   string
	FileName    string
	ContentType string
	Body        string
}

// fakeServer is an in-memory chat API.
type fakeServer struct {
	t *testing.T

	mu          sync.Mutex
	nextSession int
	valid       map[string]bool
	history     map[string][]chatapi.HistoryMessage
	starts      []string
	queries     []chatapi.QueryRequest
	tickets     []chatapi.CreateTicketRequest
	uploads     []uploadRecord
	cleared     []string

	// answer produces the /query reply for a known session.
	answer func(req chatapi.QueryRequest) (int, any)
	ticket func(req chatapi.CreateTicketRequest) (int, any)
	upload func(sessionID string) (int, any)
	clear  func(sessionID string) (int, any)
}

func newFakeServer(t *testing.T) (*fakeServer, *chatapi.Client) {
	t.Helper()
	f := &fakeServer{
		t:       t,
		valid:   map[string]bool{},
		history: map[string][]chatapi.HistoryMessage{},
		answer: func(req chatapi.QueryRequest) (int, any) {
			return http.StatusOK, map[string]any{"response": "echo: " + req.Query}
		},
	}
	srv := httptest.NewServer(f.routes())
	t.Cleanup(srv.Close)
	c, err := chatapi.NewClient(srv.URL)
	require.NoError(t, err)
	return f, c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var invalidSession = map[string]any{"error": "Invalid session", "error_code": chatapi.CodeInvalidSession}

func (f *fakeServer) routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/start_session", func(w http.ResponseWriter, r *http.Request) {
		var req chatapi.StartSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		f.mu.Lock()
		f.nextSession++
		id := fmt.Sprintf("sess-%d", f.nextSession)
		f.valid[id] = true
		f.starts = append(f.starts, req.ClientID)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "session_id": id})
	})

	r.Get("/chat_history/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		f.mu.Lock()
		ok := f.valid[id]
		msgs := f.history[id]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusBadRequest, invalidSession)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	})

	r.Post("/query", func(w http.ResponseWriter, r *http.Request) {
		var req chatapi.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		f.mu.Lock()
		f.queries = append(f.queries, req)
		ok := f.valid[req.SessionID]
		answer := f.answer
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusBadRequest, invalidSession)
			return
		}
		status, body := answer(req)
		writeJSON(w, status, body)
	})

	r.Post("/clear_session", func(w http.ResponseWriter, r *http.Request) {
		var req chatapi.ClearSessionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		fn := f.clear
		f.cleared = append(f.cleared, req.SessionID)
		f.mu.Unlock()
		if fn != nil {
			status, body := fn(req.SessionID)
			writeJSON(w, status, body)
			return
		}
		f.mu.Lock()
		delete(f.valid, req.SessionID)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
	})

	r.Post("/api/create-ticket", func(w http.ResponseWriter, r *http.Request) {
		var req chatapi.CreateTicketRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.tickets = append(f.tickets, req)
		fn := f.ticket
		n := len(f.tickets)
		f.mu.Unlock()
		if fn != nil {
			status, body := fn(req)
			writeJSON(w, status, body)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "ticket_id": n})
	})

	r.Post("/upload_csv", func(w http.ResponseWriter, r *http.Request) {
		file, hdr, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing file"})
			return
		}
		defer func() { _ = file.Close() }()
		body, _ := io.ReadAll(file)
		sid := r.FormValue("session_id")
		f.mu.Lock()
		ok := f.valid[sid]
		fn := f.upload
		f.uploads = append(f.uploads, uploadRecord{sid, hdr.Filename, hdr.Header.Get("Content-Type"), string(body)})
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusBadRequest, invalidSession)
			return
		}
		if fn != nil {
			status, resp := fn(sid)
			writeJSON(w, status, resp)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
	})

	return r
}

func (f *fakeServer) expire(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.valid, sessionID)
}

func (f *fakeServer) setAnswer(fn func(req chatapi.QueryRequest) (int, any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = fn
}

func (f *fakeServer) snapshot() (starts []string, queries []chatapi.QueryRequest, tickets []chatapi.CreateTicketRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.starts...),
		append([]chatapi.QueryRequest(nil), f.queries...),
		append([]chatapi.CreateTicketRequest(nil), f.tickets...)
}
