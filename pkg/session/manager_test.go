package session

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-go-golems/support-widget/pkg/chatapi"
	"github.com/go-go-golems/support-widget/pkg/persistence/identity"
	"github.com/go-go-golems/support-widget/pkg/transcript"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	nextSession int
	sessionIDs  []string
	history     map[string][]chatapi.HistoryMessage
	historyErr  error
	startErr    error
	clearErr    error

	started  []string
	cleared  []string
	historyQ []string
}

func (f *fakeAPI) StartSession(_ context.Context, clientID string) (string, error) {
	f.started = append(f.started, clientID)
	if f.startErr != nil {
		return "", f.startErr
	}
	if len(f.sessionIDs) > 0 {
		id := f.sessionIDs[0]
		f.sessionIDs = f.sessionIDs[1:]
		return id, nil
	}
	f.nextSession++
	return fmt.Sprintf("sess-%d", f.nextSession), nil
}

func (f *fakeAPI) ChatHistory(_ context.Context, id string) ([]chatapi.HistoryMessage, error) {
	f.historyQ = append(f.historyQ, id)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[id], nil
}

func (f *fakeAPI) ClearSession(_ context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return f.clearErr
}

func sequentialIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func stored(t *testing.T, s identity.Store, key string) (string, bool) {
	v, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func TestResolve_FirstRunCreatesIdentityAndSession(t *testing.T) {
	api := &fakeAPI{}
	store := identity.NewMemoryStore()
	msgs := transcript.NewStore()
	m := NewManager(api, store, msgs, WithIDGenerator(sequentialIDs("client-a")))

	require.False(t, m.Ready())
	s, err := m.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sess-1", s.ID)
	require.Equal(t, "client-a", s.ClientID)
	require.Equal(t, []string{"client-a"}, api.started)
	require.Empty(t, api.historyQ)
	require.True(t, m.Ready())

	v, _ := stored(t, store, identity.KeyClientID)
	require.Equal(t, "client-a", v)
	v, _ = stored(t, store, identity.KeySessionID)
	require.Equal(t, "sess-1", v)
}

func TestResolve_ReusesStoredSessionAndHydrates(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{history: map[string][]chatapi.HistoryMessage{
		"old": {{Role: "user", Content: "hi"}, {Role: "bot", Content: "hello"}},
	}}
	store := identity.NewMemoryStore()
	require.NoError(t, store.Set(ctx, identity.KeyClientID, "client-a"))
	require.NoError(t, store.Set(ctx, identity.KeySessionID, "old"))
	msgs := transcript.NewStore()

	s, err := NewManager(api, store, msgs).Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, "old", s.ID)
	require.Empty(t, api.started)
	require.Equal(t, []transcript.Message{
		{Role: transcript.RoleUser, Content: "hi"},
		{Role: transcript.RoleAssistant, Content: "hello"},
	}, msgs.Messages())
}

func TestResolve_InvalidStoredSessionStartsNew(t *testing.T) {
	for name, rejection := range map[string]error{
		"invalid":   &chatapi.APIError{Op: "chat history", StatusCode: 400, Code: chatapi.CodeInvalidSession},
		"not found": &chatapi.APIError{Op: "chat history", StatusCode: http.StatusNotFound},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			api := &fakeAPI{historyErr: rejection, sessionIDs: []string{"old", "fresh"}}
			store := identity.NewMemoryStore()
			require.NoError(t, store.Set(ctx, identity.KeySessionID, "old"))

			s, err := NewManager(api, store, transcript.NewStore()).Resolve(ctx)
			require.ErrorIs(t, err, ErrSessionReused)
			require.Nil(t, s)

			api.sessionIDs = []string{"fresh"}
			m := NewManager(api, store, transcript.NewStore())
			require.NoError(t, store.Set(ctx, identity.KeySessionID, "old"))
			s, err = m.Resolve(ctx)
			require.NoError(t, err)
			require.Equal(t, "fresh", s.ID)
			v, _ := stored(t, store, identity.KeySessionID)
			require.Equal(t, "fresh", v)
		})
	}
}

func TestResolve_NetworkFailureLeavesManagerNotReady(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{historyErr: &chatapi.NetworkError{Op: "chat history", Err: errors.New("connection refused")}}
	store := identity.NewMemoryStore()
	require.NoError(t, store.Set(ctx, identity.KeySessionID, "old"))

	m := NewManager(api, store, transcript.NewStore())
	_, err := m.Resolve(ctx)
	require.True(t, chatapi.IsNetwork(err))
	require.False(t, m.Ready())
	require.Empty(t, api.started)

	v, ok := stored(t, store, identity.KeySessionID)
	require.True(t, ok)
	require.Equal(t, "old", v)
}

func TestRecover_EmptiesStoreAndChangesSession(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	msgs := transcript.NewStore()
	m := NewManager(api, identity.NewMemoryStore(), msgs)

	first, err := m.Resolve(ctx)
	require.NoError(t, err)
	msgs.Append(transcript.Message{Role: transcript.RoleUser, Content: "hello"})

	second, err := m.Recover(ctx, errors.New("expired"))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, first.ClientID, second.ClientID)
	require.Equal(t, 0, msgs.Len())
}

func TestRecover_RefusesInvalidatedID(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{sessionIDs: []string{"s1", "s1"}}
	m := NewManager(api, identity.NewMemoryStore(), transcript.NewStore())

	_, err := m.Resolve(ctx)
	require.NoError(t, err)
	_, err = m.Recover(ctx, errors.New("expired"))
	require.ErrorIs(t, err, ErrSessionReused)
	require.False(t, m.Ready())
}

func TestClear_RotatesClientIdentity(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	store := identity.NewMemoryStore()
	msgs := transcript.NewStore()
	m := NewManager(api, store, msgs, WithIDGenerator(sequentialIDs("client-a", "client-a", "client-b")))

	first, err := m.Resolve(ctx)
	require.NoError(t, err)
	msgs.Append(transcript.Message{Role: transcript.RoleUser, Content: "hello"})

	second, err := m.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{first.ID}, api.cleared)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, "client-b", second.ClientID)
	require.Equal(t, 0, msgs.Len())

	v, _ := stored(t, store, identity.KeyClientID)
	require.Equal(t, "client-b", v)
}

func TestClear_ServerFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	store := identity.NewMemoryStore()
	msgs := transcript.NewStore()
	m := NewManager(api, store, msgs)

	first, err := m.Resolve(ctx)
	require.NoError(t, err)
	msgs.Append(transcript.Message{Role: transcript.RoleUser, Content: "hello"})

	api.clearErr = &chatapi.APIError{Op: "clear session", StatusCode: 500}
	_, err = m.Clear(ctx)
	require.Error(t, err)
	require.Equal(t, first, m.Current())
	require.Equal(t, 1, msgs.Len())
	v, _ := stored(t, store, identity.KeySessionID)
	require.Equal(t, first.ID, v)
}

func TestClear_WithoutSession(t *testing.T) {
	m := NewManager(&fakeAPI{}, identity.NewMemoryStore(), transcript.NewStore())
	_, err := m.Clear(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
}
