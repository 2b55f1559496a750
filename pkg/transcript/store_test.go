package transcript

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_AppendKeepsCallOrder(t *testing.T) {
	s := NewStore()
	for i := 0; i < 50; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		idx := s.Append(Message{Role: role, Content: fmt.Sprintf("m%d", i)})
		require.Equal(t, i, idx)
	}

	msgs := s.Messages()
	require.Len(t, msgs, 50)
	for i, m := range msgs {
		require.Equal(t, fmt.Sprintf("m%d", i), m.Content)
	}
}

func TestStore_MessagesIsACopy(t *testing.T) {
	s := NewStore()
	s.Append(Message{Role: RoleUser, Content: "a"})
	msgs := s.Messages()
	msgs[0].Content = "mutated"

	m, ok := s.At(0)
	require.True(t, ok)
	require.Equal(t, "a", m.Content)
}

func TestStore_HydrateAndReset(t *testing.T) {
	s := NewStore()
	s.Append(Message{Role: RoleUser, Content: "old"})

	in := []Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}}
	s.Hydrate(in)
	in[0].Content = "changed after hydrate"
	require.Equal(t, []Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}}, s.Messages())
	require.Equal(t, "q", s.LastUserQuery())

	s.Reset()
	require.Equal(t, 0, s.Len())
	require.Empty(t, s.LastUserQuery())
	_, ok := s.At(0)
	require.False(t, ok)
}

func TestNormalizeRole(t *testing.T) {
	require.Equal(t, RoleUser, NormalizeRole(" User "))
	require.Equal(t, RoleSystem, NormalizeRole("system"))
	require.Equal(t, RoleAssistant, NormalizeRole("assistant"))
	require.Equal(t, RoleAssistant, NormalizeRole("bot"))
}

func TestRender(t *testing.T) {
	out := Render([]Message{
		{Role: RoleUser, Content: "my parcel is late"},
		{Role: RoleAssistant, Content: "sorry to hear that"},
		{Role: RoleSystem, Content: "contact needed"},
	}, "AIRA")
	require.Equal(t, "You: my parcel is late\nAIRA: sorry to hear that\nSystem: contact needed", out)
	require.Equal(t, "Assistant: hi", Render([]Message{{Role: RoleAssistant, Content: "hi"}}, ""))
}
