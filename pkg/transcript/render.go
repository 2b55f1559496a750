package transcript

import "strings"

// Render formats msgs as the plain-text conversation history attached to
// support tickets, one "Speaker: content" line per turn.
func Render(msgs []Message, assistantName string) string {
	if assistantName == "" {
		assistantName = "Assistant"
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		speaker := assistantName
		switch m.Role {
		case RoleUser:
			speaker = "You"
		case RoleSystem:
			speaker = "System"
		}
		lines = append(lines, speaker+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
