package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/support-widget/pkg/notify"
	"github.com/rs/zerolog/log"
)

// NoticeMsg carries a controller notice into the bubbletea loop.
type NoticeMsg struct {
	Notice notify.Notice
}

// NoticeForwardFunc injects notices from the bus into the program `p`. Use it
// as a notify.Bus handler.
func NoticeForwardFunc(p *tea.Program) func(n notify.Notice) error {
	return func(n notify.Notice) error {
		log.Debug().Str("level", string(n.Level)).Str("text", n.Text).Msg("dispatching notice to UI")
		p.Send(NoticeMsg{Notice: n})
		return nil
	}
}
