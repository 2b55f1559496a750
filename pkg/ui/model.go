// Package ui is the terminal front-end of the support widget.
package ui

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/support-widget/pkg/notify"
	"github.com/go-go-golems/support-widget/pkg/ticket"
	"github.com/go-go-golems/support-widget/pkg/transcript"
	"github.com/go-go-golems/support-widget/pkg/upload"
	"github.com/go-go-golems/support-widget/pkg/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxNotices = 3

// writeClipboard is swapped out in tests.
var writeClipboard = clipboard.WriteAll

// Controller is what the model drives; *widget.Controller implements it.
type Controller interface {
	Start(ctx context.Context) error
	State() widget.State
	Send(ctx context.Context, query string) (*widget.Reply, error)
	SubmitTicket(ctx context.Context, email string) (*ticket.Result, error)
	CancelTicket() error
	Clear(ctx context.Context) error
	BindFile(f upload.File) error
	Upload(ctx context.Context) (upload.File, error)
}

var _ Controller = &widget.Controller{}

// opDoneMsg reports the end of a controller call started from the UI.
type opDoneMsg struct {
	op  string
	err error
}

type Model struct {
	ctx  context.Context
	ctrl Controller

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	notices  []notify.Notice
	rendered map[string]string
	running  bool
	width    int
	ready    bool
}

func NewModel(ctx context.Context, ctrl Controller) Model {
	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.Focus()
	ti.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = headerStyle

	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		rendered: map[string]string{},
		width:    80,
	}
}

// Init resolves the session in the background.
func (m Model) Init() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return tea.Batch(textinput.Blink, m.spinner.Tick, runOp("start", func() error { return ctrl.Start(ctx) }))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = ev.Width
		m.viewport.Width = ev.Width
		m.viewport.Height = max(ev.Height-7, 3)
		m.input.Width = max(ev.Width-4, 10)
		m.rendered = map[string]string{}
		m.ready = true
		m.syncContent()
		return m, nil

	case tea.KeyMsg:
		switch ev.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.ctrl.State().Escalation != nil {
				return m.submit("/cancel")
			}
			return m, tea.Quit
		case tea.KeyEnter:
			text := m.input.Value()
			m.input.Reset()
			return m.submit(text)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case opDoneMsg:
		m.running = false
		if ev.err != nil {
			log.Debug().Err(ev.err).Str("op", ev.op).Msg("ui operation failed")
			if text := localErrorText(ev.err); text != "" {
				m.addNotice(notify.Error(text))
			}
		}
		m.syncContent()
		return m, nil

	case NoticeMsg:
		m.addNotice(ev.Notice)
		m.syncContent()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.running {
			m.syncContent()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit routes one line of input. It returns the controller call as a
// command; the call runs off the update loop.
func (m Model) submit(text string) (Model, tea.Cmd) {
	text = strings.TrimSpace(text)
	if text == "" {
		return m, nil
	}
	st := m.ctrl.State()
	ctx := m.ctx

	var op tea.Cmd
	switch {
	case !st.Ready && !st.Busy && text != "/quit" && text != "/help":
		m.addNotice(notify.Info(textReconnecting))
		op = runOp("start", func() error { return m.ctrl.Start(ctx) })
	case st.Escalation != nil && text == "/cancel":
		err := m.ctrl.CancelTicket()
		m.syncContent()
		if err != nil && localErrorText(err) != "" {
			m.addNotice(notify.Error(localErrorText(err)))
		}
		return m, nil
	case st.Escalation != nil && !strings.HasPrefix(text, "/"):
		op = runOp("ticket", func() error {
			_, err := m.ctrl.SubmitTicket(ctx, text)
			return err
		})
	case text == "/quit":
		return m, tea.Quit
	case text == "/help":
		m.addNotice(notify.Info(helpText))
		return m, nil
	case text == "/copy":
		m.copyLastReply(st)
		return m, nil
	case text == "/clear":
		op = runOp("clear", func() error { return m.ctrl.Clear(ctx) })
	case strings.HasPrefix(text, "/upload"):
		path := strings.TrimSpace(strings.TrimPrefix(text, "/upload"))
		op = runOp("upload", func() error {
			if path != "" {
				f, err := upload.FileFromPath(path)
				if err != nil {
					return err
				}
				if err := m.ctrl.BindFile(f); err != nil {
					return err
				}
			}
			_, err := m.ctrl.Upload(ctx)
			return err
		})
	case strings.HasPrefix(text, "/"):
		m.addNotice(notify.Error(fmt.Sprintf("Unknown command %s", text)))
		return m, nil
	default:
		op = runOp("send", func() error {
			_, err := m.ctrl.Send(ctx, text)
			return err
		})
	}
	m.running = true
	return m, op
}

func runOp(name string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: name, err: fn()}
	}
}

const textReconnecting = "Not connected. Retrying the chat session..."

const helpText = "/upload <file.csv> uploads product data, /copy copies the last reply, /clear starts over, /quit exits"

// localErrorText covers failures the controller does not announce itself.
func localErrorText(err error) string {
	switch {
	case errors.Is(err, widget.ErrBusy):
		return "Please wait for the current request to finish"
	case errors.Is(err, widget.ErrEscalationOpen):
		return "Please enter your email address or type /cancel"
	case errors.Is(err, widget.ErrSubmissionPending):
		return "Your ticket is being sent"
	case errors.Is(err, widget.ErrNoEscalation):
		return "There is no ticket to cancel"
	case errors.Is(err, widget.ErrNotReady):
		return "Not connected. Press Enter to retry"
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Sprintf("Could not read %s", pathErr.Path)
	}
	return ""
}

func (m *Model) copyLastReply(st widget.State) {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Role != transcript.RoleAssistant {
			continue
		}
		if err := writeClipboard(st.Messages[i].Content); err != nil {
			log.Warn().Err(err).Msg("clipboard write failed")
			m.addNotice(notify.Error("Could not copy to the clipboard"))
			return
		}
		m.addNotice(notify.Success("Copied the last reply"))
		return
	}
	m.addNotice(notify.Info("Nothing to copy yet"))
}

func (m *Model) addNotice(n notify.Notice) {
	m.notices = append(m.notices, n)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *Model) syncContent() {
	m.viewport.SetContent(m.renderTranscript(m.ctrl.State()))
	m.viewport.GotoBottom()
}

func (m *Model) renderTranscript(st widget.State) string {
	name := st.AssistantName
	if name == "" {
		name = "Assistant"
	}
	if len(st.Messages) == 0 {
		return welcomeStyle.Render(fmt.Sprintf("Hi I'm %s", name)) + "\n" +
			subHeaderStyle.Render("  How can I help you today?")
	}
	var b strings.Builder
	for i, msg := range st.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case transcript.RoleUser:
			b.WriteString(userStyle.Render("You: ") + msg.Content + "\n")
		case transcript.RoleSystem:
			b.WriteString(systemStyle.Render(msg.Content) + "\n")
		default:
			b.WriteString(assistantStyle.Render(name+":") + "\n" + m.markdown(msg.Content))
		}
	}
	return b.String()
}

// markdown renders assistant turns; results are cached per content.
func (m *Model) markdown(s string) string {
	if !m.ready {
		return s + "\n"
	}
	if out, ok := m.rendered[s]; ok {
		return out
	}
	out, err := glamour.Render(s, "dark")
	if err != nil {
		log.Debug().Err(err).Msg("markdown render failed")
		out = s + "\n"
	}
	m.rendered[s] = out
	return out
}

func (m Model) View() string {
	st := m.ctrl.State()

	var title string
	if st.Ready {
		title = headerStyle.Render(fmt.Sprintf("%s support", displayName(st))) +
			subHeaderStyle.Render(fmt.Sprintf("  session %s", st.SessionID))
	} else if st.Busy || m.running {
		title = headerStyle.Render(fmt.Sprintf("%s support", displayName(st))) +
			subHeaderStyle.Render("  connecting...")
	} else {
		title = headerStyle.Render(fmt.Sprintf("%s support", displayName(st))) +
			subHeaderStyle.Render("  not connected, press enter to retry")
	}

	var b strings.Builder
	b.WriteString(title + "\n")
	b.WriteString(m.viewport.View() + "\n")
	for _, n := range m.notices {
		style, ok := noticeStyles[string(n.Level)]
		if !ok {
			style = noticeStyles["info"]
		}
		b.WriteString(style.Render(n.Text) + "\n")
	}
	if st.Busy || m.running {
		b.WriteString(m.spinner.View() + " " + subHeaderStyle.Render("working...") + "\n")
	}
	if st.Upload != nil {
		b.WriteString(subHeaderStyle.Render(fmt.Sprintf("file ready: %s (/upload to send)", st.Upload.File.Name)) + "\n")
	}
	if st.Escalation != nil {
		b.WriteString(systemStyle.Render("Email address for your ticket (/cancel to keep chatting):") + "\n")
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(helpStyle.Render("enter send • /upload <file.csv> • /clear • esc quit"))
	return b.String()
}

func displayName(st widget.State) string {
	if st.AssistantName != "" {
		return st.AssistantName
	}
	return "Assistant"
}
