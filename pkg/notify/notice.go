// Package notify carries transient user-facing notices from the controller to
// whatever is rendering the widget.
package notify

import (
	"encoding/json"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notice struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	Code  string    `json:"code,omitempty"`
	At    time.Time `json:"at"`
}

func Info(text string) Notice    { return Notice{Level: LevelInfo, Text: text} }
func Success(text string) Notice { return Notice{Level: LevelSuccess, Text: text} }
func Error(text string) Notice   { return Notice{Level: LevelError, Text: text} }

// WithCode tags n with a server error code.
func (n Notice) WithCode(code string) Notice {
	n.Code = code
	return n
}

// Notifier receives notices. Implementations must not block the caller for
// long: notices are emitted from the controller's control path.
type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Notice) {})

func decode(payload []byte) (Notice, error) {
	var n Notice
	err := json.Unmarshal(payload, &n)
	return n, err
}
