package autosave

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Level is the severity of a save notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Messages shown to the user after a save attempt
const (
	MessageSaved      = "Changes saved successfully"
	MessageSaveFailed = "Failed to save changes, will retry"
)

// Notification is a user-facing message about a save attempt
type Notification struct {
	Level    Level     `json:"level"`
	Message  string    `json:"message"`
	SchemaID string    `json:"schemaId"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

// Notifier receives save notifications
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(n Notification)

// Notify calls f(n)
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// LogNotifier writes notifications to a logger
type LogNotifier struct {
	Logger *logrus.Logger
}

// Notify logs the notification at a level matching its severity
func (l LogNotifier) Notify(n Notification) {
	if l.Logger == nil {
		return
	}
	entry := l.Logger.WithField("schema", n.SchemaID)
	if n.Level == LevelError {
		entry.Warningf("%s: %s", n.Message, n.Error)
		return
	}
	entry.Debug(n.Message)
}

// multiNotifier fans a notification out to several notifiers
type multiNotifier []Notifier

func (m multiNotifier) Notify(n Notification) {
	for _, notifier := range m {
		notifier.Notify(n)
	}
}

// MultiNotifier combines notifiers, skipping nil entries
func MultiNotifier(notifiers ...Notifier) Notifier {
	var out multiNotifier
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
