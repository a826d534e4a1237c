package notify

import (
	"time"

	"go.uber.org/zap"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent. The counters describe
// the run it reports on and are zero for notices that are not run summaries.
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional ledger run id

	Finished int
	Failed   int
	Elapsed  time.Duration
}

// HasCounts reports whether n carries a run summary
func (n Notification) HasCounts() bool {
	return n.Finished+n.Failed > 0 || n.Elapsed > 0
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// LogNotifier writes notifications to the scheduler log
type LogNotifier struct {
	Log *zap.SugaredLogger
}

func (l LogNotifier) Send(n Notification) error {
	fields := []interface{}{"title", n.Title, "message", n.Message}
	if n.RunID != "" {
		fields = append(fields, "run", n.RunID)
	}
	if n.HasCounts() {
		fields = append(fields, "finished", n.Finished, "failed", n.Failed, "elapsed", n.Elapsed)
	}
	switch n.Type {
	case NotifyError:
		l.Log.Errorw("notification", fields...)
	case NotifyWarning:
		l.Log.Warnw("notification", fields...)
	default:
		l.Log.Infow("notification", fields...)
	}
	return nil
}
