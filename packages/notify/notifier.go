// Package notify posts the results of fetches and bench runs to chat webhooks.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when a run fails
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when a run passes
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends failures and the first pass after a failure
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch n := NotifyOn(s); n {
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return n, nil
	}
	return "", fmt.Errorf("invalid notify policy %q (want always, failure, success or recovery)", s)
}

// Field is one labelled value shown with the message.
type Field struct {
	Title string
	Value string
}

// Summary describes one finished fetch or bench run.
type Summary struct {
	Title      string
	Passed     bool
	Duration   time.Duration
	Fields     []Field
	Failures   []string
	IsRecovery bool
}

// Notifier is the interface for notification services
type Notifier interface {
	Notify(ctx context.Context, summary *Summary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager manages multiple notifiers
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState bool // true if last run was successful
	logger    logrus.FieldLogger
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, logger logrus.FieldLogger, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true,
		logger:    logger,
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Notify sends notifications based on the configured policy. Every notifier
// is tried; the last error is returned.
func (m *Manager) Notify(ctx context.Context, summary *Summary) error {
	shouldNotify := false

	switch m.notifyOn {
	case NotifyAlways:
		shouldNotify = true
	case NotifyFailure:
		shouldNotify = !summary.Passed
	case NotifySuccess:
		shouldNotify = summary.Passed
	case NotifyRecovery:
		if !m.lastState && summary.Passed {
			shouldNotify = true
			summary.IsRecovery = true
		}
		if !summary.Passed {
			shouldNotify = true
		}
	}

	m.lastState = summary.Passed

	if !shouldNotify {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			m.logger.WithError(err).WithField("notifier", n.Name()).Warn("notification failed")
			lastErr = err
		}
	}

	return lastErr
}
