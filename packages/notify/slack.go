package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	timeout    time.Duration
	client     *http.Client
	now        func() time.Time
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackUsername sets the Slack bot username
func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

// WithSlackIconEmoji sets the Slack bot icon emoji
func WithSlackIconEmoji(emoji string) SlackOption {
	return func(s *SlackNotifier) {
		s.iconEmoji = emoji
	}
}

// WithSlackClient sends the webhook through client instead of a fresh one.
func WithSlackClient(client *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = client
	}
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "hitfetch",
		iconEmoji:  ":satellite:",
		timeout:    10 * time.Second,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = http.NewClient()
	}

	return s
}

// Name returns the name of the notifier
func (s *SlackNotifier) Name() string {
	return "slack"
}

// slackMessage represents a Slack webhook message
type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

// slackAttachment represents a Slack message attachment
type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

// slackField represents a field in a Slack attachment
type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notify sends a notification to Slack
func (s *SlackNotifier) Notify(ctx context.Context, summary *Summary) error {
	color := "good"
	emoji := ":white_check_mark:"
	status := "passed"

	if !summary.Passed {
		color = "danger"
		emoji = ":x:"
		status = "failed"
	} else if summary.IsRecovery {
		emoji = ":tada:"
		status = "recovered"
	}

	fields := []slackField{
		{Title: "Result", Value: status, Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}
	for _, f := range summary.Fields {
		fields = append(fields, slackField{Title: f.Title, Value: f.Value, Short: true})
	}

	var text strings.Builder
	for _, failure := range summary.Failures {
		fmt.Fprintf(&text, "• `%s`\n", failure)
	}

	attachment := slackAttachment{
		Color:  color,
		Title:  fmt.Sprintf("%s %s", emoji, summary.Title),
		Text:   text.String(),
		Fields: fields,
		Footer: "hitfetch",
		TS:     s.now().Unix(),
	}

	msg := slackMessage{
		Channel:     s.channel,
		Username:    s.username,
		IconEmoji:   s.iconEmoji,
		Attachments: []slackAttachment{attachment},
	}

	req := http.NewRequestConfig(s.webhookURL).SetTimeout(s.timeout)
	req.Body = msg

	_, err := s.client.Do(ctx, *req)
	if err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	return nil
}
