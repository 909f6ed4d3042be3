package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	calls []*Summary
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, s *Summary) error {
	r.calls = append(r.calls, s)
	return r.err
}

func (r *recordingNotifier) Name() string { return "recording" }

func TestParseNotifyOn(t *testing.T) {
	on, err := ParseNotifyOn("recovery")
	require.NoError(t, err)
	assert.Equal(t, NotifyRecovery, on)

	_, err = ParseNotifyOn("sometimes")
	assert.Error(t, err)
}

func TestManager_Policies(t *testing.T) {
	tests := []struct {
		on   NotifyOn
		runs []bool
		want int
	}{
		{NotifyAlways, []bool{true, false, true}, 3},
		{NotifyFailure, []bool{true, false, false}, 2},
		{NotifySuccess, []bool{true, false, true}, 2},
		{NotifyRecovery, []bool{true, true, false, true, true}, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.on), func(t *testing.T) {
			rec := &recordingNotifier{}
			logger, _ := logtest.NewNullLogger()
			m := NewManager(tt.on, logger, rec)
			for _, passed := range tt.runs {
				require.NoError(t, m.Notify(context.Background(), &Summary{Passed: passed}))
			}
			assert.Len(t, rec.calls, tt.want)
		})
	}
}

func TestManager_RecoveryFlag(t *testing.T) {
	rec := &recordingNotifier{}
	logger, _ := logtest.NewNullLogger()
	m := NewManager(NotifyRecovery, logger, rec)

	require.NoError(t, m.Notify(context.Background(), &Summary{Passed: false}))
	require.NoError(t, m.Notify(context.Background(), &Summary{Passed: true}))

	require.Len(t, rec.calls, 2)
	assert.False(t, rec.calls[0].IsRecovery)
	assert.True(t, rec.calls[1].IsRecovery)
}

func TestManager_ErrorsAreLogged(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	failing := &recordingNotifier{err: errors.New("webhook down")}
	ok := &recordingNotifier{}
	m := NewManager(NotifyAlways, logger, failing)
	m.AddNotifier(ok)

	err := m.Notify(context.Background(), &Summary{Passed: true})
	assert.EqualError(t, err, "webhook down")
	assert.Len(t, ok.calls, 1)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestSlackNotifier(t *testing.T) {
	var msg slackMessage
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &msg)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	s := NewSlackNotifier(server.URL, WithSlackChannel("#alerts"))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	err := s.Notify(context.Background(), &Summary{
		Title:    "GET https://api.example.com/health",
		Passed:   false,
		Duration: 1234 * time.Millisecond,
		Fields:   []Field{{Title: "Status", Value: "503"}},
		Failures: []string{"unexpected_status: 503"},
	})
	require.NoError(t, err)

	assert.Equal(t, "#alerts", msg.Channel)
	require.Len(t, msg.Attachments, 1)
	a := msg.Attachments[0]
	assert.Equal(t, "danger", a.Color)
	assert.Equal(t, ":x: GET https://api.example.com/health", a.Title)
	assert.Equal(t, "• `unexpected_status: 503`\n", a.Text)
	assert.Equal(t, int64(1700000000), a.TS)
	assert.Equal(t, []slackField{
		{Title: "Result", Value: "failed", Short: true},
		{Title: "Duration", Value: "1.234s", Short: true},
		{Title: "Status", Value: "503", Short: true},
	}, a.Fields)
}

func TestSlackNotifier_HTTPError(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusNotFound)
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL).Notify(context.Background(), &Summary{Passed: true})
	assert.ErrorContains(t, err, "failed to send Slack notification")
}
