package notify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haukened/simplefilter/internal/filter/domain"
)

type capturingLogger struct {
	fields map[string]any
	msg    string
	level  string
}

func (l *capturingLogger) Info(f map[string]any, m string)  { l.fields, l.msg, l.level = f, m, "info" }
func (l *capturingLogger) Error(f map[string]any, m string) { l.fields, l.msg, l.level = f, m, "error" }
func (l *capturingLogger) Debug(f map[string]any, m string) { l.fields, l.msg, l.level = f, m, "debug" }
func (l *capturingLogger) Warn(f map[string]any, m string)  { l.fields, l.msg, l.level = f, m, "warn" }
func (l *capturingLogger) Panic(f map[string]any, m string) {}
func (l *capturingLogger) Fatal(f map[string]any, m string) {}

func TestNotification_Kind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", domain.ErrInvalidListReference), "invalid_list_reference"},
		{fmt.Errorf("x: %w", domain.ErrFetchExhausted), "fetch_exhausted"},
		{domain.ErrFileNotFound, "file_not_found"},
		{errors.New("other"), "error"},
		{nil, "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Notification{Err: tt.err}.Kind())
	}
}

func TestLogSink(t *testing.T) {
	l := &capturingLogger{}
	NewLogSink(l).Notify(Notification{Slot: 2, Label: "inProfile2", Ref: "rules.txt@profile", Err: domain.ErrFileNotFound})

	assert.Equal(t, "warn", l.level)
	assert.Equal(t, "profile_notification", l.msg)
	assert.Equal(t, "inProfile2", l.fields["profile"])
	assert.Equal(t, "file_not_found", l.fields["kind"])
	assert.Equal(t, domain.ErrFileNotFound, l.fields["error"])
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	var s Sink = r
	s.Notify(Notification{Slot: 0, Err: domain.ErrFetchExhausted})
	s.Notify(Notification{Slot: 1, Err: fmt.Errorf("wrapped: %w", domain.ErrFetchExhausted)})
	s.Notify(Notification{Slot: 1, Err: domain.ErrFileNotFound})

	assert.Len(t, r.All(), 3)
	assert.Equal(t, 2, r.Count(domain.ErrFetchExhausted))
	assert.Equal(t, 1, r.Count(domain.ErrFileNotFound))
	assert.Zero(t, r.Count(domain.ErrInvalidListReference))
}

func TestSinkFunc(t *testing.T) {
	var got Notification
	SinkFunc(func(n Notification) { got = n }).Notify(Notification{Slot: 4})
	assert.Equal(t, 4, got.Slot)
}
