package metrics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWriteExposesRecordedMetrics(t *testing.T) {
	MessageHandled("ok", 20*time.Millisecond)
	Delivery("group", "complete", 3, time.Second)
	Reload(true, 4)
	Send("media", errors.New("boom"))
	RegisterSessions(func() (int, int, int, int) { return 2, 1, 0, 5 })

	var buf bytes.Buffer
	Write(&buf)
	out := buf.String()
	for _, want := range []string{
		`wirdbot_messages_total{outcome="ok"}`,
		`wirdbot_pages_sent_total{kind="group"}`,
		`wirdbot_triggers_registered 4`,
		`wirdbot_sends_total{kind="media",outcome="error"}`,
		`wirdbot_sessions_queued_messages 5`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}
