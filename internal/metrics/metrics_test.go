package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSpeak(t *testing.T) {
	m := New(nil)

	m.RecordSpeak("amy", "hw:0", "ok", 2*time.Second, 4096)
	m.RecordSpeak("amy", "hw:0", "ok", time.Second, 1024)
	m.RecordSpeak("", "hw:0", "empty_text", time.Millisecond, 0)

	if got := testutil.ToFloat64(m.speakTotal.WithLabelValues("amy", "ok")); got != 2 {
		t.Errorf("expected 2 ok requests, got %f", got)
	}
	if got := testutil.ToFloat64(m.speakTotal.WithLabelValues("none", "empty_text")); got != 1 {
		t.Errorf("expected empty voice to be labelled none, got %f", got)
	}
	if got := testutil.ToFloat64(m.speakBytes.WithLabelValues("amy", "hw:0")); got != 5120 {
		t.Errorf("expected 5120 bytes, got %f", got)
	}
	if testutil.CollectAndCount(m.speakDuration) == 0 {
		t.Error("expected duration observations")
	}
}

func TestRecordLoad(t *testing.T) {
	m := New(nil)
	m.RecordLoad("amy", 500*time.Millisecond, nil)
	m.RecordLoad("amy", 10*time.Millisecond, errors.New("bad model"))

	if got := testutil.ToFloat64(m.loadTotal.WithLabelValues("amy", "success")); got != 1 {
		t.Errorf("expected 1 successful load, got %f", got)
	}
	if got := testutil.ToFloat64(m.loadTotal.WithLabelValues("amy", "error")); got != 1 {
		t.Errorf("expected 1 failed load, got %f", got)
	}
}

func TestHandler(t *testing.T) {
	m := New(func() int { return 3 })
	m.RecordSpeak("amy", "hw:0", "ok", time.Second, 10)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`pispeak_speak_requests_total{status="ok",voice="amy"} 1`,
		`pispeak_voices_loaded 3`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
