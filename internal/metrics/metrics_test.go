package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func value(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label != "" {
				match := false
				for _, lp := range metric.GetLabel() {
					if lp.GetValue() == label {
						match = true
					}
				}
				if !match {
					continue
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func TestCounters(t *testing.T) {
	m := New()
	m.Message("appended")
	m.Message("appended")
	m.Message("duplicate")
	m.Send("failed")
	m.MarkRead("ok")
	m.Resubscribe()
	m.SetUnread(3)

	tests := []struct {
		name, label string
		want        float64
	}{
		{"ridechat_messages_total", "appended", 2},
		{"ridechat_messages_total", "duplicate", 1},
		{"ridechat_sends_total", "failed", 1},
		{"ridechat_mark_read_total", "ok", 1},
		{"ridechat_resubscribes_total", "", 1},
		{"ridechat_unread", "", 3},
	}
	for _, tt := range tests {
		if got := value(t, m, tt.name, tt.label); got != tt.want {
			t.Errorf("%s{%s} = %v, want %v", tt.name, tt.label, got, tt.want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Message("appended")
	m.Send("ok")
	m.MarkRead("failed")
	m.Resubscribe()
	m.SetUnread(1)
}

func TestHandler(t *testing.T) {
	m := New()
	m.Send("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `ridechat_sends_total{result="ok"} 1`) {
		t.Errorf("exposition missing send counter:\n%s", body)
	}
}
