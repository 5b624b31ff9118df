package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/ridechat/internal/chatrpc"
	"github.com/matheus3301/ridechat/internal/tui/model"
	"github.com/matheus3301/ridechat/internal/tui/ui"
)

func TestStatusGlyph(t *testing.T) {
	tests := map[string]string{
		"sending":   "…",
		"sent":      "✓",
		"delivered": "✓✓",
		"read":      "✓✓ read",
		"bogus":     "",
	}
	for status, want := range tests {
		if got := StatusGlyph(status); got != want {
			t.Errorf("StatusGlyph(%q) = %q, want %q", status, got, want)
		}
	}
	if !strings.Contains(StatusGlyph("failed"), "retry") {
		t.Error("failed glyph should mention retry")
	}
}

func TestStatusLine(t *testing.T) {
	theme := ui.DefaultTheme()
	now := time.Date(2026, 1, 2, 15, 4, 0, 0, time.Local)

	line := StatusLine(theme, model.Snapshot{
		Profile: "main",
		RideID:  "r1",
		Status:  chatrpc.Status{State: "LIVE"},
		Unread:  2,
		Typing:  true,
	}, now)
	for _, want := range []string{"main", "LIVE", "ride r1", "2 unread", "typing", "15:04"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q missing %q", line, want)
		}
	}

	line = StatusLine(theme, model.Snapshot{Profile: "main"}, now)
	if strings.Contains(line, "unread") || strings.Contains(line, "typing") {
		t.Errorf("idle status line %q shows a badge", line)
	}
	if !strings.Contains(line, "CONNECTING") {
		t.Errorf("status line %q should show CONNECTING before the first status", line)
	}
}

func TestSanitizeForTerminal(t *testing.T) {
	if got := sanitizeForTerminal("ok 👍\U0001F3FD"); got != "ok 👍" {
		t.Errorf("sanitizeForTerminal() = %q", got)
	}
	if got := sanitizeForTerminal("plain"); got != "plain" {
		t.Errorf("sanitizeForTerminal() = %q", got)
	}
}

func TestThreadFormat(t *testing.T) {
	th := NewThread(ui.DefaultTheme())
	out := th.format(chatrpc.Message{SenderID: "driver", Body: "[red]hi", CreatedAt: time.Now()})
	if !strings.Contains(out, "driver") || !strings.Contains(out, "[red[]hi") {
		t.Errorf("format() = %q, want escaped body", out)
	}

	out = th.format(chatrpc.Message{Own: true, Body: "x", Status: "delivered", CreatedAt: time.Now()})
	if !strings.Contains(out, "You") || !strings.Contains(out, "✓✓") {
		t.Errorf("format() = %q, want own glyph", out)
	}
}
