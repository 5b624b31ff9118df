package views

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/ridechat/internal/chatrpc"
	"github.com/matheus3301/ridechat/internal/tui/ui"
)

// Thread displays the active ride's messages above a composer.
type Thread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	onSend   func(text string)
	onType   func()
}

// NewThread creates the thread view.
func NewThread(theme *ui.Theme) *Thread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" No active ride ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Message (i to focus, Esc to leave) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	t := &Thread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetChangedFunc(func(text string) {
		if text != "" && t.onType != nil {
			t.onType()
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || t.onSend == nil {
			return
		}
		text := strings.TrimSpace(composer.GetText())
		if text == "" {
			return
		}
		// Clear before sending so the change callback sees an empty field.
		composer.SetText("")
		t.onSend(text)
	})

	return t
}

// SetOnSend sets the callback for a submitted message.
func (t *Thread) SetOnSend(fn func(text string)) { t.onSend = fn }

// SetOnType sets the callback for each edit of a non-empty draft.
func (t *Thread) SetOnType(fn func()) { t.onType = fn }

// Messages returns the messages text view (for focus management).
func (t *Thread) Messages() *tview.TextView { return t.messages }

// Composer returns the composer input field (for focus management).
func (t *Thread) Composer() *tview.InputField { return t.composer }

// SetRide updates the title with the ride id.
func (t *Thread) SetRide(rideID string) {
	if rideID == "" {
		t.messages.SetTitle(" No active ride ")
		return
	}
	t.messages.SetTitle(fmt.Sprintf(" Ride %s ", rideID))
}

// Update redraws the thread.
func (t *Thread) Update(msgs []chatrpc.Message) {
	t.messages.Clear()
	for _, m := range msgs {
		_, _ = fmt.Fprint(t.messages, t.format(m))
	}
	t.messages.ScrollToEnd()
}

func (t *Thread) format(m chatrpc.Message) string {
	sender := m.SenderID
	color := ui.Tag(t.theme.PeerColor)
	if m.Own {
		sender = "You"
		color = ui.Tag(t.theme.OwnColor)
	}

	body := tview.Escape(sanitizeForTerminal(m.Body))
	if m.Type == "voice" {
		body = "[::i]voice note[-:-:-]"
	}

	line := fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-]", color, tview.Escape(sanitizeForTerminal(sender)), formatTimestamp(m.CreatedAt))
	if m.Own {
		line += " " + t.glyph(m.Status)
	}
	if m.Reaction != "" {
		line += " " + tview.Escape(sanitizeForTerminal(m.Reaction))
	}
	return line + "\n" + body + "\n\n"
}

func (t *Thread) glyph(status string) string {
	switch status {
	case "read":
		return fmt.Sprintf("[%s]%s[-]", ui.Tag(t.theme.ReadColor), StatusGlyph(status))
	case "failed":
		return fmt.Sprintf("[%s]%s[-]", ui.Tag(t.theme.FailedColor), StatusGlyph(status))
	}
	return StatusGlyph(status)
}

// StatusGlyph is the delivery marker shown next to an own message.
func StatusGlyph(status string) string {
	switch status {
	case "sending":
		return "…"
	case "sent":
		return "✓"
	case "delivered":
		return "✓✓"
	case "read":
		return "✓✓ read"
	case "failed":
		return "! not sent (r to retry)"
	}
	return ""
}

func formatTimestamp(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	local := at.Local()
	if time.Since(at) < 24*time.Hour {
		return local.Format("15:04")
	}
	return local.Format("Jan 2 15:04")
}

// sanitizeForTerminal drops codepoints tcell renders badly: skin tone
// modifiers, zero width joiners and variation selectors.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	}
	return false
}
