package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/ridechat/internal/tui/model"
	"github.com/matheus3301/ridechat/internal/tui/ui"
)

// StatusBar displays the profile, link state, unread badge and typing indicator.
type StatusBar struct {
	*tview.TextView
	theme *ui.Theme
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// Update redraws the bar from a model snapshot and the current flash.
func (sb *StatusBar) Update(s model.Snapshot, flash string, level model.FlashLevel) {
	sb.Clear()
	_, _ = fmt.Fprint(sb, StatusLine(sb.theme, s, time.Now()))
	if flash != "" {
		color := ui.Tag(sb.theme.FlashInfoColor)
		if level == model.FlashErr {
			color = ui.Tag(sb.theme.FlashErrColor)
		}
		_, _ = fmt.Fprintf(sb, " | [%s]%s[-]", color, tview.Escape(flash))
	}
}

// StatusLine renders the bar text without the flash message.
func StatusLine(theme *ui.Theme, s model.Snapshot, now time.Time) string {
	state := s.Status.State
	if state == "" {
		state = "CONNECTING"
	}
	if s.Status.Reason != "" {
		state += " (" + s.Status.Reason + ")"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s", s.Profile, tview.Escape(state))
	if s.RideID != "" {
		line += " | ride " + tview.Escape(s.RideID)
	}
	if s.Unread > 0 {
		line += fmt.Sprintf(" [%s::b](%d unread)[-:-:-]", ui.Tag(theme.BadgeColor), s.Unread)
	}
	if s.Typing {
		line += " | [::i]typing…[-:-:-]"
	}
	return line + " | " + now.Format("15:04")
}
