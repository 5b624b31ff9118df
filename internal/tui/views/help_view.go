package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/ridechat/internal/tui/ui"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv}
	hv.render(ui.Tag(theme.MenuKeyColor))
	return hv
}

func (hv *HelpView) render(kc string) {
	key := func(k string) string { return fmt.Sprintf("[%s]%s[-:-:-]", kc, k) }

	_, _ = fmt.Fprintf(hv, `
  [::b]Thread[-:-:-]

  %s      Focus composer       %s  Send message (in composer)
  %s      Retry last failed    %s    Leave composer / close help
  %s      Command mode         %s      Help
  %s      Quit

  [::b]Commands[-:-:-]

  %s             Switch to a ride
  %s                  Leave the active ride
  %s          Retry a failed message
  %s  React to a message
  %s           Send a recorded voice note
  %s                   Quit

  The chat counts as read while this window shows the thread.
`,
		key("i"), key("Enter"),
		key("r"), key("Esc"),
		key(":"), key("?"),
		key("q"),
		key(":ride <id>"),
		key(":leave"),
		key(":retry <id>"),
		key(":react <id> <emoji>"),
		key(":voice <file>"),
		key(":quit"),
	)
}
