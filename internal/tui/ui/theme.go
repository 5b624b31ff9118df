package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	TitleColor        tcell.Color
	MenuKeyColor      tcell.Color
	OwnColor          tcell.Color
	PeerColor         tcell.Color
	ReadColor         tcell.Color
	FailedColor       tcell.Color
	BadgeColor        tcell.Color
	FlashInfoColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		TitleColor:        tcell.ColorFuchsia,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		OwnColor:          tcell.ColorLightSkyBlue,
		PeerColor:         tcell.ColorPapayaWhip,
		ReadColor:         tcell.ColorAqua,
		FailedColor:       tcell.ColorOrangeRed,
		BadgeColor:        tcell.ColorOrange,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,
	}
}

// Tag returns c as a tview color tag name.
func Tag(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
