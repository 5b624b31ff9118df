package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true, Handler: func() { got = append(got, "global q") }})
	r.AddView("thread", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = append(got, "thread q") }})
	r.AddView("thread", &Action{Key: tcell.KeyRune, Rune: 'i', Description: "i:compose", Visible: true, Handler: func() { got = append(got, "i") }})

	q := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)
	if !r.HandleEvent("thread", q) || !r.HandleEvent("help", q) {
		t.Fatal("q not handled")
	}
	if r.HandleEvent("help", tcell.NewEventKey(tcell.KeyRune, 'i', tcell.ModNone)) {
		t.Error("page binding fired on another page")
	}
	want := []string{"thread q", "global q"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("handlers = %v, want %v", got, want)
	}

	hints := r.Hints("thread")
	if len(hints) != 2 || hints[0] != "i:compose" || hints[1] != "q:quit" {
		t.Errorf("Hints() = %v", hints)
	}
}
