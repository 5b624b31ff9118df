package tui

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/time/rate"

	"github.com/matheus3301/ridechat/internal/tui/keys"
	"github.com/matheus3301/ridechat/internal/tui/model"
	"github.com/matheus3301/ridechat/internal/tui/ui"
	"github.com/matheus3301/ridechat/internal/tui/views"
)

const (
	pageThread = "thread"
	pageHelp   = "help"

	rpcTimeout     = 10 * time.Second
	watchRetry     = 2 * time.Second
	typingInterval = time.Second
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	screen    tcell.Screen
	root      *tview.Flex
	pages     *ui.Pages
	prompt    *ui.Prompt
	vm        *model.ViewModel
	daemon    model.Daemon
	registry  *keys.Registry
	statusBar *views.StatusBar
	thread    *views.Thread
	help      *views.HelpView
	typing    rate.Sometimes
	visible   atomic.Bool
	rideID    string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application. rideID, when set, is activated on start.
func NewApp(d model.Daemon, rideID string) (*App, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication().SetScreen(screen),
		screen:    screen,
		pages:     ui.NewPages(),
		prompt:    ui.NewPrompt(theme),
		vm:        model.NewViewModel(d),
		daemon:    d,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(theme),
		thread:    views.NewThread(theme),
		help:      views.NewHelpView(theme),
		typing:    rate.Sometimes{Interval: typingInterval},
		rideID:    rideID,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a, nil
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: ":command", Visible: true,
		Handler: a.showPrompt,
	})
	a.registry.AddView(pageThread, &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:retry", Visible: true,
		Handler: a.retryLast,
	})
	a.registry.AddView(pageThread, &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "?:help", Visible: true,
		Handler: func() { a.pages.Push(pageHelp) },
	})
	a.registry.AddView(pageHelp, &keys.Action{
		Key:     tcell.KeyEscape,
		Handler: func() { a.pages.Pop() },
	})
}

func (a *App) setupCallbacks() {
	a.thread.SetOnSend(func(text string) {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
			defer cancel()
			if _, err := a.daemon.SendText(ctx, text); err != nil {
				a.vm.Flash.Err("send failed: " + err.Error())
				a.redraw()
			}
		}()
	})

	a.thread.SetOnType(func() {
		a.typing.Do(func() {
			go func() {
				ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
				defer cancel()
				_ = a.daemon.Typing(ctx)
			}()
		})
	})

	a.prompt.SetOnSubmit(func(text string) {
		a.hidePrompt()
		go a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	// The chat counts as read only while the thread is in front.
	a.pages.SetOnChange(func(front string) {
		a.visible.Store(front == pageThread)
		go a.syncVisibility(front == pageThread)
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()

		// Let text input widgets handle all keys normally.
		if focused == a.prompt.InputField {
			return event
		}
		if focused == a.thread.Composer() {
			if event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}

		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	a.pages.Reset(pageThread)
	a.app.SetFocus(a.thread.Composer())

	go func() {
		if err := a.load(); err != nil {
			a.vm.Flash.Err(err.Error())
		}
		a.redraw()
		a.watch()
	}()

	err := a.app.Run()

	// Leave the chat closed so messages that arrive later count as unread.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = a.daemon.CloseChat(ctx)
	a.cancel()
	return err
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) load() error {
	ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
	defer cancel()
	if a.rideID != "" {
		if err := a.daemon.ActivateRide(ctx, a.rideID); err != nil {
			return err
		}
	}
	if err := a.vm.LoadStatus(ctx); err != nil {
		return err
	}
	if err := a.vm.LoadThread(ctx); err != nil {
		return err
	}
	a.syncVisibility(a.visible.Load())
	return nil
}

// watch keeps the event stream open until the app exits.
func (a *App) watch() {
	for a.ctx.Err() == nil {
		err := a.vm.Watch(a.ctx, func(alert *model.Alert) {
			if alert != nil {
				_ = a.screen.Beep()
				a.vm.Flash.Info("new message from " + alert.SenderID)
			}
			a.redraw()
		})
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.vm.Flash.Err("daemon stream lost: " + err.Error())
			a.redraw()
		}
		select {
		case <-time.After(watchRetry):
		case <-a.ctx.Done():
			return
		}
		_ = a.load()
		a.redraw()
	}
}

func (a *App) runCommand(cmd Command) {
	ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
	defer cancel()

	msg, err := cmd.Run(ctx, a.daemon)
	switch {
	case errors.Is(err, errQuit):
		a.Stop()
		return
	case err != nil:
		a.vm.Flash.Err(err.Error())
	default:
		a.vm.Flash.Info(msg)
	}

	if err == nil && (cmd.Name == "ride" || cmd.Name == "leave") {
		ride := ""
		if cmd.Name == "ride" {
			ride = cmd.Args
		}
		a.vm.SetRide(ride)
		_ = a.vm.LoadThread(ctx)
		a.syncVisibility(a.visible.Load())
	}
	a.redraw()
}

func (a *App) retryLast() {
	localID, ok := a.vm.LastFailed()
	if !ok {
		a.vm.Flash.Info("nothing to retry")
		a.redraw()
		return
	}
	go a.runCommand(Command{Name: "retry", Args: localID})
}

func (a *App) syncVisibility(visible bool) {
	if a.vm.Snapshot().RideID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
	defer cancel()
	var err error
	if visible {
		err = a.daemon.OpenChat(ctx)
	} else {
		err = a.daemon.CloseChat(ctx)
	}
	if err != nil {
		a.vm.Flash.Err(err.Error())
		a.redraw()
	}
}

func (a *App) showPrompt() {
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.app.SetFocus(a.thread.Composer())
}

func (a *App) redraw() {
	a.app.QueueUpdateDraw(func() {
		s := a.vm.Snapshot()
		flash, level := a.vm.Flash.Get()
		a.thread.SetRide(s.RideID)
		a.thread.Update(s.Messages)
		a.statusBar.Update(s, flash, level)
	})
}
