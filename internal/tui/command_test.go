package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/ridechat/internal/tui/model"
)

type recordingDaemon struct {
	model.Daemon

	calls []string
	err   error
}

func (r *recordingDaemon) ActivateRide(_ context.Context, id string) error {
	r.calls = append(r.calls, "ride "+id)
	return r.err
}

func (r *recordingDaemon) DeactivateRide(context.Context) error {
	r.calls = append(r.calls, "leave")
	return r.err
}

func (r *recordingDaemon) Retry(_ context.Context, id string) error {
	r.calls = append(r.calls, "retry "+id)
	return r.err
}

func (r *recordingDaemon) React(_ context.Context, id, reaction string) error {
	r.calls = append(r.calls, "react "+id+" "+reaction)
	return r.err
}

func (r *recordingDaemon) SendVoice(_ context.Context, audio []byte) (string, error) {
	r.calls = append(r.calls, "voice "+string(audio))
	return "l1", r.err
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"ride r1", Command{Name: "ride", Args: "r1"}},
		{"  REACT m1 👍 ", Command{Name: "react", Args: "m1 👍"}},
		{"leave", Command{Name: "leave"}},
		{"", Command{Name: ""}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.input); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestCommandRun(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "note.ogg")
	if err := os.WriteFile(audio, []byte("ogg"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		input string
		call  string
	}{
		{"ride r1", "ride r1"},
		{"leave", "leave"},
		{"retry l1", "retry l1"},
		{"react m1 👍", "react m1 👍"},
		{"voice " + audio, "voice ogg"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d := &recordingDaemon{}
			if _, err := ParseCommand(tt.input).Run(context.Background(), d); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(d.calls) != 1 || d.calls[0] != tt.call {
				t.Errorf("calls = %v, want [%s]", d.calls, tt.call)
			}
		})
	}
}

func TestCommandRunRejects(t *testing.T) {
	for _, input := range []string{"ride", "retry", "react m1", "voice", "voice /nonexistent/x.ogg", "dance"} {
		d := &recordingDaemon{}
		if _, err := ParseCommand(input).Run(context.Background(), d); err == nil {
			t.Errorf("Run(%q) expected error", input)
		}
		if len(d.calls) != 0 {
			t.Errorf("Run(%q) reached the daemon: %v", input, d.calls)
		}
	}
}

func TestCommandRunDaemonError(t *testing.T) {
	d := &recordingDaemon{err: errors.New("no ride")}
	if _, err := ParseCommand("leave").Run(context.Background(), d); err == nil {
		t.Error("Run() should surface daemon errors")
	}
}

func TestCommandQuit(t *testing.T) {
	_, err := ParseCommand("q").Run(context.Background(), &recordingDaemon{})
	if !errors.Is(err, errQuit) {
		t.Errorf("Run(q) = %v, want errQuit", err)
	}
}
