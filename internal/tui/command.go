package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/ridechat/internal/tui/model"
)

// errQuit is returned by the quit command.
var errQuit = errors.New("quit")

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Run executes the command against the daemon and returns a line for the
// flash bar.
func (c Command) Run(ctx context.Context, d model.Daemon) (string, error) {
	switch c.Name {
	case "ride":
		if c.Args == "" {
			return "", fmt.Errorf("usage: ride <id>")
		}
		if err := d.ActivateRide(ctx, c.Args); err != nil {
			return "", err
		}
		return "ride " + c.Args, nil

	case "leave":
		if err := d.DeactivateRide(ctx); err != nil {
			return "", err
		}
		return "left ride", nil

	case "retry":
		if c.Args == "" {
			return "", fmt.Errorf("usage: retry <local-id>")
		}
		if err := d.Retry(ctx, c.Args); err != nil {
			return "", err
		}
		return "retrying", nil

	case "react":
		id, reaction, ok := strings.Cut(c.Args, " ")
		if !ok || id == "" || strings.TrimSpace(reaction) == "" {
			return "", fmt.Errorf("usage: react <id> <reaction>")
		}
		if err := d.React(ctx, id, strings.TrimSpace(reaction)); err != nil {
			return "", err
		}
		return "reacted", nil

	case "voice":
		if c.Args == "" {
			return "", fmt.Errorf("usage: voice <file>")
		}
		audio, err := os.ReadFile(c.Args)
		if err != nil {
			return "", err
		}
		if _, err := d.SendVoice(ctx, audio); err != nil {
			return "", err
		}
		return "voice note queued", nil

	case "q", "quit":
		return "", errQuit
	}
	return "", fmt.Errorf("unknown command %q", c.Name)
}
