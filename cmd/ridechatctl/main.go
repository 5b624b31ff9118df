package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/ridechat/internal/chatrpc"
	"github.com/matheus3301/ridechat/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := chatrpc.Dial(profile.SocketPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		ns := ""
		if len(args) >= 2 {
			ns = args[1]
		}
		cmdWatch(c, ns, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "ride":
		need(args, 2, "ride <ride-id>")
		check(c.ActivateRide(ctx, args[1]))
		fmt.Printf("Active ride: %s\n", args[1])
	case "leave":
		check(c.DeactivateRide(ctx))
	case "open":
		check(c.OpenChat(ctx))
	case "close":
		check(c.CloseChat(ctx))
	case "send":
		need(args, 2, "send <text>")
		localID, err := c.SendText(ctx, strings.Join(args[1:], " "))
		check(err)
		printSent(localID, *jsonFlag)
	case "voice":
		need(args, 2, "voice <file>")
		audio, err := os.ReadFile(args[1])
		check(err)
		if len(audio) > chatrpc.MaxVoiceMessage {
			fail(fmt.Errorf("%s is larger than %d bytes", args[1], chatrpc.MaxVoiceMessage))
		}
		localID, err := c.SendVoice(ctx, audio)
		check(err)
		printSent(localID, *jsonFlag)
	case "retry":
		need(args, 2, "retry <local-id>")
		check(c.Retry(ctx, args[1]))
	case "react":
		need(args, 3, "react <message-id> <reaction>")
		check(c.React(ctx, args[1], args[2]))
	case "typing":
		check(c.Typing(ctx))
	case "thread":
		cmdThread(ctx, c, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: ridechatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show daemon status")
	fmt.Fprintln(os.Stderr, "  ride <id>              Make a ride the active thread")
	fmt.Fprintln(os.Stderr, "  leave                  Drop the active ride")
	fmt.Fprintln(os.Stderr, "  open                   Mark the chat visible")
	fmt.Fprintln(os.Stderr, "  close                  Mark the chat hidden")
	fmt.Fprintln(os.Stderr, "  send <text>            Send a text message")
	fmt.Fprintln(os.Stderr, "  voice <file>           Send a recorded voice note")
	fmt.Fprintln(os.Stderr, "  retry <local-id>       Retry a failed send")
	fmt.Fprintln(os.Stderr, "  react <id> <reaction>  Set a local reaction")
	fmt.Fprintln(os.Stderr, "  typing                 Signal that you are typing")
	fmt.Fprintln(os.Stderr, "  thread                 Print the active thread")
	fmt.Fprintln(os.Stderr, "  watch [namespace]      Stream daemon events")
}

func cmdStatus(ctx context.Context, c *chatrpc.Client, jsonOut bool) {
	resp, err := c.GetStatus(ctx)
	check(err)
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile: %s\n", resp.Profile)
	fmt.Printf("Backend: %s\n", resp.Backend)
	fmt.Printf("Status:  %s\n", describeStatus(resp.Status))
	if resp.UserID != "" {
		fmt.Printf("User:    %s\n", resp.UserID)
	}
	if resp.RideID != "" {
		fmt.Printf("Ride:    %s\n", resp.RideID)
	}
	fmt.Printf("Uptime:  %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
}

func cmdThread(ctx context.Context, c *chatrpc.Client, jsonOut bool) {
	resp, err := c.GetThread(ctx)
	check(err)
	if jsonOut {
		outputJSON(resp)
		return
	}
	if resp.RideID == "" {
		fmt.Println("No active ride.")
		return
	}
	state := "closed"
	if resp.Open {
		state = "open"
	}
	fmt.Printf("Ride %s (%s, %d unread)\n", resp.RideID, state, resp.Unread)
	for _, m := range resp.Messages {
		fmt.Println(formatMessage(m))
	}
	if resp.Typing {
		fmt.Println("... typing")
	}
}

func cmdWatch(c *chatrpc.Client, namespace string, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := c.WatchEvents(ctx, namespace)
	check(err)
	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		fmt.Printf("%s %s", evt.At.Local().Format("15:04:05"), evt.Kind)
		switch {
		case evt.Status != nil:
			fmt.Printf(" %s", describeStatus(*evt.Status))
		case evt.Unread != nil:
			fmt.Printf(" %d", *evt.Unread)
		case evt.Typing != nil:
			fmt.Printf(" %v", *evt.Typing)
		case evt.Alert != nil:
			fmt.Printf(" %s", formatMessage(*evt.Alert))
		case evt.SendFailed != nil:
			fmt.Printf(" %s: %s", evt.SendFailed.LocalID, evt.SendFailed.Error)
		case evt.Messages != nil:
			fmt.Printf(" (%d messages)", len(evt.Messages))
		}
		fmt.Println()
	}
}

func formatMessage(m chatrpc.Message) string {
	who := m.SenderID
	if m.Own {
		who = "you"
	}
	line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("15:04:05"), who, m.Body)
	if m.Type != "text" {
		line = fmt.Sprintf("[%s] %s: <%s %s>", m.CreatedAt.Local().Format("15:04:05"), who, m.Type, m.Body)
	}
	if m.Own {
		line += "  (" + m.Status + ")"
	}
	if m.Reaction != "" {
		line += " " + m.Reaction
	}
	return line
}

func describeStatus(s chatrpc.Status) string {
	if s.Reason == "" {
		return s.State
	}
	return s.State + " - " + s.Reason
}

func printSent(localID string, jsonOut bool) {
	if jsonOut {
		outputJSON(chatrpc.SendResponse{LocalID: localID})
		return
	}
	fmt.Printf("Queued: %s\n", localID)
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: ridechatctl %s\n", usage)
		os.Exit(1)
	}
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
