package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/playerhub/internal/model"
)

const defaultGreeting = "Hello from the playerhub CLI"

func newConnectCmd() *cobra.Command {
	var greeting string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join the session and stream events",
		Long: `Open a WebSocket connection, send a greeting and print every event
the server sends.

Each line read from stdin is sent as a chat message. Events include:
  - welcome: Your player identity and the current player count
  - playerJoined / playerLeft: Other players coming and going
  - greeting-ack: Reply to the greeting sent on connect
  - chatMessage: Chat from any player, including your own
  - serverShutdown: The server is closing every connection

Press Ctrl+C to disconnect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runConnect(ctx, cmd, greeting)
		},
	}

	cmd.Flags().StringVar(&greeting, "greeting", defaultGreeting, "Greeting sent after connecting")

	return cmd
}

func runConnect(ctx context.Context, cmd *cobra.Command, greeting string) error {
	out := newCmdOutput(cmd)

	session, err := dialSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	if err := session.Greet(greeting, time.Now()); err != nil {
		return err
	}

	go forwardChat(ctx, session, cmd.InOrStdin(), out)

	for {
		event, err := session.Next(ctx)
		switch {
		case errors.Is(err, ErrSessionClosed), errors.Is(err, context.Canceled):
			if cfg.Verbose {
				out.PrintMessage("Disconnected")
			}
			return nil
		case err != nil:
			return err
		}

		out.PrintEvent(event)
		if event.Type() == model.EventServerShutdown {
			return nil
		}
	}
}

// forwardChat sends each non-blank stdin line as a chat message
func forwardChat(ctx context.Context, session *Session, in io.Reader, out *Output) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := session.Chat(line); err != nil {
			out.PrintError(err)
			return
		}
	}
}

func dialSession(ctx context.Context) (*Session, error) {
	wsURL, err := client.WebSocketURL()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	return Dial(dialCtx, wsURL)
}
