package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/playerhub/internal/model"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a single chat message and disconnect",
		Long: `Join the session, send one chat message, wait for the server to
broadcast it back and then disconnect.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" {
				return fmt.Errorf("message must not be blank")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			echo, err := sendChat(ctx, message)
			if err != nil {
				return err
			}

			newCmdOutput(cmd).PrintEvent(echo)
			return nil
		},
	}
}

// sendChat joins, sends message and returns the server's broadcast of it
func sendChat(ctx context.Context, message string) (model.ChatMessage, error) {
	session, err := dialSession(ctx)
	if err != nil {
		return model.ChatMessage{}, err
	}
	defer func() { _ = session.Close() }()

	if err := session.Greet(defaultGreeting, time.Now()); err != nil {
		return model.ChatMessage{}, err
	}

	if _, err := session.WaitFor(ctx, isType(model.EventWelcome)); err != nil {
		return model.ChatMessage{}, fmt.Errorf("waiting for welcome: %w", err)
	}
	self := session.PlayerID()

	if err := session.Chat(message); err != nil {
		return model.ChatMessage{}, err
	}

	seen, err := session.WaitFor(ctx, func(event model.OutboundEvent) bool {
		chat, ok := event.(model.ChatMessage)
		return ok && chat.PlayerID == self && chat.Message == message
	})
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("waiting for chat echo: %w", err)
	}
	return seen[len(seen)-1].(model.ChatMessage), nil
}

func isType(t model.EventType) func(model.OutboundEvent) bool {
	return func(event model.OutboundEvent) bool {
		return event.Type() == t
	}
}
