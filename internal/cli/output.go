package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mcoot/playerhub/internal/api/response"
	"github.com/mcoot/playerhub/internal/model"
	"github.com/mcoot/playerhub/internal/protocol"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	out    io.Writer
	errOut io.Writer
}

// NewOutput creates a new Output formatter writing to out and errOut
func NewOutput(format string, out, errOut io.Writer) *Output {
	return &Output{format: format, out: out, errOut: errOut}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		_, _ = fmt.Fprintln(o.errOut, string(data))
	} else {
		_, _ = fmt.Fprintf(o.errOut, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.out, string(data))
	} else {
		_, _ = fmt.Fprintln(o.out, msg)
	}
}

// PrintEvent outputs a server event. JSON mode writes the wire frame as a
// single line so the output can be piped into other tools.
func (o *Output) PrintEvent(event model.OutboundEvent) {
	if o.format == "json" {
		frame, err := protocol.Encode(event)
		if err != nil {
			o.PrintError(err)
			return
		}
		_, _ = fmt.Fprintln(o.out, string(frame))
		return
	}
	_, _ = fmt.Fprintln(o.out, describeEvent(event))
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Health:
		o.printHealth(v)
	case response.Status:
		o.printStatus(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printHealth(h response.Health) {
	_, _ = fmt.Fprintf(o.out, "Status: %s\n", h.Message)
	_, _ = fmt.Fprintf(o.out, "Time: %s\n", h.Timestamp)
	_, _ = fmt.Fprintf(o.out, "Connected players: %d\n", h.ConnectedPlayers)
}

func (o *Output) printStatus(s response.Status) {
	_, _ = fmt.Fprintf(o.out, "Server: %s (%s)\n", s.Name, s.Version)
	if s.Description != "" {
		_, _ = fmt.Fprintln(o.out, s.Description)
	}
	_, _ = fmt.Fprintf(o.out, "Events: %s\n", strings.Join(s.Events, ", "))
	_, _ = fmt.Fprintf(o.out, "Players (%d):\n", s.ConnectedPlayers)
	for _, p := range s.Players {
		_, _ = fmt.Fprintf(o.out, "  - %s since %s\n", p.PlayerID, p.ConnectedAt)
	}
}

func describeEvent(event model.OutboundEvent) string {
	switch e := event.(type) {
	case model.Welcome:
		return fmt.Sprintf("* %s (you are %s, %d online)", e.Message, e.PlayerID, e.TotalPlayers)
	case model.PlayerJoined:
		return fmt.Sprintf("* %s joined (%d online)", e.PlayerID, e.TotalPlayers)
	case model.PlayerLeft:
		return fmt.Sprintf("* %s left (%d online)", e.PlayerID, e.TotalPlayers)
	case model.GreetingAck:
		return fmt.Sprintf("* %s", e.Message)
	case model.ChatMessage:
		return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Local().Format("15:04:05"), e.PlayerID, e.Message)
	case model.ServerShutdown:
		return fmt.Sprintf("* %s", e.Message)
	default:
		return fmt.Sprintf("* %s", event.Type())
	}
}
