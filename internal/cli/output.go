package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mcoot/soundboard-relay/internal/transport"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
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
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

// PrintEvent outputs one frame received from the server, one line per event
func (o *Output) PrintEvent(frame transport.Frame) {
	now := time.Now()

	if o.format == "json" {
		data, _ := json.Marshal(Event{Time: now, Event: frame.Event, Data: frame.Data})
		fmt.Println(string(data))
		return
	}

	timestamp := now.Format("2006-01-02 15:04:05")
	payload, _ := json.Marshal(frame.Data)
	// Truncate data if it's too long for display
	displayData := string(payload)
	if len(displayData) > 100 {
		displayData = displayData[:100] + "..."
	}
	fmt.Printf("[%s] %s: %s\n", timestamp, frame.Event, displayData)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Board:
		o.printBoard(v)
	case PlayResult:
		o.printPlayResult(v)
	case HealthResult:
		o.printHealthResult(v)
	case StatsResult:
		o.printStatsResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Board response type (matches the board:create and board:join acks)
type Board struct {
	ID        string         `json:"id"`
	Locked    bool           `json:"locked"`
	Data      map[string]any `json:"data"`
	Auth      string         `json:"auth,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// PlayResult reports a sound played through a temporary session
type PlayResult struct {
	BoardID string `json:"boardId"`
	SoundID string `json:"soundId"`
	Played  bool   `json:"played"`
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

// StatsResult response type
type StatsResult struct {
	Boards          int `json:"boards"`
	Connections     int `json:"connections"`
	Groups          int `json:"groups"`
	PendingRequests int `json:"pendingRequests"`
}

// Event is a frame received while attached to a board
type Event struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Data  any       `json:"data,omitempty"`
}

func (o *Output) printBoard(b Board) {
	fmt.Printf("Board: %s\n", b.ID)
	fmt.Printf("Locked: %s\n", yesNo(b.Locked))
	fmt.Printf("Protected: %s\n", yesNo(b.Auth != ""))
	if !b.CreatedAt.IsZero() {
		fmt.Printf("Created: %s\n", b.CreatedAt.Format(time.RFC3339))
	}
	if len(b.Data) > 0 {
		keys := slices.Sorted(maps.Keys(b.Data))
		fmt.Printf("Data: %s\n", strings.Join(keys, ", "))
	}
}

func (o *Output) printPlayResult(p PlayResult) {
	fmt.Printf("Played %s on board %s\n", p.SoundID, p.BoardID)
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
}

func (o *Output) printStatsResult(s StatsResult) {
	fmt.Printf("Boards: %d\n", s.Boards)
	fmt.Printf("Connections: %d\n", s.Connections)
	fmt.Printf("Groups: %d\n", s.Groups)
	fmt.Printf("Pending requests: %d\n", s.PendingRequests)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
