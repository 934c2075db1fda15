package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/soundboard-relay/internal/model"
)

func newBoardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Board session commands",
	}

	cmd.AddCommand(newBoardCreateCmd())
	cmd.AddCommand(newBoardJoinCmd())

	return cmd
}

func newBoardCreateCmd() *cobra.Command {
	var (
		auth   string
		locked bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a board and stay attached to it",
		Long: `Create a new board, print it, then print every event from the board
until interrupted. Sound requests from other members are answered with an
empty sound list or SoundNotCached.

Press Ctrl+C to leave the board.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"clientData": cfg.ClientData()}
			if cmd.Flags().Changed("auth") {
				req["auth"] = auth
			}
			if locked {
				req["locked"] = true
			}
			return attach(cmd.Context(), model.EventBoardCreate, req)
		},
	}

	cmd.Flags().StringVar(&auth, "auth", "", "Secret required to join the board")
	cmd.Flags().BoolVar(&locked, "locked", false, "Create the board locked")

	return cmd
}

func newBoardJoinCmd() *cobra.Command {
	var auth string

	cmd := &cobra.Command{
		Use:   "join <board-id>",
		Short: "Join a board and stay attached to it",
		Long: `Join an existing board, print it, then print every event from the board
until interrupted.

Press Ctrl+C to leave the board.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"clientData": cfg.ClientData(),
				"boardId":    args[0],
			}
			if cmd.Flags().Changed("auth") {
				req["auth"] = auth
			}
			return attach(cmd.Context(), model.EventBoardJoin, req)
		},
	}

	cmd.Flags().StringVar(&auth, "auth", "", "Board secret")

	return cmd
}

// attach binds a new session to a board with event, then streams events
// until interrupted or disconnected
func attach(ctx context.Context, event string, req map[string]any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := Dial(ctx, cfg.ServerURL)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	board, err := requestBoard(ctx, session, event, req)
	if err != nil {
		return err
	}

	out := NewOutput(cfg.Output)
	out.Print(board)

	for {
		select {
		case frame, ok := <-session.Events():
			if !ok {
				if cfg.Output != "json" {
					fmt.Println("Disconnected")
				}
				return nil
			}
			out.PrintEvent(frame)
		case <-ctx.Done():
			leaveCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
			_, _ = session.Request(leaveCtx, model.EventBoardLeave, nil)
			cancel()
			if cfg.Output != "json" {
				fmt.Println("\nLeft board")
			}
			return nil
		}
	}
}

// requestBoard sends a create or join request and decodes the board in the ack
func requestBoard(ctx context.Context, session *Session, event string, req map[string]any) (Board, error) {
	reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	data, err := session.Request(reqCtx, event, req)
	if err != nil {
		return Board{}, err
	}

	var board Board
	if err := decodeInto(data, &board); err != nil {
		return Board{}, fmt.Errorf("failed to parse board: %w", err)
	}
	return board, nil
}
