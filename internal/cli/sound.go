package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mcoot/soundboard-relay/internal/model"
)

func newSoundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sound",
		Short: "Sound commands",
	}

	cmd.AddCommand(newSoundPlayCmd())

	return cmd
}

func newSoundPlayCmd() *cobra.Command {
	var auth string

	cmd := &cobra.Command{
		Use:   "play <board-id> <sound-id>",
		Short: "Join a board, play a sound and leave",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			join := map[string]any{
				"clientData": cfg.ClientData(),
				"boardId":    args[0],
			}
			if cmd.Flags().Changed("auth") {
				join["auth"] = auth
			}

			result, err := playSound(ctx, join, args[1])
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&auth, "auth", "", "Board secret")

	return cmd
}

func playSound(ctx context.Context, join map[string]any, soundID string) (PlayResult, error) {
	session, err := Dial(ctx, cfg.ServerURL)
	if err != nil {
		return PlayResult{}, err
	}
	defer func() { _ = session.Close() }()

	board, err := requestBoard(ctx, session, model.EventBoardJoin, join)
	if err != nil {
		return PlayResult{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if _, err := session.Request(reqCtx, model.EventSoundPlay, model.SoundIDPayload{SoundID: soundID}); err != nil {
		return PlayResult{}, err
	}
	if _, err := session.Request(reqCtx, model.EventBoardLeave, nil); err != nil {
		return PlayResult{}, err
	}

	return PlayResult{BoardID: board.ID, SoundID: soundID, Played: true}, nil
}
