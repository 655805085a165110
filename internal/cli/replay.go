package cli

import (
	"io"

	"github.com/spf13/cobra"
)

func newReplayCommand(opts *rootOptions, outW, errW io.Writer) *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "replay <run>",
		Short: "Play one greedy episode of a run's saved policy step by step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.newApp(errW)
			return a.Replay(cmd.Context(), args[0], seed, outW)
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "Environment seed for the episode.")

	return cmd
}
