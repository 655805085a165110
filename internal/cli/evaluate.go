package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/behaviorlab/crowdsim/internal/app"
)

func newEvaluateCommand(opts *rootOptions, outW, errW io.Writer) *cobra.Command {
	var (
		episodes int
		workers  int
		seed     uint64
		record   bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate <run>",
		Short: "Roll out a run's saved policy and report aggregate rewards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.newApp(errW)
			report, err := a.Evaluate(cmd.Context(), app.EvaluateOptions{
				Run:      args[0],
				Episodes: episodes,
				Workers:  workers,
				Seed:     seed,
				Record:   record,
			})
			if err != nil {
				return err
			}
			cmd.Printf("Episodes:     %d\n", report.Episodes)
			cmd.Printf("Mean reward:  %.3f ± %.3f\n", report.MeanReward, report.StdReward)
			cmd.Printf("Reward range: [%.3f, %.3f]\n", report.MinReward, report.MaxReward)
			cmd.Printf("Mean length:  %.1f\n", report.MeanLength)
			cmd.Printf("End reasons:  %s\n", formatReasons(report.EndReasons))
			return nil
		},
	}
	cmd.SetOut(outW)

	cmd.Flags().IntVar(&episodes, "episodes", 100, "Number of evaluation episodes.")
	cmd.Flags().IntVar(&workers, "workers", 4, "Number of parallel rollout workers.")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Base seed; episode i uses seed+i.")
	cmd.Flags().BoolVar(&record, "record", false, "Store the aggregated result in the run's metrics database.")

	return cmd
}
