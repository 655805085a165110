package cli

import (
	"io"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/behaviorlab/crowdsim/internal/app"
)

func newTrainCommand(opts *rootOptions, errW io.Writer) *cobra.Command {
	var (
		scenarioPath string
		name         string
		overwrite    bool
		vars         []string
		cpuProfile   bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model from a scenario file into a new run directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cpuProfile {
				defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
			}
			a := opts.newApp(errW)
			run, err := a.Train(cmd.Context(), app.TrainOptions{
				ScenarioPath: scenarioPath,
				Vars:         vars,
				Name:         name,
				Overwrite:    overwrite,
			})
			if err != nil {
				return err
			}
			cmd.Printf("Run %q trained: %s\n", name, run.Dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "Path to the scenario HCL file. (required)")
	cmd.Flags().StringVar(&name, "name", "", "Name of the run directory to create. (required)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace the run directory if it already exists.")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Scenario variable as key=value, exposed as var.<key>. Repeatable.")
	cmd.Flags().BoolVar(&cpuProfile, "cpu-profile", false, "Write a CPU profile to the current directory.")
	_ = cmd.MarkFlagRequired("scenario")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
