// Package cli defines the crowdsim command tree.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/behaviorlab/crowdsim/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	expRoot   string
	logLevel  string
	logFormat string
}

func (o *rootOptions) validate() error {
	switch o.logFormat {
	case "text", "json":
	default:
		return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	switch o.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return nil
}

// newApp builds the App for a command invocation; logs go to errW so command
// output on outW stays machine-readable.
func (o *rootOptions) newApp(errW io.Writer) *app.App {
	return app.New(errW, app.Config{
		ExpRoot:   o.expRoot,
		LogFormat: o.logFormat,
		LogLevel:  o.logLevel,
	})
}

// Execute parses args and runs the selected command. outW receives command
// output, errW receives logs.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "crowdsim",
		Short: "Crowdworker behavior simulation and training pipeline",
		Long: `crowdsim simulates a crowdworker choosing between tasks on a
microtask platform and trains reinforcement-learning models of the worker's
task-selection and effort decisions. Trained runs are stored as artifact
directories under the experiment root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.validate()
		},
	}
	root.SetOut(outW)
	root.SetErr(errW)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.expRoot, "exp-root", "exp", "Directory holding the experiment run directories.")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log output format: 'text' or 'json'.")

	root.AddCommand(
		newTrainCommand(opts, errW),
		newEvaluateCommand(opts, outW, errW),
		newReplayCommand(opts, outW, errW),
		newServeCommand(opts, errW),
	)

	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			return exitErr
		}
		return &ExitError{Code: 1, Message: err.Error()}
	}
	return nil
}

func formatReasons(reasons map[string]int) string {
	out := ""
	for reason, count := range reasons {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", reason, count)
	}
	return out
}
