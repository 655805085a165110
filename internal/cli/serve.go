package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/behaviorlab/crowdsim/internal/server"
)

func newServeCommand(opts *rootOptions, errW io.Writer) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the experiment root over a JSON HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := opts.newApp(errW)
			srv := server.New(a, opts.expRoot, port)
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "TCP port to listen on.")

	return cmd
}
