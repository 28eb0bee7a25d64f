package main

import (
	"livecheck/cmd/internal/app"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Long: `Start the verification server.

Serves:
  - POST /upload_target      reference image upload
  - GET  /ws                 verification session (subprotocol livecheck.v1)
  - GET  /sessions/{id}      session snapshot
  - GET  /healthz /readyz /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context())
		},
	}
}
