package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/stepwire/stepwire"
)

func newServeCmd() *cobra.Command {
	var (
		addr         string
		steps        int
		stepDuration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default()

			srv := stepwire.NewServer(stepwire.ServerOptions{Logger: logger})
			srv.RegisterTask(stepwire.DefaultTaskName, stepwire.Definition{
				TotalSteps:   steps,
				StepDuration: stepDuration,
			})

			logger.Info("listening", "addr", addr)
			return http.ListenAndServe(addr, srv)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8374", "listen address")
	cmd.Flags().IntVar(&steps, "steps", stepwire.DefaultTotalSteps, "number of work steps per task")
	cmd.Flags().DurationVar(&stepDuration, "step-duration", time.Second, "simulated duration of one step")
	return cmd
}
