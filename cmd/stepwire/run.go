package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/stepwire/stepwire"
	"github.com/stepwire/stepwire/tasklog"
)

func newRunCmd() *cobra.Command {
	var (
		url         string
		task        string
		cancelAfter time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a task and stream its progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := stepwire.NewClient(url,
				stepwire.WithTaskName(task),
				stepwire.WithOnEntry(func(e tasklog.Entry) {
					fmt.Printf("[%s] %s\n", e.Time.Format("15:04:05"), e.Message)
				}),
			)

			if err := client.StartTask(cmd.Context()); err != nil {
				return err
			}

			// Ctrl-C cancels the task instead of killing the stream.
			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			defer signal.Stop(interrupt)
			go func() {
				<-interrupt
				client.CancelTask()
			}()

			if cancelAfter > 0 {
				time.AfterFunc(cancelAfter, client.CancelTask)
			}

			outcome := client.Wait()
			fmt.Printf("outcome: %s", outcome.Kind)
			if outcome.Kind == stepwire.OutcomeServerCancelled {
				fmt.Printf(" (at step %d)", outcome.Step)
			}
			fmt.Printf(", progress %d%%\n", client.Log().Percent())

			if outcome.Kind == stepwire.OutcomeTransportError {
				return outcome.Err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8374", "server base URL")
	cmd.Flags().StringVar(&task, "task", "", "task name (server default when empty)")
	cmd.Flags().DurationVar(&cancelAfter, "cancel-after", 0, "cancel the task after this duration (0 = never)")
	return cmd
}
