package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPingCmd создаёт команду ping.
func NewPingCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check worker availability and shared secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ping, err := client.Ping()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"STATUS", "WORKER_ID", "ACTIVE_TASKS"},
				[][]string{{ping.Status, ping.WorkerID, strconv.Itoa(ping.ActiveTasks)}},
				ping,
			)
			return nil
		},
	}
}

// NewStatsCmd создаёт команду stats.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.Stats()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"PENDING", "PROCESSING", "COMPLETED", "FAILED", "TOTAL"},
				[][]string{{
					fmt.Sprint(stats.Pending),
					fmt.Sprint(stats.Processing),
					fmt.Sprint(stats.Completed),
					fmt.Sprint(stats.Failed),
					fmt.Sprint(stats.Total),
				}},
				stats,
			)
			return nil
		},
	}
}
