package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления tasks.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	cmd.AddCommand(
		newTaskEnqueueCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskListCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskEnqueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var input TaskInput
	var payload []string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a task to the worker queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			values, err := ParsePayload(payload)
			if err != nil {
				return err
			}
			input.Payload = values

			items, err := client.EnqueueTasks(input)
			if err != nil {
				return err
			}
			if len(items) != 1 {
				return fmt.Errorf("unexpected response: %d results", len(items))
			}
			if !items[0].Success {
				return errors.New(items[0].Error)
			}

			out.Success(fmt.Sprintf("Task enqueued: %s", items[0].ID))
			out.Print([]string{"ID", "SUCCESS"}, [][]string{{items[0].ID, "true"}}, items[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Type, "type", "website_html", "Task type (website_html, lighthouse_html)")
	cmd.Flags().StringVar(&input.URL, "url", "", "Target URL (http/https)")
	cmd.Flags().StringVar(&input.ID, "id", "", "Task ID (generated if empty)")
	cmd.Flags().StringSliceVar(&payload, "payload", nil, "Payload option as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("url")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "TYPE", "STATUS", "URL", "DURATION_MS", "ERROR"},
				[][]string{{task.ID, task.Type, task.Status, task.URL, formatDuration(task.DurationMs), task.Error}},
				task,
			)
			return nil
		},
	}
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListTasksOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "STATUS", "WORKER", "CREATED", "ERROR"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.ID, t.Type, t.Status, t.WorkerID, t.CreatedAt, t.Error}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

// ParsePayload разбирает KEY=VALUE. Значение, являющееся JSON-литералом
// (true, 42, {"a":1}), сохраняет тип; остальное — строка.
func ParsePayload(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	payload := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid payload format %q, expected KEY=VALUE", kv)
		}

		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		payload[key] = v
	}
	return payload, nil
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return ""
	}
	return fmt.Sprint(*ms)
}
