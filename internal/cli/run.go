package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
		newRunEventsCmd(clientFn, outputFn),
		newRunWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var projectID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				ProjectID: projectID,
				Status:    status,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"CORRELATION_ID", "PROJECT", "MANIFEST", "STATUS", "STARTED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.CorrelationID, r.ProjectID, r.ManifestName, r.Status, r.StartedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Filter by project ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (STARTED, RUNNING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var projectID string
	var detach bool

	cmd := &cobra.Command{
		Use:   "start MANIFEST",
		Short: "Start a new run",
		Long: `Start a new run for a manifest known to the server.

By default blocks until the run reaches a terminal status and prints
the result. With --detach the correlation ID is printed immediately;
use "conductor run watch" to follow progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateRunRequest{
				Manifest:  args[0],
				ProjectID: projectID,
			}

			if detach {
				accepted, err := client.StartRunAsync(req)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Run started: %s", accepted.CorrelationID))
				out.Print(
					[]string{"CORRELATION_ID", "PROJECT", "STATUS"},
					[][]string{{accepted.CorrelationID, accepted.ProjectID, accepted.Status}},
					accepted,
				)
				return nil
			}

			result, err := client.StartRunSync(req)
			if err != nil {
				return err
			}

			if result.OK {
				out.Success(fmt.Sprintf("Run completed: %s", result.CorrelationID))
			} else {
				out.Error(fmt.Sprintf("Run failed: %s", result.Error))
			}
			out.Print(
				[]string{"CORRELATION_ID", "PROJECT", "OK", "STEPS", "ERROR"},
				[][]string{{
					result.CorrelationID,
					result.ProjectID,
					strconv.FormatBool(result.OK),
					strconv.Itoa(len(result.Steps)),
					result.Error,
				}},
				result,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID (defaults to the manifest's project)")
	cmd.Flags().BoolVar(&detach, "detach", false, "Return immediately instead of waiting for completion")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"CORRELATION_ID", "PROJECT", "MANIFEST", "STATUS", "ERROR", "STARTED"},
				[][]string{{run.CorrelationID, run.ProjectID, run.ManifestName, run.Status, run.Error, run.StartedAt}},
				run,
			)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.CancelRun(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run cancelled: %s", args[0]))
			return nil
		},
	}
}

func newRunEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "events ID",
		Short: "Show the full progress history of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			events, err := client.ListEvents(args[0])
			if err != nil {
				return err
			}

			out.Print(eventHeaders(), eventRows(events), events)
			return nil
		},
	}
}

func newRunWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Stream progress events of a run until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			return client.Watch(cmd.Context(), args[0], func(e EventResponse) error {
				step := e.StepName
				if step == "" {
					step = "(run)"
				}
				out.Line(fmt.Sprintf("%s  %-20s %-10s %s", e.Timestamp, step, e.Status, e.Detail))
				return nil
			})
		},
	}
}

func eventHeaders() []string {
	return []string{"SEQ", "STEP", "STATUS", "DETAIL", "TIMESTAMP"}
}

func eventRows(events []EventResponse) [][]string {
	rows := make([][]string, len(events))
	for i, e := range events {
		step := e.StepName
		if step == "" {
			step = "(run)"
		}
		rows[i] = []string{strconv.FormatInt(e.Seq, 10), step, e.Status, e.Detail, e.Timestamp}
	}
	return rows
}
