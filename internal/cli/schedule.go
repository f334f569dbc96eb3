package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для управления schedules.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage schedules",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleUpdateCmd(clientFn, outputFn),
		newScheduleDeleteCmd(clientFn, outputFn),
		newScheduleEnableCmd(clientFn, outputFn, true),
		newScheduleEnableCmd(clientFn, outputFn, false),
	)

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var manifestName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedules, err := client.ListSchedules(manifestName)
			if err != nil {
				return err
			}

			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = scheduleRow(s)
			}

			out.Print(scheduleHeaders(), rows, schedules)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestName, "manifest", "", "Filter by manifest name")

	return cmd
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var projectID string
	var cronExpr string
	var intervalSec int
	var timezone string
	var disabled bool

	cmd := &cobra.Command{
		Use:   "create MANIFEST",
		Short: "Create a schedule for a manifest",
		Long: `Create a schedule that starts runs of a manifest periodically.

Exactly one of --cron or --interval must be given. Cron expressions use
the standard five fields and are evaluated in --timezone (default UTC).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedule, err := client.CreateSchedule(CreateScheduleRequest{
				Manifest:    args[0],
				ProjectID:   projectID,
				CronExpr:    cronExpr,
				IntervalSec: intervalSec,
				Timezone:    timezone,
				Enabled:     !disabled,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule created: %s", schedule.ID))
			out.Print(scheduleHeaders(), [][]string{scheduleRow(*schedule)}, schedule)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID for scheduled runs")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (5 fields)")
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "Interval in seconds")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for cron evaluation")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the schedule in disabled state")

	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedule, err := client.GetSchedule(args[0])
			if err != nil {
				return err
			}

			out.Print(scheduleHeaders(), [][]string{scheduleRow(*schedule)}, schedule)
			return nil
		},
	}
}

func newScheduleUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var manifestName string
	var projectID string
	var cronExpr string
	var intervalSec int
	var timezone string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var req UpdateScheduleRequest
			if cmd.Flags().Changed("manifest") {
				req.Manifest = &manifestName
			}
			if cmd.Flags().Changed("project-id") {
				req.ProjectID = &projectID
			}
			if cmd.Flags().Changed("cron") {
				req.CronExpr = &cronExpr
			}
			if cmd.Flags().Changed("interval") {
				req.IntervalSec = &intervalSec
			}
			if cmd.Flags().Changed("timezone") {
				req.Timezone = &timezone
			}

			schedule, err := client.UpdateSchedule(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule updated: %s", schedule.ID))
			out.Print(scheduleHeaders(), [][]string{scheduleRow(*schedule)}, schedule)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestName, "manifest", "", "Manifest name")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID for scheduled runs")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (5 fields)")
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "Interval in seconds")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for cron evaluation")

	return cmd
}

func newScheduleDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteSchedule(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule deleted: %s", args[0]))
			return nil
		},
	}
}

func newScheduleEnableCmd(clientFn func() *Client, outputFn func() *Output, enable bool) *cobra.Command {
	use, short := "enable ID", "Enable a schedule"
	if !enable {
		use, short = "disable ID", "Disable a schedule"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var schedule *ScheduleResponse
			var err error
			if enable {
				schedule, err = client.EnableSchedule(args[0])
			} else {
				schedule, err = client.DisableSchedule(args[0])
			}
			if err != nil {
				return err
			}

			verb := "enabled"
			if !enable {
				verb = "disabled"
			}
			out.Success(fmt.Sprintf("Schedule %s: %s", verb, schedule.ID))
			out.Print(scheduleHeaders(), [][]string{scheduleRow(*schedule)}, schedule)
			return nil
		},
	}
}

func scheduleHeaders() []string {
	return []string{"ID", "MANIFEST", "PROJECT", "TRIGGER", "TZ", "ENABLED", "NEXT_DUE"}
}

func scheduleRow(s ScheduleResponse) []string {
	trigger := s.CronExpr
	if trigger == "" && s.IntervalSec > 0 {
		trigger = fmt.Sprintf("every %ds", s.IntervalSec)
	}
	return []string{
		s.ID,
		s.Manifest,
		s.ProjectID,
		trigger,
		s.Timezone,
		strconv.FormatBool(s.Enabled),
		s.NextDueAt,
	}
}
