package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"daycheck/cmd/internal/restapi"
	"daycheck/cmd/internal/schedule"
	v1 "daycheck/shared/contracts/push/v1"

	"github.com/spf13/cobra"
)

const defaultPreviewDays = 30

func (c *cli) schedulesCommand() *cobra.Command {
	var date string
	list := func(ctx context.Context, a *App, _ []string) error {
		return c.listSchedules(ctx, a.API(), date)
	}

	cmd := &cobra.Command{
		Use:     "schedules",
		Aliases: []string{"s"},
		Short:   "Recurring schedules",
		Args:    cobra.NoArgs,
		RunE:    c.withSession(list),
	}
	cmd.Flags().StringVar(&date, "date", "", "only schedules occurring on this day (YYYY-MM-DD)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recurring schedules",
		Args:  cobra.NoArgs,
		RunE:  c.withSession(list),
	}
	listCmd.Flags().StringVar(&date, "date", "", "only schedules occurring on this day (YYYY-MM-DD)")

	cmd.AddCommand(
		listCmd,
		&cobra.Command{
			Use:   "date DAY",
			Short: "List schedules occurring on DAY (YYYY-MM-DD)",
			Args:  cobra.ExactArgs(1),
			RunE: c.withSession(func(ctx context.Context, a *App, args []string) error {
				return c.listSchedules(ctx, a.API(), args[0])
			}),
		},
		c.previewCommand(),
		c.icsCommand(),
		c.addScheduleCommand(),
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a recurring schedule",
			Args:  cobra.ExactArgs(1),
			RunE: c.withSession(func(ctx context.Context, a *App, args []string) error {
				if err := a.API().DeleteRecurringSchedule(ctx, v1.ID(args[0])); err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "deleted %s\n", args[0])
				return nil
			}),
		},
		c.skipCommand(),
	)
	return cmd
}

func (c *cli) listSchedules(ctx context.Context, api *restapi.Client, date string) error {
	var (
		list []schedule.RecurringSchedule
		err  error
	)
	if date == "" {
		list, err = api.RecurringSchedules(ctx)
	} else {
		day, perr := schedule.ParseDate(date, time.Local)
		if perr != nil {
			return perr
		}
		list, err = api.RecurringSchedulesOn(ctx, day)
	}
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.stdout, "no schedules")
		return nil
	}
	for _, s := range list {
		writeSchedule(c.stdout, s)
	}
	return nil
}

// rangeFlags is the --from/--to pair of preview and ics.
type rangeFlags struct {
	from, to string
}

func (r *rangeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.from, "from", "", "first day (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&r.to, "to", "", fmt.Sprintf("last day, inclusive (default from + %d days)", defaultPreviewDays))
}

// resolve returns the start of the first day and the end of the last day.
func (r rangeFlags) resolve(now time.Time) (from, to time.Time, err error) {
	from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if r.from != "" {
		if from, err = schedule.ParseDate(r.from, now.Location()); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	last := from.AddDate(0, 0, defaultPreviewDays)
	if r.to != "" {
		if last, err = schedule.ParseDate(r.to, now.Location()); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, last.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// occurrences fetches one schedule with its exceptions and expands it over r.
func (c *cli) occurrences(ctx context.Context, api *restapi.Client, id string, r rangeFlags) ([]schedule.Occurrence, error) {
	from, to, err := r.resolve(c.now())
	if err != nil {
		return nil, err
	}
	s, err := api.RecurringSchedule(ctx, v1.ID(id))
	if err != nil {
		return nil, err
	}
	exceptions, err := api.ScheduleExceptions(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return schedule.Expand(s, from, to, exceptions)
}

func (c *cli) previewCommand() *cobra.Command {
	var r rangeFlags
	cmd := &cobra.Command{
		Use:   "preview ID",
		Short: "List the upcoming occurrences of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: c.withSession(func(ctx context.Context, a *App, args []string) error {
			occ, err := c.occurrences(ctx, a.API(), args[0], r)
			if err != nil {
				return err
			}
			if len(occ) == 0 {
				fmt.Fprintln(c.stdout, "no occurrences in range")
				return nil
			}
			for _, o := range occ {
				writeOccurrence(c.stdout, o)
			}
			return nil
		}),
	}
	r.bind(cmd)
	return cmd
}

func (c *cli) icsCommand() *cobra.Command {
	var (
		r   rangeFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "ics ID",
		Short: "Export the occurrences of a schedule as iCalendar",
		Args:  cobra.ExactArgs(1),
		RunE: c.withSession(func(ctx context.Context, a *App, args []string) error {
			occ, err := c.occurrences(ctx, a.API(), args[0], r)
			if err != nil {
				return err
			}
			doc := schedule.ExportICS(occ, c.now())
			if out == "" || out == "-" {
				_, err = io.WriteString(c.stdout, doc)
				return err
			}
			if err := os.WriteFile(out, []byte(doc), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "wrote %d events to %s\n", len(occ), out)
			return nil
		}),
	}
	r.bind(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func (c *cli) addScheduleCommand() *cobra.Command {
	var (
		s    schedule.RecurringSchedule
		days []string
	)
	cmd := &cobra.Command{
		Use:   "add CONTENT",
		Short: "Create a recurring schedule",
		Args:  cobra.ExactArgs(1),
		RunE: c.withSession(func(ctx context.Context, a *App, args []string) error {
			s.Content = args[0]
			s.PatternType = schedule.PatternType(strings.ToUpper(string(s.PatternType)))
			s.Priority = schedule.Priority(strings.ToLower(string(s.Priority)))
			for _, d := range days {
				s.DaysOfWeek = append(s.DaysOfWeek, schedule.Weekday(strings.ToUpper(d)))
			}
			if s.StartDate == "" {
				s.StartDate = c.now().Format(schedule.DateLayout)
			}
			created, err := a.API().CreateRecurringSchedule(ctx, s)
			if err != nil {
				return err
			}
			writeSchedule(c.stdout, created)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar((*string)(&s.PatternType), "pattern", "", "daily, weekly, monthly or yearly (default daily)")
	f.IntVar(&s.Interval, "interval", 0, "repeat every N periods (default 1)")
	f.StringSliceVar(&days, "days", nil, "weekdays for a weekly pattern, e.g. monday,friday")
	f.StringVar(&s.StartDate, "start", "", "first day (YYYY-MM-DD, default today)")
	f.StringVar(&s.EndDate, "end", "", "last day (YYYY-MM-DD, required)")
	f.StringVar(&s.StartTime, "start-time", "", "start time HH:MM; omit for all-day")
	f.StringVar(&s.EndTime, "end-time", "", "end time HH:MM")
	f.StringVar((*string)(&s.Priority), "priority", "", "high, medium or low (default medium)")
	f.StringVar(&s.Description, "description", "", "free text")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (c *cli) skipCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "skip ID DAY",
		Short: "Add an exception so the schedule does not occur on DAY",
		Args:  cobra.ExactArgs(2),
		RunE: c.withSession(func(ctx context.Context, a *App, args []string) error {
			if _, err := schedule.ParseDate(args[1], time.Local); err != nil {
				return err
			}
			ex, err := a.API().CreateScheduleException(ctx, schedule.Exception{
				RecurringScheduleID: v1.ID(args[0]),
				ExceptionDate:       args[1],
				Reason:              reason,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "skipping %s on %s (exception %s)\n", args[0], ex.ExceptionDate, ex.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the day is skipped")
	return cmd
}
