package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/clock"
)

func newHoursCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hours",
		Short: "Show or change weekly business hours",
	}
	cmd.AddCommand(newHoursShowCmd(withApp), newHoursSetCmd(withApp))
	return cmd
}

func newHoursShowCmd(withApp appRunner) *cobra.Command {
	var businessID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the weekly hours",
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			hours, err := app.Catalog.ListHours(cmd.Context(), businessID)
			if err != nil {
				return fmt.Errorf("hours show: %w", err)
			}
			out := cmd.OutOrStdout()
			for day := time.Sunday; day <= time.Saturday; day++ {
				h := hours.ForDay(day)
				switch {
				case h == nil || h.Closed:
					fmt.Fprintf(out, "%-9s closed\n", day)
				default:
					fmt.Fprintf(out, "%-9s %s-%s\n", day, clock.FormatHHMM(h.Open), clock.FormatHHMM(h.Close))
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

func newHoursSetCmd(withApp appRunner) *cobra.Command {
	var businessID, dayName, open, closeAt string
	var closed bool
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set one weekday's hours",
		Example: `  bookctl hours set --business biz-1 --day saturday --open 10:00 --close 16:00
  bookctl hours set --business biz-1 --day sunday --closed`,
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			day, err := parseWeekday(dayName)
			if err != nil {
				return err
			}
			row := business.DayHours{Day: day, Closed: closed}
			if !closed {
				if row.Open, err = parseTimeFlag("open", open); err != nil {
					return err
				}
				if row.Close, err = parseTimeFlag("close", closeAt); err != nil {
					return err
				}
			}
			if err := row.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			week, err := app.Catalog.ListHours(ctx, businessID)
			if err != nil {
				return fmt.Errorf("hours set: %w", err)
			}
			next := make(business.WeeklyHours, 0, len(week)+1)
			for _, h := range week {
				if h.Day != day {
					next = append(next, h)
				}
			}
			next = append(next, row)
			if err := app.Catalog.SetHours(ctx, businessID, next); err != nil {
				return fmt.Errorf("hours set: %w", err)
			}
			app.Logger.Info("business hours updated", "business_id", businessID, "day", day.String(), "closed", closed)
			if closed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: closed\n", day)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s-%s\n", day, clock.FormatHHMM(row.Open), clock.FormatHHMM(row.Close))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id")
	cmd.Flags().StringVar(&dayName, "day", "", "weekday name (monday) or number (0=sunday)")
	cmd.Flags().StringVar(&open, "open", "", "opening time (HH:MM)")
	cmd.Flags().StringVar(&closeAt, "close", "", "closing time (HH:MM)")
	cmd.Flags().BoolVar(&closed, "closed", false, "mark the day closed")
	cmd.MarkFlagsMutuallyExclusive("closed", "open")
	cmd.MarkFlagsMutuallyExclusive("closed", "close")
	_ = cmd.MarkFlagRequired("business")
	_ = cmd.MarkFlagRequired("day")
	return cmd
}

func parseWeekday(raw string) (time.Weekday, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if raw == name || raw == name[:3] || raw == fmt.Sprint(int(d)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("--day %q is not a weekday", raw)
}
