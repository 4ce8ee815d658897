package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/clock"
)

func newAvailabilityCmd(withApp appRunner) *cobra.Command {
	var businessID, date, service string
	var duration int
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "List open start times for a day",
		Example: `  bookctl availability --business biz-1 --date 2025-09-09
  bookctl availability --business biz-1 --date 2025-09-09 --service "Gel Manicure"`,
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			d, err := parseDateFlag(date)
			if err != nil {
				return err
			}
			avail, err := app.Engine.GetAvailability(cmd.Context(), booking.AvailabilityQuery{
				BusinessID:      businessID,
				Date:            d,
				ServiceType:     service,
				DurationMinutes: duration,
			})
			if err != nil {
				return fmt.Errorf("availability: %w", err)
			}
			out := cmd.OutOrStdout()
			if !avail.Available {
				fmt.Fprintf(out, "%s: %s\n", d, avail.Message)
				return nil
			}
			slots := make([]string, 0, len(avail.Slots))
			for _, s := range avail.Slots {
				slots = append(slots, clock.FormatHHMM(s))
			}
			fmt.Fprintf(out, "%s (%d min): %s\n", d, avail.DurationMinutes, strings.Join(slots, " "))
			return nil
		}),
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id")
	cmd.Flags().StringVar(&date, "date", "", "day to check (YYYY-MM-DD)")
	cmd.Flags().StringVar(&service, "service", "", "service name")
	cmd.Flags().IntVar(&duration, "duration", 0, "explicit duration in minutes")
	_ = cmd.MarkFlagRequired("business")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newBookCmd(withApp appRunner) *cobra.Command {
	var businessID, date, start, name, phone, email, service string
	var duration int
	cmd := &cobra.Command{
		Use:     "book",
		Short:   "Book an appointment",
		Example: `  bookctl book --business biz-1 --date 2025-09-09 --time 10:00 --name "Dana Reyes" --phone 555-123-4567 --service Pedicure`,
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			d, err := parseDateFlag(date)
			if err != nil {
				return err
			}
			t, err := parseTimeFlag("time", start)
			if err != nil {
				return err
			}
			res, err := app.Engine.BookAppointment(cmd.Context(), booking.BookRequest{
				BusinessID:      businessID,
				CustomerName:    name,
				CustomerPhone:   phone,
				CustomerEmail:   email,
				ServiceType:     service,
				Date:            d,
				StartTime:       t,
				DurationMinutes: duration,
				Source:          booking.SourceCLI,
			})
			if err != nil {
				return fmt.Errorf("book: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "booked %s\n", res.AppointmentID)
			fmt.Fprintf(out, "  %s on %s at %s (%d min)\n",
				res.Appointment.ServiceName, res.Appointment.Date, clock.FormatHHMM(res.Appointment.StartTime), res.Appointment.DurationMinutes)
			return nil
		}),
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id")
	cmd.Flags().StringVar(&date, "date", "", "appointment day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "time", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&name, "name", "", "customer name")
	cmd.Flags().StringVar(&phone, "phone", "", "customer phone")
	cmd.Flags().StringVar(&email, "email", "", "customer email")
	cmd.Flags().StringVar(&service, "service", "", "service name")
	cmd.Flags().IntVar(&duration, "duration", 0, "explicit duration in minutes")
	for _, f := range []string{"business", "date", "time", "name", "phone"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newCancelCmd(withApp appRunner) *cobra.Command {
	var businessID, id, reason string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an appointment",
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			appt, err := app.Engine.Cancel(cmd.Context(), businessID, id, reason)
			if err != nil {
				return fmt.Errorf("cancel: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", appt.ID, appt.Status)
			return nil
		}),
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id")
	cmd.Flags().StringVar(&id, "id", "", "appointment id")
	cmd.Flags().StringVar(&reason, "reason", "cancelled by operator", "cancellation reason")
	_ = cmd.MarkFlagRequired("business")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newCompleteDueCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "complete-due",
		Short: "Mark every appointment that has already ended as completed",
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			n, err := app.Engine.CompleteDue(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "completed %d appointment(s)\n", n)
			if err != nil {
				return fmt.Errorf("complete-due: %w", err)
			}
			return nil
		}),
	}
}
