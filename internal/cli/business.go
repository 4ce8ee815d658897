package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/business"
)

func newBusinessCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "business",
		Short: "Manage salon profiles and services",
	}
	cmd.AddCommand(newBusinessAddCmd(withApp), newServiceAddCmd(withApp))
	return cmd
}

func newBusinessAddCmd(withApp appRunner) *cobra.Command {
	var b business.Business
	var region string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a business profile",
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			if _, err := time.LoadLocation(b.Timezone); err != nil {
				return fmt.Errorf("--timezone: %w", err)
			}
			if b.PhoneNumber != "" {
				phone, err := booking.NormalizePhone(b.PhoneNumber, region)
				if err != nil {
					return fmt.Errorf("--phone: %w", err)
				}
				b.PhoneNumber = phone
			}
			b.Active = true
			if err := app.Catalog.SaveBusiness(cmd.Context(), b); err != nil {
				return fmt.Errorf("business add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s, %s)\n", b.ID, b.Name, b.Timezone)
			return nil
		}),
	}
	cmd.Flags().StringVar(&b.ID, "id", "", "business id")
	cmd.Flags().StringVar(&b.Name, "name", "", "display name")
	cmd.Flags().StringVar(&b.Timezone, "timezone", "America/New_York", "IANA timezone")
	cmd.Flags().StringVar(&b.PhoneNumber, "phone", "", "salon phone number customers text")
	cmd.Flags().StringVar(&region, "region", "US", "phone number region")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newServiceAddCmd(withApp appRunner) *cobra.Command {
	var svc business.Service
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Add a service to a business catalog",
		RunE: withApp(func(cmd *cobra.Command, app *App) error {
			svc.Active = true
			saved, err := app.Catalog.SaveService(cmd.Context(), svc)
			if err != nil {
				return fmt.Errorf("business service: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s: %s (%d min)\n", saved.ID, saved.Name, saved.DurationMinutes)
			return nil
		}),
	}
	cmd.Flags().StringVar(&svc.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&svc.Name, "name", "", "service name")
	cmd.Flags().IntVar(&svc.DurationMinutes, "duration", 60, "duration in minutes")
	cmd.Flags().Int64Var(&svc.PriceCents, "price-cents", 0, "price in cents")
	_ = cmd.MarkFlagRequired("business")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
