// Package cli is the bookctl command tree: operator access to the same
// booking engine the API serves.
package cli

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/clock"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

// Engine is the slice of the booking service bookctl drives.
type Engine interface {
	GetAvailability(ctx context.Context, q booking.AvailabilityQuery) (*booking.Availability, error)
	BookAppointment(ctx context.Context, req booking.BookRequest) (*booking.BookResult, error)
	Cancel(ctx context.Context, businessID, id, reason string) (*booking.Appointment, error)
	CompleteDue(ctx context.Context) (int, error)
}

// App is what a command needs once the store is open.
type App struct {
	Engine  Engine
	Catalog business.Store
	Logger  *logging.Logger
}

// Loader opens the configured store. The returned func releases it.
type Loader func(ctx context.Context) (*App, func(), error)

type commandContext struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

type commandContextKey struct{}

// NewRootCmd builds bookctl. load runs lazily so --help never touches a
// database.
func NewRootCmd(load Loader, logger *logging.Logger) *cobra.Command {
	if logger == nil {
		logger = logging.Default()
	}
	root := &cobra.Command{
		Use:           "bookctl",
		Short:         "Operate the nail salon booking engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			info := commandContext{correlationID: uuid.New(), startedAt: time.Now()}
			cmd.SetContext(context.WithValue(cmd.Context(), commandContextKey{}, info))
			logger.Debug("command start",
				"command", cmd.CommandPath(),
				"correlation_id", info.correlationID.String(),
			)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
			if !ok {
				return
			}
			logger.Debug("command end",
				"command", cmd.CommandPath(),
				"correlation_id", info.correlationID.String(),
				"duration_ms", time.Since(info.startedAt).Milliseconds(),
			)
		},
	}

	withApp := func(run func(cmd *cobra.Command, app *App) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			app, release, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return run(cmd, app)
		}
	}

	root.AddCommand(
		newAvailabilityCmd(withApp),
		newBookCmd(withApp),
		newCancelCmd(withApp),
		newCompleteDueCmd(withApp),
		newHoursCmd(withApp),
		newBusinessCmd(withApp),
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, app *App) error) func(*cobra.Command, []string) error

func parseDateFlag(raw string) (civil.Date, error) {
	d, err := clock.ParseDate(raw)
	if err != nil {
		return civil.Date{}, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}

func parseTimeFlag(name, raw string) (civil.Time, error) {
	t, err := clock.ParseHHMM(raw)
	if err != nil {
		return civil.Time{}, fmt.Errorf("--%s must be HH:MM: %w", name, err)
	}
	return t, nil
}
