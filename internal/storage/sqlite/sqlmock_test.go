package sqlite

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/business"
)

func TestInsertAppointmentMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: appointments.business_id, appointments.appointment_date, appointments.start_time (2067)"))
	mock.ExpectRollback()

	err = NewBookingStore(db).WithinTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		return tx.InsertAppointment(ctx, &booking.Appointment{
			ID: "a-1", BusinessID: "biz-1", CustomerID: "c-1", Date: tuesday,
			StartTime: civil.Time{Hour: 9}, DurationMinutes: 60,
			Status: booking.StatusScheduled, Source: booking.SourceWeb,
		})
	})
	assert.ErrorIs(t, err, booking.ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppointmentsWrapsDriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM appointments a").WithArgs("biz-1", "2025-09-09").WillReturnError(errors.New("database is locked"))
	_, err = NewBookingStore(db).ListAppointments(context.Background(), "biz-1", tuesday)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: list appointments")
	assert.Equal(t, booking.KindStore, booking.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBusinessNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM businesses").WithArgs("biz-x").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "timezone", "phone_number", "active"}))
	_, err = NewBusinessStore(db).GetBusiness(context.Background(), "biz-x")
	assert.ErrorIs(t, err, business.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
