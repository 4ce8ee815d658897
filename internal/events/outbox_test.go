package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "biz-1", "appointment.booked.v1", pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := store.Insert(context.Background(), "biz-1", "appointment.booked.v1", map[string]string{"appointmentId": "a-1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "business_id", "type", "payload", "created_at"}).AddRow(id, "biz-1", "appointment.booked.v1", []byte(`{"appointmentId":"a-1"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].BusinessID != "biz-1" {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendRejectsUnmarshalablePayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = Append(context.Background(), mock, "biz-1", "x", make(chan int))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelivererMarksOnlySuccessfulEntries(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	okID, err := outbox.Insert(ctx, "biz-1", "appointment.booked.v1", map[string]string{"n": "1"})
	require.NoError(t, err)
	failID, err := outbox.Insert(ctx, "biz-1", "appointment.cancelled.v1", map[string]string{"n": "2"})
	require.NoError(t, err)

	var seen []string
	handler := DeliveryHandlerFunc(func(_ context.Context, e OutboxEntry) error {
		seen = append(seen, e.Type)
		if e.ID == failID {
			return errors.New("downstream unavailable")
		}
		return nil
	})

	d := NewDeliverer(outbox, handler, logging.New("error")).WithBatchSize(10)
	assert.Equal(t, 1, d.Drain(ctx))
	assert.Equal(t, []string{"appointment.booked.v1", "appointment.cancelled.v1"}, seen)

	pending, err := outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, failID, pending[0].ID)
	assert.NotEqual(t, okID, pending[0].ID)
}

func TestDelivererStartStopsOnCancel(t *testing.T) {
	outbox := NewMemoryOutbox()
	_, err := outbox.Insert(context.Background(), "biz-1", "appointment.booked.v1", map[string]string{})
	require.NoError(t, err)

	delivered := make(chan struct{}, 1)
	handler := DeliveryHandlerFunc(func(context.Context, OutboxEntry) error {
		select {
		case delivered <- struct{}{}:
		default:
		}
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewDeliverer(outbox, handler, logging.New("error")).WithInterval(5 * time.Millisecond).Start(ctx)
		close(done)
	}()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected delivery")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deliverer did not stop")
	}
}

func TestMemoryOutboxLimitAndRedelivery(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	for i := 0; i < 3; i++ {
		_, err := outbox.Insert(ctx, "biz-1", "e", map[string]int{"i": i})
		require.NoError(t, err)
	}
	batch, err := outbox.FetchPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(batch[1].Payload, &payload))
	assert.Equal(t, 1, payload["i"])

	ok, err := outbox.MarkDelivered(ctx, batch[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = outbox.MarkDelivered(ctx, batch[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = outbox.MarkDelivered(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	pending := outbox.Entries()
	require.Len(t, pending, 2, "delivered entries are dropped")
	assert.Equal(t, batch[1].ID, pending[0].ID)

	for _, e := range pending {
		ok, err := outbox.MarkDelivered(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Empty(t, outbox.Entries())
	batch, err = outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
