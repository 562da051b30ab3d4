package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Johanhagos/mijn-api/internal/payment/domain"
	"github.com/Johanhagos/mijn-api/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestJournalRoundTrip(t *testing.T) {
	conn := dbtest.Open(t, &domain.EventRecord{})
	r := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	record := &domain.EventRecord{
		ID:              1001,
		Provider:        "card",
		ProviderEventID: "evt_1",
		SessionID:       "cs_1",
		EventType:       "payment_intent.succeeded",
		Payload:         datatypes.JSON(`{"id":"evt_1"}`),
		ReceivedAt:      now,
	}
	inserted, err := r.InsertEvent(ctx, conn, record)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *record
	dup.ID = 1002
	inserted, err = r.InsertEvent(ctx, conn, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, r.MarkProcessed(ctx, conn, record.ID, "paid", now.Add(time.Second)))

	found, err := r.FindEvent(ctx, conn, "card", "evt_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "paid", found.Outcome)
	assert.Equal(t, "cs_1", found.SessionID)
	require.NotNil(t, found.ProcessedAt)

	missing, err := r.FindEvent(ctx, conn, "card", "evt_none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
