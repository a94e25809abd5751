package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"vsrepair/booking-service/internal/models"
	"vsrepair/booking-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() models.ServiceRequestInput {
	return models.ServiceRequestInput{
		Name:          "Raj",
		Phone:         "9876543210",
		City:          "Tirupati",
		ApplianceType: "AC",
		PreferredTime: "Anytime",
	}
}

func TestCreateServiceRequestAssignsMonotonicIDs(t *testing.T) {
	st := New()
	ctx := context.Background()

	first, created, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
	require.NoError(t, err)
	assert.True(t, created)
	second, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestCreateServiceRequestConcurrentIDsAreDistinct(t *testing.T) {
	st := New()
	ctx := context.Background()
	const n = 64

	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			request, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids <- request.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)

	count, err := st.CountServiceRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestCreateServiceRequestIdempotencyKey(t *testing.T) {
	st := New()
	ctx := context.Background()
	input := store.CreateServiceRequestInput{RequestKey: "key-1", Input: sampleInput()}

	first, created, err := st.CreateServiceRequest(ctx, input)
	require.NoError(t, err)
	require.True(t, created)
	second, created, err := st.CreateServiceRequest(ctx, input)
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	events, err := st.ListOutboxEvents(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestGetServiceRequestIsStable(t *testing.T) {
	st := New()
	ctx := context.Background()
	created, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
	require.NoError(t, err)

	a, err := st.GetServiceRequest(ctx, created.ID)
	require.NoError(t, err)
	b, err := st.GetServiceRequest(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUpdateServiceRequestKeepsIdentityFields(t *testing.T) {
	st := New()
	ctx := context.Background()
	created, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
	require.NoError(t, err)

	input := sampleInput()
	input.City = "Chittoor"
	updatedAt := created.CreatedAt.Add(time.Hour)
	updated, err := st.UpdateServiceRequest(ctx, created.ID, input, updatedAt)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, created.Status, updated.Status)
	assert.Equal(t, "Chittoor", updated.City)
	assert.Equal(t, updatedAt, updated.UpdatedAt)

	_, err = st.UpdateServiceRequest(ctx, 999, input, updatedAt)
	assert.ErrorIs(t, err, store.ErrServiceRequestNotFound)
}

func TestUpdateServiceRequestStatus(t *testing.T) {
	st := New()
	ctx := context.Background()
	created, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
	require.NoError(t, err)

	updated, err := st.UpdateServiceRequestStatus(ctx, created.ID, models.StatusInProgress, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	_, err = st.UpdateServiceRequestStatus(ctx, created.ID, "archived", time.Time{})
	assert.ErrorIs(t, err, store.ErrInvalidStatus)

	_, err = st.UpdateServiceRequestStatus(ctx, created.ID, models.StatusCompleted, time.Time{})
	require.NoError(t, err)
	_, err = st.UpdateServiceRequestStatus(ctx, created.ID, models.StatusPending, time.Time{})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = st.UpdateServiceRequestStatus(ctx, 42, models.StatusCancelled, time.Time{})
	assert.ErrorIs(t, err, store.ErrServiceRequestNotFound)
}

func TestDeleteServiceRequest(t *testing.T) {
	st := New()
	ctx := context.Background()
	created, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{RequestKey: "k", Input: sampleInput()})
	require.NoError(t, err)

	require.NoError(t, st.DeleteServiceRequest(ctx, created.ID))
	_, err = st.GetServiceRequest(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrServiceRequestNotFound)
	assert.ErrorIs(t, st.DeleteServiceRequest(ctx, created.ID), store.ErrServiceRequestNotFound)

	again, created2, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{RequestKey: "k", Input: sampleInput()})
	require.NoError(t, err)
	assert.True(t, created2)
	assert.NotEqual(t, created.ID, again.ID)
}

func TestDeleteAllServiceRequests(t *testing.T) {
	st := New()
	ctx := context.Background()

	ids, err := st.DeleteAllServiceRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for i := 0; i < 3; i++ {
		_, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
		require.NoError(t, err)
	}
	ids, err = st.DeleteAllServiceRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	count, err := st.CountServiceRequests(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSessionsExpire(t *testing.T) {
	st := New()
	ctx := context.Background()
	require.NoError(t, st.CreateSession(ctx, "live", "alice", time.Now().Add(time.Hour)))
	require.NoError(t, st.CreateSession(ctx, "stale", "bob", time.Now().Add(-time.Minute)))

	session, err := st.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Identity)

	_, err = st.GetSession(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	_, err = st.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestOutboxOffsets(t *testing.T) {
	st := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
		require.NoError(t, err)
	}

	events, err := st.ListOutboxEvents(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, store.EventServiceRequestCreated, events[0].Type)

	require.NoError(t, st.UpdateOffset(ctx, "notify", 2))
	offset, err := st.GetLastOffset(ctx, "notify")
	require.NoError(t, err)
	assert.Equal(t, int64(2), offset)
}

func TestUpdateOffsetTrimsConsumedEvents(t *testing.T) {
	st := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
		require.NoError(t, err)
	}

	require.NoError(t, st.UpdateOffset(ctx, "notify", 2))
	assert.Len(t, st.outbox, 1)

	// A slower consumer holds events back until it catches up.
	require.NoError(t, st.UpdateOffset(ctx, "audit", 0))
	_, _, err := st.CreateServiceRequest(ctx, store.CreateServiceRequestInput{Input: sampleInput()})
	require.NoError(t, err)
	assert.Len(t, st.outbox, 2)

	events, err := st.ListOutboxEvents(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(3), events[0].Seq)
	assert.Equal(t, int64(4), events[1].Seq, "seq keeps increasing after a trim")

	require.NoError(t, st.UpdateOffset(ctx, "audit", 4))
	require.NoError(t, st.UpdateOffset(ctx, "notify", 4))
	assert.Empty(t, st.outbox)
}
