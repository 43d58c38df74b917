package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/store"
	"github.com/ledgerline/ledgerline/tests/testutil"
)

func mutation(id string, t model.EntityType, op model.Operation, at time.Time) model.QueuedMutation {
	return model.QueuedMutation{
		ID:         id,
		EntityType: t,
		Operation:  op,
		Payload:    json.RawMessage(`{"name":"x"}`),
		EnqueuedAt: at,
	}
}

func TestPendingMutationsFIFO(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	ids := []string{"m1", "m2", "m3"}
	for i, id := range ids {
		m := mutation(id, model.EntitySale, model.OpCreate, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.InsertMutation(ctx, m))
	}

	pending, err := s.PendingMutations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, id := range ids {
		assert.Equal(t, id, pending[i].ID)
	}
}

func TestPendingMutationsStableOrderForEqualTimestamps(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	// Same enqueue timestamp: insertion order must still win.
	at := time.Now().UTC().Truncate(time.Second)
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.InsertMutation(ctx, mutation(id, model.EntityProduct, model.OpUpdate, at)))
	}

	pending, err := s.PendingMutations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "d", pending[3].ID)
}

func TestMarkMutationSyncedRemovesFromPending(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertMutation(ctx, mutation("m1", model.EntitySale, model.OpCreate, time.Now())))
	require.NoError(t, s.MarkMutationSynced(ctx, "m1", time.Now()))

	pending, err := s.PendingMutations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPruneSyncedBefore(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.InsertMutation(ctx, mutation("old", model.EntitySale, model.OpCreate, now.Add(-48*time.Hour))))
	require.NoError(t, s.InsertMutation(ctx, mutation("new", model.EntitySale, model.OpCreate, now)))
	require.NoError(t, s.InsertMutation(ctx, mutation("pending", model.EntitySale, model.OpCreate, now.Add(-48*time.Hour))))

	require.NoError(t, s.MarkMutationSynced(ctx, "old", now.Add(-36*time.Hour)))
	require.NoError(t, s.MarkMutationSynced(ctx, "new", now))

	n, err := s.PruneSyncedBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The unsynced mutation is untouched no matter how old it is.
	pending, err := s.PendingMutations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pending", pending[0].ID)
}

func TestMoveMutationToDeadLetter(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertMutation(ctx, mutation("m1", model.EntityExpense, model.OpCreate, time.Now())))

	failedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.MoveMutationToDeadLetter(ctx, "m1", "amount must be positive", failedAt))

	pending, err := s.PendingMutations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	dead, err := s.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "m1", dead[0].ID)
	assert.Equal(t, "amount must be positive", dead[0].Reason)
	assert.Equal(t, model.EntityExpense, dead[0].EntityType)
}

func TestMoveMutationToDeadLetterUnknownID(t *testing.T) {
	s := testutil.NewTestStore(t)

	err := s.MoveMutationToDeadLetter(context.Background(), "nope", "reason", time.Now())
	require.Error(t, err)
	assert.True(t, store.IsPersistence(err))
}

func TestDeadLettersSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledgerline.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	require.NoError(t, s.InsertMutation(ctx, mutation("m1", model.EntityCustomer, model.OpDelete, time.Now())))
	require.NoError(t, s.InsertMutation(ctx, mutation("m2", model.EntityCustomer, model.OpCreate, time.Now())))
	require.NoError(t, s.MoveMutationToDeadLetter(ctx, "m1", "unknown customer", time.Now()))
	require.NoError(t, s.Close())

	s2, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	pending, err := s2.PendingMutations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m2", pending[0].ID)

	dead, err := s2.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "m1", dead[0].ID)
}

func notification(id string, created time.Time, read bool) model.Notification {
	return model.Notification{
		ID:        id,
		Type:      model.NotifyLowStock,
		Title:     "Low stock",
		Body:      "Only 2 left",
		CreatedAt: created,
		Read:      read,
	}
}

func TestUpsertNotificationsNeverUnreads(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpsertNotifications(ctx, []model.Notification{notification("n1", created, false)}))
	require.NoError(t, s.MarkNotificationRead(ctx, "n1"))

	// A later upsert of the same event as unread must not flip it back.
	require.NoError(t, s.UpsertNotifications(ctx, []model.Notification{notification("n1", created, false)}))

	ns, err := s.Notifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.True(t, ns[0].Read)
}

func TestNotificationsNewestFirst(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	batch := []model.Notification{
		notification("n1", base.Add(-2*time.Minute), false),
		notification("n2", base.Add(-1*time.Minute), false),
		notification("n3", base, false),
	}
	require.NoError(t, s.UpsertNotifications(ctx, batch))

	ns, err := s.Notifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ns, 3)
	assert.Equal(t, "n3", ns[0].ID)
	assert.Equal(t, "n1", ns[2].ID)
}

func TestTrimNotificationsEvictsOldestRegardlessOfRead(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	batch := []model.Notification{
		notification("oldest", base.Add(-3*time.Minute), false),
		notification("mid", base.Add(-2*time.Minute), true),
		notification("newest", base, false),
	}
	require.NoError(t, s.UpsertNotifications(ctx, batch))

	n, err := s.TrimNotifications(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ns, err := s.Notifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, "newest", ns[0].ID)
	assert.Equal(t, "mid", ns[1].ID)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, s.UpsertNotifications(ctx, []model.Notification{
		notification("n1", base.Add(-time.Minute), false),
		notification("n2", base, false),
	}))

	require.NoError(t, s.MarkAllNotificationsRead(ctx))

	ns, err := s.Notifications(ctx, 10)
	require.NoError(t, err)
	for _, n := range ns {
		assert.True(t, n.Read, "notification %s", n.ID)
	}
}

func TestClearNotifications(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNotifications(ctx, []model.Notification{
		notification("n1", time.Now(), false),
	}))
	require.NoError(t, s.ClearNotifications(ctx))

	ns, err := s.Notifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ns)
}
