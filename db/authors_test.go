package db_test

import (
	"context"
	"testing"

	"livefeed/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSummary(t *testing.T) {
	_, authors := testDB(t)

	creator, err := authors.GetSummary("user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", creator.ID)
	assert.Equal(t, "Maximilian", creator.Name)

	_, err = authors.GetSummary("missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestAuthoredPostsMembershipIsExactlyOnce(t *testing.T) {
	_, authors := testDB(t)
	ctx := context.Background()

	require.NoError(t, authors.AddAuthoredPost(ctx, "user-1", "post-1"))
	require.NoError(t, authors.AddAuthoredPost(ctx, "user-1", "post-1"))
	require.NoError(t, authors.AddAuthoredPost(ctx, "user-1", "post-2"))

	ids, err := authors.AuthoredPostIDs("user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"post-1", "post-2"}, ids)
}

func TestRemoveAuthoredPost(t *testing.T) {
	_, authors := testDB(t)
	ctx := context.Background()

	require.NoError(t, authors.AddAuthoredPost(ctx, "user-1", "post-1"))
	require.NoError(t, authors.RemoveAuthoredPost(ctx, "user-1", "post-1"))

	ids, err := authors.AuthoredPostIDs("user-1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Removing an absent reference is a no-op
	require.NoError(t, authors.RemoveAuthoredPost(ctx, "user-1", "post-1"))
}

func TestUpsertUserRefreshesName(t *testing.T) {
	_, authors := testDB(t)
	ctx := context.Background()

	require.NoError(t, authors.UpsertUser(ctx, "user-1", "Max"))

	creator, err := authors.GetSummary("user-1")
	require.NoError(t, err)
	assert.Equal(t, "Max", creator.Name)
}
