package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyshelf/catalogbot/internal/catalog"
	"github.com/studyshelf/catalogbot/internal/logger"
)

func TestSessionTableLifecycle(t *testing.T) {
	t.Parallel()
	table := NewSessionTable()

	assert.Equal(t, Session{UserID: 5}, table.Get(5))

	file := &catalog.File{Kind: catalog.KindPhoto, Ref: "p"}
	table.Put(Session{UserID: 5, State: StateUploadName, TopicID: 3, PendingFile: file})
	require.Equal(t, 1, table.Len())
	file.Ref = "mutated"

	got := table.Get(5)
	assert.Equal(t, StateUploadName, got.State)
	assert.Equal(t, int64(3), got.TopicID)
	assert.Equal(t, "p", got.PendingFile.Ref)
	assert.False(t, got.UpdatedAt.IsZero())

	got.reset()
	assert.Equal(t, Session{UserID: 5}, got)

	table.Put(Session{UserID: 5})
	assert.Zero(t, table.Len())

	table.Put(Session{UserID: 6, State: StateSearchQuery})
	table.Clear(6)
	assert.Zero(t, table.Len())
}

func TestSessionTableSweep(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	table := NewSessionTable()
	table.now = func() time.Time { return now }

	table.Put(Session{UserID: 1, State: StateBrowseSubject})
	now = now.Add(10 * time.Minute)
	table.Put(Session{UserID: 2, State: StateSearchQuery})
	now = now.Add(10 * time.Minute)

	assert.Zero(t, table.Sweep(0))
	assert.Equal(t, 1, table.Sweep(15*time.Minute))
	assert.False(t, table.Get(1).Active())
	assert.True(t, table.Get(2).Active())
}

func TestSweeper(t *testing.T) {
	t.Parallel()
	table := NewSessionTable()

	disabled, err := NewSweeper(logger.Discard(), table, 0, "not a schedule")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	disabled.Start()
	require.NoError(t, disabled.Stop(t.Context()))

	_, err = NewSweeper(logger.Discard(), table, time.Minute, "not a schedule")
	assert.Error(t, err)

	sweeper, err := NewSweeper(logger.Discard(), table, time.Minute, "@every 1h")
	require.NoError(t, err)
	assert.True(t, sweeper.Enabled())

	now := time.Now()
	table.now = func() time.Time { return now.Add(-time.Hour) }
	table.Put(Session{UserID: 1, State: StateBrowseTopic})
	table.now = func() time.Time { return now }
	sweeper.Sweep()
	assert.Zero(t, table.Len())

	sweeper.Start()
	require.NoError(t, sweeper.Stop(t.Context()))
}
