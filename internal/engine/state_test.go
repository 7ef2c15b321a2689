package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonet-code/molt/internal/health"
)

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle_state.json")

	s := NewState()
	s.PostsToday = 2
	s.LastPostDate = "2026-08-24"
	s.CommentsThisHour = 7
	s.TotalCycles = 41
	s.TotalTokensIn = 12345
	s.API.Status = health.StatusUp
	s.MarkCommented("p1:c1")
	s.MarkUpvoted("p9")
	s.MarkFollowed("alice")
	require.NoError(t, s.Save(path))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.PostsToday)
	assert.Equal(t, 7, loaded.CommentsThisHour)
	assert.Equal(t, int64(41), loaded.TotalCycles)
	assert.Equal(t, int64(12345), loaded.TotalTokensIn)
	assert.Equal(t, health.StatusUp, loaded.API.Status)
	assert.True(t, loaded.HasCommented("p1:c1"))
	assert.True(t, loaded.HasUpvoted("p9"))
	assert.True(t, loaded.IsFollowing("alice"))
}

func TestLoadStateMissingFile(t *testing.T) {
	s, err := LoadState(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnknown, s.API.Status)
	assert.Zero(t, s.TotalCycles)
}

func TestLoadStateCorruptFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	_, err := LoadState(path)
	assert.Error(t, err)
}

func TestCommentRingEvictsOldest(t *testing.T) {
	s := NewState()
	for i := 0; i < commentedRingSize+10; i++ {
		s.MarkCommented(fmt.Sprintf("p%d", i))
	}
	assert.Len(t, s.CommentedPostIDs, commentedRingSize)
	assert.False(t, s.HasCommented("p0"))
	assert.True(t, s.HasCommented(fmt.Sprintf("p%d", commentedRingSize+9)))
}

func TestUpvoteRingEvictsOldest(t *testing.T) {
	s := NewState()
	for i := 0; i < upvotedRingSize+1; i++ {
		s.MarkUpvoted(fmt.Sprintf("u%d", i))
	}
	assert.Len(t, s.UpvotedIDs, upvotedRingSize)
	assert.False(t, s.HasUpvoted("u0"))
}

func TestRingIgnoresDuplicates(t *testing.T) {
	s := NewState()
	s.MarkCommented("p1")
	s.MarkCommented("p1")
	assert.Len(t, s.CommentedPostIDs, 1)

	s.MarkFollowed("alice")
	s.MarkFollowed("alice")
	assert.Len(t, s.FollowedAgents, 1)
}

func TestResetDailyIfNeeded(t *testing.T) {
	s := NewState()
	s.PostsToday = 3
	s.LastPostDate = "2026-08-23"

	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	s.ResetDailyIfNeeded(now)
	assert.Zero(t, s.PostsToday)
	assert.Equal(t, "2026-08-24", s.LastPostDate)

	s.PostsToday = 2
	s.ResetDailyIfNeeded(now)
	assert.Equal(t, 2, s.PostsToday, "same day must not reset")
}

func TestCanPost(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	cooldown := 30 * time.Minute

	s := NewState()
	assert.True(t, s.CanPost(now, 4, cooldown))

	s.PostsToday = 4
	assert.False(t, s.CanPost(now, 4, cooldown), "daily cap")

	s.PostsToday = 1
	s.LastPostTime = now.Add(-10 * time.Minute)
	assert.False(t, s.CanPost(now, 4, cooldown), "cooldown")

	s.LastPostTime = now.Add(-31 * time.Minute)
	assert.True(t, s.CanPost(now, 4, cooldown))
}

func TestSummary(t *testing.T) {
	s := NewState()
	s.API.Status = health.StatusDown
	s.API.ConsecutiveFailures = 2
	s.PostsToday = 1
	s.TotalCycles = 9
	s.MarkFollowed("alice")
	s.MarkFollowed("bob")

	sum := s.Summary()
	assert.Equal(t, health.StatusDown, sum.APIStatus)
	assert.Equal(t, 2, sum.ConsecutiveFailures)
	assert.Equal(t, 1, sum.PostsToday)
	assert.Equal(t, int64(9), sum.TotalCycles)
	assert.Equal(t, 2, sum.FollowedAgents)
}
