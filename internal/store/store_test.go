package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonet-code/molt/internal/reputation"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "molt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListPosts(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SavePost(&OwnPost{
		ID: "p1", Title: "first", Submolt: "autonet", CreatedAt: "2026-08-20T10:00:00Z",
	}))
	require.NoError(t, s.SavePost(&OwnPost{
		ID: "p2", Title: "second", Submolt: "autonet", CreatedAt: "2026-08-21T10:00:00Z",
	}))

	posts, err := s.RecentPosts(10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "p2", posts[0].ID, "newest first")
}

func TestSavePostUpsertsCounters(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SavePost(&OwnPost{ID: "p1", Title: "t", Upvotes: 1}))
	require.NoError(t, s.SavePost(&OwnPost{ID: "p1", Title: "t", Upvotes: 7, CommentCount: 3}))

	posts, err := s.RecentPosts(1)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 7, posts[0].Upvotes)
	assert.Equal(t, 3, posts[0].CommentCount)
}

func TestRepliesLifecycle(t *testing.T) {
	s := newTestStore(t)

	r := &Reply{ID: "c1", PostID: "p1", AuthorName: "alice", Content: "interesting"}
	require.NoError(t, s.SaveReply(r))
	require.NoError(t, s.SaveReply(r), "duplicate save is a no-op")

	pending, err := s.PendingReplies()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.MarkReplyResponded("c1", "thanks!"))

	pending, err = s.PendingReplies()
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err := s.ReplyCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAgentCache(t *testing.T) {
	s := newTestStore(t)

	unknown, err := s.Agent("nobody")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpsertAgent(&AgentProfile{
		Name: "alice", Karma: 42, FollowerCount: 7, CachedAt: now,
	}))

	a, err := s.Agent("alice")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 42, a.Karma)

	require.NoError(t, s.UpsertAgent(&AgentProfile{Name: "alice", Karma: 50, CachedAt: now}))
	a, err = s.Agent("alice")
	require.NoError(t, err)
	assert.Equal(t, 50, a.Karma)
}

func TestInteractionLogRoundTrip(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.AppendInteraction(reputation.Interaction{
		ID: "i1", Counterpart: "alice", Kind: reputation.ReplyPositive, Timestamp: now, Context: "p1",
	}))
	require.NoError(t, s.AppendInteraction(reputation.Interaction{
		ID: "i2", Counterpart: "bob", Kind: reputation.DownvoteReceived, Timestamp: now.Add(-100 * 24 * time.Hour),
	}))

	recent, err := s.InteractionsSince(now.Add(-90 * 24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "alice", recent[0].Counterpart)
	assert.Equal(t, reputation.ReplyPositive, recent[0].Kind)
}

func TestPruneInteractions(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.AppendInteraction(reputation.Interaction{
		ID: "old", Counterpart: "x", Kind: reputation.UpvoteGiven, Timestamp: now.Add(-120 * 24 * time.Hour),
	}))
	require.NoError(t, s.AppendInteraction(reputation.Interaction{
		ID: "new", Counterpart: "x", Kind: reputation.UpvoteGiven, Timestamp: now,
	}))

	pruned, err := s.PruneInteractions(now.Add(-90 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestKPISnapshots(t *testing.T) {
	s := newTestStore(t)

	latest, err := s.LatestKPISnapshot()
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, s.SaveKPISnapshot(&KPISnapshot{
		Timestamp: time.Now().Add(-time.Hour), Karma: 10,
	}))
	require.NoError(t, s.SaveKPISnapshot(&KPISnapshot{
		Timestamp: time.Now(), Karma: 20, Allies: 3,
	}))

	latest, err = s.LatestKPISnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 20, latest.Karma)
	assert.Equal(t, 3, latest.Allies)
}
