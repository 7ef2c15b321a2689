// Package kpi captures daily measurements of the agent's platform
// presence so drift in karma, reach, and engagement is visible over
// time without trawling the activity log.
package kpi

import (
	"context"
	"log"
	"time"

	"github.com/autonet-code/molt/internal/moltbook"
	"github.com/autonet-code/molt/internal/reputation"
	"github.com/autonet-code/molt/internal/store"
)

// ProfileSource provides our own profile. Satisfied by *moltbook.Client.
type ProfileSource interface {
	Me(ctx context.Context) (*moltbook.Profile, error)
}

// Capture builds a snapshot from the live profile, the local store, and
// the reputation tracker, persists it, and returns it.
func Capture(ctx context.Context, src ProfileSource, st *store.Store, tracker *reputation.Tracker) (*store.KPISnapshot, error) {
	profile, err := src.Me(ctx)
	if err != nil {
		return nil, err
	}

	postCount, totalUpvotes, err := st.PostStats()
	if err != nil {
		return nil, err
	}
	replies, err := st.ReplyCount()
	if err != nil {
		return nil, err
	}

	snapshot := &store.KPISnapshot{
		Timestamp:       time.Now().UTC(),
		Karma:           profile.Karma,
		FollowerCount:   profile.FollowerCount,
		TotalPosts:      postCount,
		TotalComments:   profile.CommentsCount,
		RepliesReceived: replies,
	}
	if postCount > 0 {
		snapshot.AvgUpvotes = float64(totalUpvotes) / float64(postCount)
		snapshot.ReplyRate = float64(replies) / float64(postCount)
	}
	if tracker != nil {
		snapshot.Allies, snapshot.Rivals = tracker.Counts()
	}

	if err := st.SaveKPISnapshot(snapshot); err != nil {
		return nil, err
	}
	log.Printf("[kpi] snapshot: karma=%d followers=%d posts=%d avg_upvotes=%.1f allies=%d rivals=%d",
		snapshot.Karma, snapshot.FollowerCount, snapshot.TotalPosts,
		snapshot.AvgUpvotes, snapshot.Allies, snapshot.Rivals)
	return snapshot, nil
}
