// Package engine runs the cycle scheduler: one wake-up collects inbound
// work, asks the generator for a plan, gates and executes it, and
// persists everything before going back to sleep.
package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/autonet-code/molt/internal/health"
)

const (
	commentedRingSize = 100
	upvotedRingSize   = 500
)

// CycleState is the singleton state document. It is read at the start of
// a cycle, mutated in memory, and written back atomically at the end.
type CycleState struct {
	PostsToday        int       `json:"posts_today"`
	LastPostDate      string    `json:"last_post_date"`
	CommentsThisHour  int       `json:"comments_this_hour"`
	HourStart         time.Time `json:"hour_start"`
	LastPostTime      time.Time `json:"last_post_time"`
	LastHeartbeatTime time.Time `json:"last_heartbeat_time"`

	API health.APIState `json:"api"`

	// Rings prevent re-engaging the same content. Comment keys are
	// "postID" for feed comments and "postID:commentID" for replies.
	CommentedPostIDs []string `json:"commented_post_ids"`
	UpvotedIDs       []string `json:"upvoted_ids"`
	FollowedAgents   []string `json:"followed_agents"`

	// Lifetime accumulators, never reset.
	TotalCycles    int64 `json:"total_cycles"`
	TotalActions   int64 `json:"total_actions"`
	TotalTokensIn  int64 `json:"total_tokens_in"`
	TotalTokensOut int64 `json:"total_tokens_out"`
}

// NewState returns an empty state with API status unknown.
func NewState() *CycleState {
	return &CycleState{
		API: health.APIState{Status: health.StatusUnknown},
	}
}

// LoadState reads the state document. A missing file yields a fresh
// state; a corrupt one is an error so we never silently lose counters.
func LoadState(path string) (*CycleState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, err
	}
	var s CycleState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("engine: corrupt state file %s: %w", path, err)
	}
	if s.API.Status == "" {
		s.API.Status = health.StatusUnknown
	}
	return &s, nil
}

// Save writes the state document atomically (temp file + rename).
func (s *CycleState) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ResetDailyIfNeeded zeroes the daily post counter on the first cycle of
// a new day.
func (s *CycleState) ResetDailyIfNeeded(now time.Time) {
	today := now.Format("2006-01-02")
	if s.LastPostDate != today {
		s.PostsToday = 0
		s.LastPostDate = today
	}
}

// CanPost reports whether the post slot is open this cycle.
func (s *CycleState) CanPost(now time.Time, maxPerDay int, cooldown time.Duration) bool {
	if s.PostsToday >= maxPerDay {
		return false
	}
	if !s.LastPostTime.IsZero() && now.Sub(s.LastPostTime) < cooldown {
		return false
	}
	return true
}

// HasCommented reports whether a comment key is in the ring.
func (s *CycleState) HasCommented(key string) bool {
	return contains(s.CommentedPostIDs, key)
}

// MarkCommented appends a key to the comment ring, evicting the oldest.
func (s *CycleState) MarkCommented(key string) {
	s.CommentedPostIDs = appendRing(s.CommentedPostIDs, key, commentedRingSize)
}

// HasUpvoted reports whether a post or comment ID is in the upvote ring.
func (s *CycleState) HasUpvoted(id string) bool {
	return contains(s.UpvotedIDs, id)
}

// MarkUpvoted appends an ID to the upvote ring, evicting the oldest.
func (s *CycleState) MarkUpvoted(id string) {
	s.UpvotedIDs = appendRing(s.UpvotedIDs, id, upvotedRingSize)
}

// IsFollowing reports whether we already follow the agent.
func (s *CycleState) IsFollowing(name string) bool {
	return contains(s.FollowedAgents, name)
}

// MarkFollowed records a followed agent. The set is unbounded.
func (s *CycleState) MarkFollowed(name string) {
	if !s.IsFollowing(name) {
		s.FollowedAgents = append(s.FollowedAgents, name)
	}
}

func appendRing(ring []string, v string, max int) []string {
	if contains(ring, v) {
		return ring
	}
	ring = append(ring, v)
	if len(ring) > max {
		ring = ring[len(ring)-max:]
	}
	return ring
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
