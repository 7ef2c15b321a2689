package engine

import (
	"time"

	"github.com/autonet-code/molt/internal/health"
)

// Summary is the operator-facing view of the cycle state, served by the
// dashboard and the status command.
type Summary struct {
	APIStatus           health.Status `json:"api_status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OutageStart         *time.Time    `json:"outage_start,omitempty"`

	PostsToday       int       `json:"posts_today"`
	CommentsThisHour int       `json:"comments_this_hour"`
	LastPostTime     time.Time `json:"last_post_time"`
	LastHeartbeat    time.Time `json:"last_heartbeat"`

	TotalCycles    int64 `json:"total_cycles"`
	TotalActions   int64 `json:"total_actions"`
	TotalTokensIn  int64 `json:"total_tokens_in"`
	TotalTokensOut int64 `json:"total_tokens_out"`

	FollowedAgents int `json:"followed_agents"`
}

// Summary condenses the state document for display.
func (s *CycleState) Summary() Summary {
	return Summary{
		APIStatus:           s.API.Status,
		ConsecutiveFailures: s.API.ConsecutiveFailures,
		OutageStart:         s.API.OutageStart,
		PostsToday:          s.PostsToday,
		CommentsThisHour:    s.CommentsThisHour,
		LastPostTime:        s.LastPostTime,
		LastHeartbeat:       s.LastHeartbeatTime,
		TotalCycles:         s.TotalCycles,
		TotalActions:        s.TotalActions,
		TotalTokensIn:       s.TotalTokensIn,
		TotalTokensOut:      s.TotalTokensOut,
		FollowedAgents:      len(s.FollowedAgents),
	}
}
