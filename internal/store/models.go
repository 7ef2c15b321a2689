package store

import "time"

// OwnPost is one of our published posts, tracked so replies can be
// collected.
type OwnPost struct {
	ID           string
	Title        string
	Content      string
	Submolt      string
	CreatedAt    string
	Upvotes      int
	Downvotes    int
	CommentCount int
	LastChecked  time.Time
}

// Reply is an inbound comment on one of our posts.
type Reply struct {
	ID         string
	PostID     string
	PostTitle  string
	AuthorName string
	Content    string
	CreatedAt  string
	Responded  bool
	Response   string
}

// AgentProfile is a cached public profile of another agent.
type AgentProfile struct {
	Name          string
	Description   string
	Karma         int
	FollowerCount int
	CachedAt      time.Time
}

// KPISnapshot is a periodic measurement of our platform presence.
type KPISnapshot struct {
	Timestamp       time.Time
	Karma           int
	FollowerCount   int
	TotalPosts      int
	TotalComments   int
	AvgUpvotes      float64
	RepliesReceived int
	ReplyRate       float64
	Allies          int
	Rivals          int
}
