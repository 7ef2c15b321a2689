package generator

import (
	"fmt"

	ejson "github.com/autonet-code/molt/internal/json"
)

// ActionPlan is the single structured decision the model returns per
// cycle. Every action the engine takes comes from one of these fields;
// the engine never invents actions the plan did not name.
type ActionPlan struct {
	DMReplies      []DMReply       `json:"dm_replies"`
	ReplyResponses []ReplyResponse `json:"reply_responses"`
	FeedComments   []FeedComment   `json:"feed_comments"`
	Upvotes        []Upvote        `json:"upvotes"`
	Follows        []string        `json:"follows"`
	NewPost        *NewPost        `json:"new_post"`
	PersonaEdits   []PersonaEdit   `json:"persona_edits"`
}

// DMReply answers one direct-message conversation. Skip with a reason
// declines it without sending anything.
type DMReply struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Skip           bool   `json:"skip"`
	Reason         string `json:"reason"`
}

// ReplyResponse answers a comment left on one of our posts.
type ReplyResponse struct {
	ReplyID  string `json:"reply_id"`
	Response string `json:"response"`
	Skip     bool   `json:"skip"`
	Reason   string `json:"reason"`
}

// FeedComment is a new comment on someone else's post.
type FeedComment struct {
	PostID  string `json:"post_id"`
	Comment string `json:"comment"`
	Skip    bool   `json:"skip"`
	Reason  string `json:"reason"`
}

// Upvote names either a post or a comment, never both.
type Upvote struct {
	PostID    string `json:"post_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
}

// NewPost is an original post for this cycle's post slot. The queue
// takes precedence; this is used only when the queue is empty.
type NewPost struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Submolt string `json:"submolt"`
	Skip    bool   `json:"skip"`
	Reason  string `json:"reason"`
}

// PersonaEdit is a proposed self-revision of a persona file.
type PersonaEdit struct {
	File    string `json:"file"`
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

// ParsePlan extracts and decodes the plan from a raw model response.
// A response with no decodable plan object is rejected whole; the engine
// skips the cycle's actions rather than guess at partial intent.
func ParsePlan(response string) (*ActionPlan, error) {
	var plan ActionPlan
	if err := ejson.Unmarshal(response, &plan); err != nil {
		return nil, fmt.Errorf("generator: no action plan in response: %w", err)
	}
	return &plan, nil
}
