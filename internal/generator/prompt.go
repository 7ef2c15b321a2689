package generator

import (
	"fmt"
	"strings"
)

// Input is everything the collection phase gathered for one cycle,
// flattened into plain values so the prompt builder stays free of
// engine and transport types.
type Input struct {
	AgentName string

	Conversations  []Conversation
	PendingReplies []PendingReply
	FeedPosts      []FeedPost
	AgentNotes     []AgentNote
	SearchContext  []string

	ReplyBudget   int
	CommentBudget int

	CanPost           bool
	PostsToday        int
	MaxPostsPerDay    int
	QueuedPostPending bool
	HomeSubmolt       string

	AllowPersonaEdits bool
	ReducedMode       bool
}

// Conversation is one unread DM thread, oldest message first.
type Conversation struct {
	ID       string
	With     string
	Messages []string
}

// PendingReply is a comment on one of our posts awaiting a response.
type PendingReply struct {
	ID        string
	PostTitle string
	Author    string
	Content   string
	Standing  string
}

// FeedPost is a candidate post from the feed or search.
type FeedPost struct {
	ID       string
	Title    string
	Author   string
	Submolt  string
	Upvotes  int
	Topic    string
	Excerpt  string
	Standing string
}

// AgentNote summarizes our relationship with a counterpart.
type AgentNote struct {
	Name     string
	Standing string
	Score    float64
}

// BuildPrompt renders the cycle context into the user prompt. The
// persona is passed separately as the system prompt.
func BuildPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("You are acting for one engagement cycle. Review the context below and respond with a single JSON object describing every action to take this cycle.\n")

	if in.ReducedMode {
		b.WriteString("\nNOTE: comment delivery is currently failing, so only the new_post field will be executed. Plan accordingly.\n")
	}

	if len(in.Conversations) > 0 {
		b.WriteString("\n## Unread Direct Messages\n")
		for _, c := range in.Conversations {
			fmt.Fprintf(&b, "\nConversation %s with %s:\n", c.ID, c.With)
			for _, m := range c.Messages {
				fmt.Fprintf(&b, "  %s\n", m)
			}
		}
	}

	if len(in.PendingReplies) > 0 {
		b.WriteString("\n## Replies To Your Posts\n")
		for _, r := range in.PendingReplies {
			fmt.Fprintf(&b, "\n[%s] %s", r.ID, r.Author)
			if r.Standing != "" {
				fmt.Fprintf(&b, " (%s)", r.Standing)
			}
			fmt.Fprintf(&b, " on %q:\n  %s\n", r.PostTitle, r.Content)
		}
	}

	if len(in.FeedPosts) > 0 {
		b.WriteString("\n## Feed Candidates\n")
		for _, p := range in.FeedPosts {
			fmt.Fprintf(&b, "\n[%s] %q by %s in m/%s (%d upvotes, topic: %s", p.ID, p.Title, p.Author, p.Submolt, p.Upvotes, p.Topic)
			if p.Standing != "" {
				fmt.Fprintf(&b, ", author standing: %s", p.Standing)
			}
			b.WriteString(")\n")
			if p.Excerpt != "" {
				fmt.Fprintf(&b, "  %s\n", p.Excerpt)
			}
		}
	}

	if len(in.SearchContext) > 0 {
		b.WriteString("\n## Recent Platform Discussion\n")
		for _, title := range in.SearchContext {
			fmt.Fprintf(&b, "- %s\n", title)
		}
	}

	if len(in.AgentNotes) > 0 {
		b.WriteString("\n## Known Agents\n")
		for _, a := range in.AgentNotes {
			fmt.Fprintf(&b, "- %s: %s (score %.1f)\n", a.Name, a.Standing, a.Score)
		}
	}

	b.WriteString("\n## Limits This Cycle\n")
	fmt.Fprintf(&b, "- Reply responses: at most %d\n", in.ReplyBudget)
	fmt.Fprintf(&b, "- Feed comments: at most %d\n", in.CommentBudget)
	if in.CanPost {
		fmt.Fprintf(&b, "- You may create one new post (%d of %d used today).", in.PostsToday, in.MaxPostsPerDay)
		if in.QueuedPostPending {
			b.WriteString(" A queued operator post will be published instead; leave new_post null.")
		}
		b.WriteString("\n")
	} else {
		b.WriteString("- No new post this cycle. Leave new_post null.\n")
	}

	b.WriteString("\n## Response Format\n")
	b.WriteString("Respond with JSON only, using exactly these keys:\n")
	b.WriteString(`{
  "dm_replies": [{"conversation_id": "...", "message": "...", "skip": false, "reason": ""}],
  "reply_responses": [{"reply_id": "...", "response": "...", "skip": false, "reason": ""}],
  "feed_comments": [{"post_id": "...", "comment": "...", "skip": false, "reason": ""}],
  "upvotes": [{"post_id": "..."}, {"comment_id": "..."}],
  "follows": ["agent_name"],
  "new_post": {"title": "...", "content": "...", "submolt": "` + in.HomeSubmolt + `", "skip": false, "reason": ""},
`)
	if in.AllowPersonaEdits {
		b.WriteString(`  "persona_edits": [{"file": "persona/STRATEGY.md", "old_text": "...", "new_text": "..."}]
`)
	} else {
		b.WriteString(`  "persona_edits": []
`)
	}
	b.WriteString("}\n")
	b.WriteString("Address every conversation and pending reply, using skip with a reason to decline. Only comment on feed posts worth engaging.\n")

	return b.String()
}
