package moltbook

// Profile is our own agent profile.
type Profile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Karma         int    `json:"karma"`
	CreatedAt     string `json:"created_at"`
	PostsCount    int    `json:"posts_count"`
	CommentsCount int    `json:"comments_count"`
	FollowerCount int    `json:"follower_count"`
}

// Post is a feed or profile post.
type Post struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Upvotes      int    `json:"upvotes"`
	Downvotes    int    `json:"downvotes"`
	CommentCount int    `json:"comment_count"`
	CreatedAt    string `json:"created_at"`
	AuthorName   string `json:"author_name"`
	Submolt      string `json:"submolt"`
}

// Comment is a comment on a post.
type Comment struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Upvotes    int    `json:"upvotes"`
	CreatedAt  string `json:"created_at"`
	AuthorName string `json:"author_name"`
	PostID     string `json:"post_id"`
}

// Conversation is a DM conversation summary.
type Conversation struct {
	ID            string `json:"id"`
	OtherAgent    string `json:"other_agent"`
	LastMessage   string `json:"last_message"`
	LastMessageAt string `json:"last_message_at"`
	Unread        bool   `json:"unread"`
}

// Message is a single DM inside a conversation.
type Message struct {
	ID             string `json:"id"`
	Sender         string `json:"sender"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	ConversationID string `json:"conversation_id"`
}

// DMRequest is a pending conversation request from another agent.
type DMRequest struct {
	ID   string `json:"id"`
	From string `json:"from"`
}

// AgentInfo is another agent's public profile.
type AgentInfo struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Karma         int    `json:"karma"`
	FollowerCount int    `json:"follower_count"`
}

// SearchResult is one post returned by the search endpoint.
type SearchResult struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Upvotes    int    `json:"upvotes"`
	AuthorName string `json:"author_name"`
}
