// Package moltbook is a thin client for the Moltbook agent REST API.
package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const defaultBaseURL = "https://www.moltbook.com/api/v1"

// Client talks to the Moltbook API on behalf of one agent.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client from the MOLTBOOK_API_KEY environment variable.
// A missing key is a hard startup failure.
func NewClient() (*Client, error) {
	key := os.Getenv("MOLTBOOK_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("MOLTBOOK_API_KEY not set")
	}
	return NewClientWithKey(key), nil
}

// NewClientWithKey builds a client with an explicit key (used by tests).
func NewClientWithKey(key string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  key,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL overrides the API base URL (used by tests against httptest servers).
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body any, out any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("moltbook: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("moltbook: read %s: %w", endpoint, err)
	}

	if resp.StatusCode == 401 || resp.StatusCode == 403 || resp.StatusCode >= 500 {
		return &APIError{Status: resp.StatusCode, Endpoint: endpoint, Message: trim(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("moltbook: decode %s: %w", endpoint, err)
		}
	}
	return nil
}

func trim(data []byte) string {
	s := string(data)
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

// Wire shapes: the API nests author/submolt as objects and wraps every
// payload with a success flag.

type wireAgent struct {
	Name string `json:"name"`
}

type wireSubmolt struct {
	Name string `json:"name"`
}

type wirePost struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Upvotes      int             `json:"upvotes"`
	Downvotes    int             `json:"downvotes"`
	CommentCount int             `json:"comment_count"`
	CreatedAt    string          `json:"created_at"`
	Author       wireAgent       `json:"author"`
	Submolt      json.RawMessage `json:"submolt"`
}

func (p wirePost) toPost() Post {
	submolt := ""
	var sm wireSubmolt
	if json.Unmarshal(p.Submolt, &sm) == nil {
		submolt = sm.Name
	} else {
		_ = json.Unmarshal(p.Submolt, &submolt)
	}
	return Post{
		ID:           p.ID,
		Title:        p.Title,
		Content:      p.Content,
		Upvotes:      p.Upvotes,
		Downvotes:    p.Downvotes,
		CommentCount: p.CommentCount,
		CreatedAt:    p.CreatedAt,
		AuthorName:   p.Author.Name,
		Submolt:      submolt,
	}
}

type successResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Me fetches our own profile.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var resp struct {
		Success bool `json:"success"`
		Agent   struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
			Karma       int    `json:"karma"`
			CreatedAt   string `json:"created_at"`
			Stats       struct {
				Posts     int `json:"posts"`
				Comments  int `json:"comments"`
				Followers int `json:"followers"`
			} `json:"stats"`
		} `json:"agent"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents/me", nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("moltbook: profile fetch failed")
	}
	return &Profile{
		ID:            resp.Agent.ID,
		Name:          resp.Agent.Name,
		Description:   resp.Agent.Description,
		Karma:         resp.Agent.Karma,
		CreatedAt:     resp.Agent.CreatedAt,
		PostsCount:    resp.Agent.Stats.Posts,
		CommentsCount: resp.Agent.Stats.Comments,
		FollowerCount: resp.Agent.Stats.Followers,
	}, nil
}

// Feed fetches the global feed with the given sort ("hot", "new", "top").
func (c *Client) Feed(ctx context.Context, limit int, sort string) ([]Post, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", sort)

	var resp struct {
		Success bool       `json:"success"`
		Posts   []wirePost `json:"posts"`
	}
	if err := c.do(ctx, http.MethodGet, "/posts", params, nil, &resp); err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(resp.Posts))
	for _, p := range resp.Posts {
		posts = append(posts, p.toPost())
	}
	return posts, nil
}

// MyPosts fetches our agent's recent posts via the profile endpoint.
func (c *Client) MyPosts(ctx context.Context, name string) ([]Post, error) {
	params := url.Values{}
	params.Set("name", name)

	var resp struct {
		Success     bool       `json:"success"`
		RecentPosts []wirePost `json:"recentPosts"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents/profile", params, nil, &resp); err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(resp.RecentPosts))
	for _, p := range resp.RecentPosts {
		post := p.toPost()
		post.AuthorName = name
		posts = append(posts, post)
	}
	return posts, nil
}

// CommentsOnPost fetches all comments on a post. Comments live at the top
// level of the post detail response, not inside the post object.
func (c *Client) CommentsOnPost(ctx context.Context, postID string) ([]Comment, error) {
	var resp struct {
		Success  bool `json:"success"`
		Comments []struct {
			ID        string    `json:"id"`
			Content   string    `json:"content"`
			Upvotes   int       `json:"upvotes"`
			CreatedAt string    `json:"created_at"`
			Author    wireAgent `json:"author"`
		} `json:"comments"`
	}
	if err := c.do(ctx, http.MethodGet, "/posts/"+postID, nil, nil, &resp); err != nil {
		return nil, err
	}
	comments := make([]Comment, 0, len(resp.Comments))
	for _, wc := range resp.Comments {
		comments = append(comments, Comment{
			ID:         wc.ID,
			Content:    wc.Content,
			Upvotes:    wc.Upvotes,
			CreatedAt:  wc.CreatedAt,
			AuthorName: wc.Author.Name,
			PostID:     postID,
		})
	}
	return comments, nil
}

// CreatePost publishes a new post and returns its ID.
func (c *Client) CreatePost(ctx context.Context, title, content, submolt string) (string, error) {
	var resp struct {
		Success bool `json:"success"`
		Post    struct {
			ID string `json:"id"`
		} `json:"post"`
		Error string `json:"error"`
	}
	body := map[string]string{"title": title, "content": content, "submolt": submolt}
	if err := c.do(ctx, http.MethodPost, "/posts", nil, body, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("moltbook: create post failed: %s", resp.Error)
	}
	return resp.Post.ID, nil
}

// ReplyToPost adds a comment to a post.
func (c *Client) ReplyToPost(ctx context.Context, postID, content string) error {
	var resp successResponse
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/posts/"+postID+"/comments", nil, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("moltbook: comment on %s failed: %s", postID, resp.Error)
	}
	return nil
}

// UpvotePost upvotes a post.
func (c *Client) UpvotePost(ctx context.Context, postID string) error {
	var resp successResponse
	if err := c.do(ctx, http.MethodPost, "/posts/"+postID+"/upvote", nil, map[string]string{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("moltbook: upvote post %s failed: %s", postID, resp.Error)
	}
	return nil
}

// UpvoteComment upvotes a comment.
func (c *Client) UpvoteComment(ctx context.Context, commentID string) error {
	var resp successResponse
	if err := c.do(ctx, http.MethodPost, "/comments/"+commentID+"/upvote", nil, map[string]string{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("moltbook: upvote comment %s failed: %s", commentID, resp.Error)
	}
	return nil
}

// FollowAgent follows another agent.
func (c *Client) FollowAgent(ctx context.Context, name string) error {
	var resp successResponse
	if err := c.do(ctx, http.MethodPost, "/agents/"+name+"/follow", nil, map[string]string{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("moltbook: follow %s failed: %s", name, resp.Error)
	}
	return nil
}

// Agent fetches another agent's public profile.
func (c *Client) Agent(ctx context.Context, name string) (*AgentInfo, error) {
	var resp struct {
		Success bool `json:"success"`
		Agent   struct {
			Name          string `json:"name"`
			Description   string `json:"description"`
			Karma         int    `json:"karma"`
			FollowerCount int    `json:"follower_count"`
		} `json:"agent"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents/"+name, nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("moltbook: agent %s not found", name)
	}
	return &AgentInfo{
		Name:          resp.Agent.Name,
		Description:   resp.Agent.Description,
		Karma:         resp.Agent.Karma,
		FollowerCount: resp.Agent.FollowerCount,
	}, nil
}

// SearchPosts searches for posts matching a query.
func (c *Client) SearchPosts(ctx context.Context, query string) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "posts")

	var resp struct {
		Success bool `json:"success"`
		Posts   []struct {
			ID      string    `json:"id"`
			Title   string    `json:"title"`
			Content string    `json:"content"`
			Upvotes int       `json:"upvotes"`
			Author  wireAgent `json:"author"`
		} `json:"posts"`
	}
	if err := c.do(ctx, http.MethodGet, "/search", params, nil, &resp); err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(resp.Posts))
	for _, p := range resp.Posts {
		results = append(results, SearchResult{
			ID:         p.ID,
			Title:      p.Title,
			Content:    p.Content,
			Upvotes:    p.Upvotes,
			AuthorName: p.Author.Name,
		})
	}
	return results, nil
}

// Conversations lists DM conversations.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var resp struct {
		Success       bool `json:"success"`
		Conversations []struct {
			ID          string    `json:"id"`
			OtherAgent  wireAgent `json:"other_agent"`
			LastMessage struct {
				Content   string `json:"content"`
				CreatedAt string `json:"created_at"`
			} `json:"last_message"`
			Unread bool `json:"unread"`
		} `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents/dm/conversations", nil, nil, &resp); err != nil {
		return nil, err
	}
	convos := make([]Conversation, 0, len(resp.Conversations))
	for _, wc := range resp.Conversations {
		convos = append(convos, Conversation{
			ID:            wc.ID,
			OtherAgent:    wc.OtherAgent.Name,
			LastMessage:   wc.LastMessage.Content,
			LastMessageAt: wc.LastMessage.CreatedAt,
			Unread:        wc.Unread,
		})
	}
	return convos, nil
}

// ConversationMessages reads the messages in one conversation.
func (c *Client) ConversationMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var resp struct {
		Success  bool `json:"success"`
		Messages []struct {
			ID        string    `json:"id"`
			Sender    wireAgent `json:"sender"`
			Content   string    `json:"content"`
			CreatedAt string    `json:"created_at"`
		} `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents/dm/conversations/"+conversationID, nil, nil, &resp); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, Message{
			ID:             m.ID,
			Sender:         m.Sender.Name,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
			ConversationID: conversationID,
		})
	}
	return msgs, nil
}

// ReplyDM sends a message in an existing conversation.
func (c *Client) ReplyDM(ctx context.Context, conversationID, message string) error {
	var resp successResponse
	body := map[string]string{"message": message}
	if err := c.do(ctx, http.MethodPost, "/agents/dm/conversations/"+conversationID+"/send", nil, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("moltbook: dm reply to %s failed: %s", conversationID, resp.Error)
	}
	return nil
}

// DMRequests lists pending conversation requests.
func (c *Client) DMRequests(ctx context.Context) ([]DMRequest, error) {
	var resp struct {
		Success  bool `json:"success"`
		Requests []struct {
			ID   string    `json:"id"`
			From wireAgent `json:"from"`
		} `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents/dm/requests", nil, nil, &resp); err != nil {
		return nil, err
	}
	reqs := make([]DMRequest, 0, len(resp.Requests))
	for _, r := range resp.Requests {
		reqs = append(reqs, DMRequest{ID: r.ID, From: r.From.Name})
	}
	return reqs, nil
}

// ApproveDMRequest accepts a pending conversation request.
func (c *Client) ApproveDMRequest(ctx context.Context, requestID string) error {
	var resp successResponse
	if err := c.do(ctx, http.MethodPost, "/agents/dm/requests/"+requestID+"/approve", nil, map[string]string{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("moltbook: approve dm request %s failed: %s", requestID, resp.Error)
	}
	return nil
}
