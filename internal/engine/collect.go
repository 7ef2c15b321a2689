package engine

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/autonet-code/molt/internal/budget"
	"github.com/autonet-code/molt/internal/generator"
	"github.com/autonet-code/molt/internal/health"
	"github.com/autonet-code/molt/internal/moltbook"
	"github.com/autonet-code/molt/internal/reputation"
	"github.com/autonet-code/molt/internal/spam"
	"github.com/autonet-code/molt/internal/store"
)

const (
	searchContextTitles = 3
	threadMessageWindow = 10
	agentCacheTTL       = 24 * time.Hour
)

// ReplyCandidate is an inbound comment on one of our posts awaiting a
// response.
type ReplyCandidate struct {
	Reply    store.Reply
	Standing reputation.Relationship
}

// DMThread is one unread conversation with its recent messages rendered.
type DMThread struct {
	ID       string
	With     string
	Messages []string
}

// FeedCandidate is a post worth considering for a comment this cycle.
type FeedCandidate struct {
	Post     moltbook.Post
	Topic    string
	Standing reputation.Relationship
	Reason   string
}

// Collection is everything one cycle gathered before generation.
type Collection struct {
	Replies []ReplyCandidate
	Threads []DMThread
	Feed    []FeedCandidate
	Search  []string
}

// collect gathers pending replies, unread DMs, and feed candidates.
// Transient fetch errors skip the affected item; auth errors feed the
// health machine.
func (e *Engine) collect(ctx context.Context, state *CycleState) *Collection {
	col := &Collection{}

	e.collectReplies(ctx, state, col)
	e.collectDMs(ctx, col)
	e.collectFeed(ctx, state, col)
	e.enrichSearch(ctx, state, col)
	e.enrichAgents(ctx, col)

	log.Printf("[engine] collected: %d replies, %d conversations, %d feed candidates",
		len(col.Replies), len(col.Threads), len(col.Feed))
	return col
}

func (e *Engine) collectReplies(ctx context.Context, state *CycleState, col *Collection) {
	posts, err := e.api.MyPosts(ctx, e.cfg.Agent.Name)
	if err != nil {
		e.noteFetchError(state, "my posts", err)
		return
	}
	if len(posts) > e.cfg.Cycle.RecentPostsToCheck {
		posts = posts[:e.cfg.Cycle.RecentPostsToCheck]
	}

	for _, post := range posts {
		if err := e.store.SavePost(&store.OwnPost{
			ID: post.ID, Title: post.Title, Content: post.Content,
			Submolt: post.Submolt, CreatedAt: post.CreatedAt,
			Upvotes: post.Upvotes, Downvotes: post.Downvotes,
			CommentCount: post.CommentCount, LastChecked: e.now(),
		}); err != nil {
			log.Printf("[engine] save post %s: %v", post.ID, err)
		}

		comments, err := e.api.CommentsOnPost(ctx, post.ID)
		if err != nil {
			e.noteFetchError(state, "comments on "+post.ID, err)
			continue
		}
		for _, c := range comments {
			if c.AuthorName == e.cfg.Agent.Name {
				continue
			}
			if state.HasCommented(post.ID + ":" + c.ID) {
				continue
			}
			if isSpam, reason := spam.IsSpam(c.Content); isSpam {
				log.Printf("[engine] dropping spam reply %s (%s)", c.ID, reason)
				continue
			}
			if err := e.store.SaveReply(&store.Reply{
				ID: c.ID, PostID: post.ID, PostTitle: post.Title,
				AuthorName: c.AuthorName, Content: c.Content, CreatedAt: c.CreatedAt,
			}); err != nil {
				log.Printf("[engine] save reply %s: %v", c.ID, err)
			}
		}
	}

	// The store is canonical: it carries over replies collected in
	// earlier cycles that were never answered.
	pending, err := e.store.PendingReplies()
	if err != nil {
		log.Printf("[engine] pending replies: %v", err)
		return
	}
	for _, r := range pending {
		col.Replies = append(col.Replies, ReplyCandidate{
			Reply:    r,
			Standing: e.tracker.Classify(r.AuthorName),
		})
	}
}

func (e *Engine) collectDMs(ctx context.Context, col *Collection) {
	requests, err := e.api.DMRequests(ctx)
	if err != nil {
		log.Printf("[engine] dm requests: %v", err)
	}
	for _, req := range requests {
		if err := e.api.ApproveDMRequest(ctx, req.ID); err != nil {
			log.Printf("[engine] approve dm request %s: %v", req.ID, err)
			continue
		}
		log.Printf("[engine] approved dm request from %s", req.From)
	}

	convos, err := e.api.Conversations(ctx)
	if err != nil {
		log.Printf("[engine] conversations: %v", err)
		return
	}
	unread := 0
	for _, c := range convos {
		if !c.Unread {
			continue
		}
		if unread >= e.cfg.Cycle.UnreadConversations {
			break
		}
		messages, err := e.api.ConversationMessages(ctx, c.ID)
		if err != nil {
			log.Printf("[engine] conversation %s: %v", c.ID, err)
			continue
		}
		if len(messages) > threadMessageWindow {
			messages = messages[len(messages)-threadMessageWindow:]
		}
		thread := DMThread{ID: c.ID, With: c.OtherAgent}
		for _, m := range messages {
			thread.Messages = append(thread.Messages, m.Sender+": "+m.Content)
		}
		col.Threads = append(col.Threads, thread)
		unread++
	}
}

func (e *Engine) collectFeed(ctx context.Context, state *CycleState, col *Collection) {
	posts, err := e.api.Feed(ctx, e.cfg.Cycle.FeedFetchLimit, "hot")
	if err != nil {
		e.noteFetchError(state, "feed", err)
		return
	}

	for _, post := range posts {
		if post.AuthorName == e.cfg.Agent.Name {
			continue
		}
		if state.HasCommented(post.ID) {
			continue
		}
		if isSpam, reason := spam.IsSpam(post.Title + " " + post.Content); isSpam {
			log.Printf("[engine] dropping spam post %s (%s)", post.ID, reason)
			continue
		}

		topic := classifyTopic(post.Title, post.Content)
		engage, reason := e.tracker.ShouldEngage(post.AuthorName, reputation.EngageContext{
			ContextID:      post.ID,
			RelevantTopic:  topic == topicHigh,
			HighVisibility: post.Upvotes >= 10,
		})
		if !engage {
			log.Printf("[engine] skipping %s by %s: %s", post.ID, post.AuthorName, reason)
			continue
		}
		col.Feed = append(col.Feed, FeedCandidate{
			Post:     post,
			Topic:    topic,
			Standing: e.tracker.Classify(post.AuthorName),
			Reason:   reason,
		})
	}

	sort.SliceStable(col.Feed, func(i, j int) bool {
		ri, rj := topicRank[col.Feed[i].Topic], topicRank[col.Feed[j].Topic]
		if ri != rj {
			return ri < rj
		}
		return col.Feed[i].Post.Upvotes > col.Feed[j].Post.Upvotes
	})
}

// enrichSearch runs one rotating topic search and attaches a few result
// titles as ambient context for the generator.
func (e *Engine) enrichSearch(ctx context.Context, state *CycleState, col *Collection) {
	topic := searchTopics[int(state.TotalCycles)%len(searchTopics)]
	results, err := e.api.SearchPosts(ctx, topic)
	if err != nil {
		log.Printf("[engine] search %q: %v", topic, err)
		return
	}
	for i, r := range results {
		if i >= searchContextTitles {
			break
		}
		col.Search = append(col.Search, r.Title)
	}
}

// enrichAgents refreshes the cached profiles of counterparts seen this
// cycle, bounded per run so a busy feed cannot trigger a lookup storm.
func (e *Engine) enrichAgents(ctx context.Context, col *Collection) {
	names := make([]string, 0, len(col.Replies)+len(col.Feed))
	seen := map[string]bool{}
	for _, r := range col.Replies {
		if !seen[r.Reply.AuthorName] {
			seen[r.Reply.AuthorName] = true
			names = append(names, r.Reply.AuthorName)
		}
	}
	for _, f := range col.Feed {
		if !seen[f.Post.AuthorName] {
			seen[f.Post.AuthorName] = true
			names = append(names, f.Post.AuthorName)
		}
	}

	lookups := 0
	for _, name := range names {
		if lookups >= e.cfg.Cycle.ProfileLookupsPerRun {
			break
		}
		cached, err := e.store.Agent(name)
		if err == nil && cached != nil && e.now().Sub(cached.CachedAt) < agentCacheTTL {
			continue
		}
		info, err := e.api.Agent(ctx, name)
		if err != nil {
			log.Printf("[engine] agent lookup %s: %v", name, err)
			continue
		}
		lookups++
		if err := e.store.UpsertAgent(&store.AgentProfile{
			Name: info.Name, Description: info.Description,
			Karma: info.Karma, FollowerCount: info.FollowerCount,
			CachedAt: e.now(),
		}); err != nil {
			log.Printf("[engine] cache agent %s: %v", name, err)
		}
	}
}

// noteFetchError routes collection errors into the health machine: auth
// failures count, everything else is transient.
func (e *Engine) noteFetchError(state *CycleState, what string, err error) {
	kind := health.FailureTransient
	if moltbook.IsAuthError(err) {
		kind = health.FailureAuth
	}
	e.monitor.RecordFailure(&state.API, kind, what+": "+err.Error())
}

// buildInput flattens the collection into the generator's input packet.
func (e *Engine) buildInput(state *CycleState, col *Collection, alloc budget.Allocation, queuedPending bool) generator.Input {
	in := generator.Input{
		AgentName:         e.cfg.Agent.Name,
		HomeSubmolt:       e.cfg.Agent.HomeSubmolt,
		ReplyBudget:       alloc.Replies,
		CommentBudget:     alloc.FeedComments,
		CanPost:           state.CanPost(e.now(), e.cfg.Cycle.MaxPostsPerDay, e.cfg.PostCooldown()),
		PostsToday:        state.PostsToday,
		MaxPostsPerDay:    e.cfg.Cycle.MaxPostsPerDay,
		QueuedPostPending: queuedPending,
		AllowPersonaEdits: true,
	}

	for _, t := range col.Threads {
		in.Conversations = append(in.Conversations, generator.Conversation{
			ID: t.ID, With: t.With, Messages: t.Messages,
		})
	}
	for _, r := range col.Replies {
		in.PendingReplies = append(in.PendingReplies, generator.PendingReply{
			ID: r.Reply.ID, PostTitle: r.Reply.PostTitle,
			Author: r.Reply.AuthorName, Content: r.Reply.Content,
			Standing: standingLabel(r.Standing),
		})
	}
	for _, f := range col.Feed {
		in.FeedPosts = append(in.FeedPosts, generator.FeedPost{
			ID: f.Post.ID, Title: f.Post.Title, Author: f.Post.AuthorName,
			Submolt: f.Post.Submolt, Upvotes: f.Post.Upvotes, Topic: f.Topic,
			Excerpt:  excerpt(f.Post.Content, 200),
			Standing: standingLabel(f.Standing),
		})
	}
	in.SearchContext = col.Search
	for _, name := range e.tracker.Counterparts() {
		p := e.tracker.ProfileFor(name)
		if p.Relationship == reputation.Ally || p.Relationship == reputation.Rival {
			in.AgentNotes = append(in.AgentNotes, generator.AgentNote{
				Name: name, Standing: string(p.Relationship), Score: p.Score,
			})
		}
	}
	return in
}

// standingLabel renders a relationship for the prompt, hiding the
// uninformative states.
func standingLabel(r reputation.Relationship) string {
	switch r {
	case reputation.Ally, reputation.Rival:
		return string(r)
	default:
		return ""
	}
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
