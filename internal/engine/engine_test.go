package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonet-code/molt/internal/config"
	"github.com/autonet-code/molt/internal/generator"
	"github.com/autonet-code/molt/internal/health"
	"github.com/autonet-code/molt/internal/moltbook"
	"github.com/autonet-code/molt/internal/queue"
	"github.com/autonet-code/molt/internal/reputation"
	"github.com/autonet-code/molt/internal/store"
)

type createdPost struct{ title, content, submolt string }
type sentComment struct{ postID, content string }

type fakeAPI struct {
	mu sync.Mutex

	feed     []moltbook.Post
	myPosts  []moltbook.Post
	comments map[string][]moltbook.Comment
	convos   []moltbook.Conversation
	messages map[string][]moltbook.Message
	requests []moltbook.DMRequest
	agents   map[string]*moltbook.AgentInfo
	search   []moltbook.SearchResult

	feedErr  error
	meErr    error
	writeErr error

	created         []createdPost
	postReplies     []sentComment
	dmsSent         []sentComment
	upvotedPosts    []string
	upvotedComments []string
	followed        []string
	approved        []string
}

func (f *fakeAPI) Me(ctx context.Context) (*moltbook.Profile, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	return &moltbook.Profile{Name: "autonet"}, nil
}

func (f *fakeAPI) Feed(ctx context.Context, limit int, sort string) ([]moltbook.Post, error) {
	if f.feedErr != nil {
		return nil, f.feedErr
	}
	return f.feed, nil
}

func (f *fakeAPI) MyPosts(ctx context.Context, name string) ([]moltbook.Post, error) {
	return f.myPosts, nil
}

func (f *fakeAPI) CommentsOnPost(ctx context.Context, postID string) ([]moltbook.Comment, error) {
	return f.comments[postID], nil
}

func (f *fakeAPI) CreatePost(ctx context.Context, title, content, submolt string) (string, error) {
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, createdPost{title, content, submolt})
	return "new-post-id", nil
}

func (f *fakeAPI) ReplyToPost(ctx context.Context, postID, content string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postReplies = append(f.postReplies, sentComment{postID, content})
	return nil
}

func (f *fakeAPI) UpvotePost(ctx context.Context, postID string) error {
	f.upvotedPosts = append(f.upvotedPosts, postID)
	return nil
}

func (f *fakeAPI) UpvoteComment(ctx context.Context, commentID string) error {
	f.upvotedComments = append(f.upvotedComments, commentID)
	return nil
}

func (f *fakeAPI) FollowAgent(ctx context.Context, name string) error {
	f.followed = append(f.followed, name)
	return nil
}

func (f *fakeAPI) Agent(ctx context.Context, name string) (*moltbook.AgentInfo, error) {
	if a, ok := f.agents[name]; ok {
		return a, nil
	}
	return &moltbook.AgentInfo{Name: name}, nil
}

func (f *fakeAPI) SearchPosts(ctx context.Context, query string) ([]moltbook.SearchResult, error) {
	return f.search, nil
}

func (f *fakeAPI) Conversations(ctx context.Context) ([]moltbook.Conversation, error) {
	return f.convos, nil
}

func (f *fakeAPI) ConversationMessages(ctx context.Context, conversationID string) ([]moltbook.Message, error) {
	return f.messages[conversationID], nil
}

func (f *fakeAPI) ReplyDM(ctx context.Context, conversationID, message string) error {
	f.dmsSent = append(f.dmsSent, sentComment{conversationID, message})
	return nil
}

func (f *fakeAPI) DMRequests(ctx context.Context) ([]moltbook.DMRequest, error) {
	return f.requests, nil
}

func (f *fakeAPI) ApproveDMRequest(ctx context.Context, requestID string) error {
	f.approved = append(f.approved, requestID)
	return nil
}

type fakePlanner struct {
	plan   *generator.ActionPlan
	usage  generator.Usage
	err    error
	called bool
	prompt string
}

func (f *fakePlanner) Plan(ctx context.Context, system, prompt string) (*generator.ActionPlan, generator.Usage, error) {
	f.called = true
	f.prompt = prompt
	return f.plan, f.usage, f.err
}

type testEnv struct {
	engine  *Engine
	api     *fakeAPI
	planner *fakePlanner
	store   *store.Store
	queue   *queue.Queue
	dataDir string
}

func newTestEnv(t *testing.T, api *fakeAPI, planner *fakePlanner) *testEnv {
	t.Helper()

	dataDir := t.TempDir()
	personaDir := filepath.Join(dataDir, "persona")
	require.NoError(t, os.MkdirAll(personaDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(personaDir, "AGENT_BRIEF.md"),
		[]byte("# autonet\n\nA civic-minded test agent."), 0600))

	cfg := config.Default()
	cfg.Agent.PersonaDir = personaDir

	st, err := store.New(filepath.Join(dataDir, "molt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := queue.New(filepath.Join(dataDir, "post_queue.json"))
	tracker := reputation.NewTracker(st)

	return &testEnv{
		engine:  New(cfg, api, st, tracker, planner, q, dataDir),
		api:     api,
		planner: planner,
		store:   st,
		queue:   q,
		dataDir: dataDir,
	}
}

func (env *testEnv) loadState(t *testing.T) *CycleState {
	t.Helper()
	s, err := LoadState(env.engine.StatePath())
	require.NoError(t, err)
	return s
}

func TestRunCycleFullFlow(t *testing.T) {
	api := &fakeAPI{
		myPosts: []moltbook.Post{{ID: "own1", Title: "My governance take"}},
		comments: map[string][]moltbook.Comment{
			"own1": {
				{ID: "c1", PostID: "own1", AuthorName: "alice", Content: "Interesting argument, can you expand?"},
				{ID: "c2", PostID: "own1", AuthorName: "autonet", Content: "my own comment"},
			},
		},
		feed: []moltbook.Post{
			{ID: "p2", Title: "Dispute resolution ideas", AuthorName: "bob", Upvotes: 8, Submolt: "autonet"},
			{ID: "p3", Title: "chanting thread", AuthorName: "carol", Upvotes: 50, Submolt: "autonet"},
		},
		search: []moltbook.SearchResult{{ID: "s1", Title: "On coordination"}},
	}
	planner := &fakePlanner{
		plan: &generator.ActionPlan{
			ReplyResponses: []generator.ReplyResponse{
				{ReplyID: "c1", Response: "Happy to expand on that."},
			},
			FeedComments: []generator.FeedComment{
				{PostID: "p2", Comment: "Arbitration panels could work here."},
			},
			Upvotes: []generator.Upvote{{PostID: "p2"}},
			Follows: []string{"bob"},
		},
		usage: generator.Usage{InputTokens: 1000, OutputTokens: 200},
	}
	env := newTestEnv(t, api, planner)

	require.NoError(t, env.engine.RunCycle(context.Background()))

	require.True(t, planner.called)
	assert.Contains(t, planner.prompt, "Interesting argument")
	assert.Contains(t, planner.prompt, "Dispute resolution ideas")
	assert.Contains(t, planner.prompt, "On coordination")

	require.Len(t, api.postReplies, 2)
	assert.Equal(t, "own1", api.postReplies[0].postID, "replies execute before feed comments")
	assert.Equal(t, "p2", api.postReplies[1].postID)
	assert.Equal(t, []string{"p2"}, api.upvotedPosts)
	assert.Equal(t, []string{"bob"}, api.followed)

	state := env.loadState(t)
	assert.Equal(t, int64(1), state.TotalCycles)
	assert.Equal(t, 2, state.CommentsThisHour)
	assert.Equal(t, int64(1000), state.TotalTokensIn)
	assert.Equal(t, int64(200), state.TotalTokensOut)
	assert.Equal(t, health.StatusUp, state.API.Status)
	assert.True(t, state.HasCommented("own1:c1"))
	assert.True(t, state.HasCommented("p2"))
	assert.True(t, state.HasUpvoted("p2"))
	assert.True(t, state.IsFollowing("bob"))

	pending, err := env.store.PendingReplies()
	require.NoError(t, err)
	assert.Empty(t, pending, "answered reply is marked responded")
}

func TestRunCycleSkipsOwnAndSpamContent(t *testing.T) {
	api := &fakeAPI{
		myPosts: []moltbook.Post{{ID: "own1", Title: "post"}},
		comments: map[string][]moltbook.Comment{
			"own1": {
				{ID: "c1", PostID: "own1", AuthorName: "spammer", Content: "buy buy buy buy buy"},
			},
		},
		feed: []moltbook.Post{
			{ID: "mine", Title: "own governance post", AuthorName: "autonet"},
		},
	}
	planner := &fakePlanner{plan: &generator.ActionPlan{}}
	env := newTestEnv(t, api, planner)

	require.NoError(t, env.engine.RunCycle(context.Background()))

	assert.NotContains(t, planner.prompt, "buy buy")
	assert.NotContains(t, planner.prompt, "own governance post")
}

func TestRunCycleBlocksSecretLeak(t *testing.T) {
	api := &fakeAPI{
		feed: []moltbook.Post{
			{ID: "p1", Title: "governance chat", AuthorName: "bob", Upvotes: 3},
		},
	}
	planner := &fakePlanner{
		plan: &generator.ActionPlan{
			FeedComments: []generator.FeedComment{
				{PostID: "p1", Comment: "my key is moltbook_sk_abcdefghij1234567890"},
			},
			Follows: []string{"bob"},
		},
	}
	env := newTestEnv(t, api, planner)

	require.NoError(t, env.engine.RunCycle(context.Background()))

	assert.Empty(t, api.postReplies, "leaking comment must be blocked")
	assert.Equal(t, []string{"bob"}, api.followed, "siblings still execute")
}

func TestRunCycleUnreachablePlatform(t *testing.T) {
	api := &fakeAPI{
		feedErr: &moltbook.APIError{Status: 500, Endpoint: "/posts"},
		meErr:   &moltbook.APIError{Status: 500, Endpoint: "/agents/me"},
	}
	planner := &fakePlanner{plan: &generator.ActionPlan{}}
	env := newTestEnv(t, api, planner)

	require.NoError(t, env.engine.RunCycle(context.Background()))

	assert.False(t, planner.called, "no generation when unreachable")
	state := env.loadState(t)
	assert.Equal(t, int64(1), state.TotalCycles)
	assert.False(t, state.LastHeartbeatTime.IsZero())
}

func TestRunCycleAuthFailureMarksDown(t *testing.T) {
	api := &fakeAPI{
		feedErr: &moltbook.APIError{Status: 401, Endpoint: "/posts"},
		meErr:   &moltbook.APIError{Status: 401, Endpoint: "/agents/me"},
	}
	planner := &fakePlanner{plan: &generator.ActionPlan{}}
	env := newTestEnv(t, api, planner)

	require.NoError(t, env.engine.RunCycle(context.Background()))

	state := env.loadState(t)
	assert.Equal(t, health.StatusDown, state.API.Status)
	assert.NotNil(t, state.API.OutageStart)
}

func TestReducedModePublishesQueuedPost(t *testing.T) {
	api := &fakeAPI{}
	planner := &fakePlanner{plan: &generator.ActionPlan{}}
	env := newTestEnv(t, api, planner)

	down := NewState()
	down.API.Status = health.StatusDown
	down.API.ConsecutiveFailures = 1
	require.NoError(t, down.Save(env.engine.StatePath()))

	_, err := env.queue.Add(queue.Post{Title: "queued", Content: "body", Submolt: "autonet"})
	require.NoError(t, err)

	require.NoError(t, env.engine.RunCycle(context.Background()))

	require.Len(t, api.created, 1)
	assert.Equal(t, "queued", api.created[0].title)
	assert.False(t, planner.called, "queued post preempts generation in reduced mode")

	n, err := env.queue.Len()
	require.NoError(t, err)
	assert.Zero(t, n, "post popped only after successful publish")

	state := env.loadState(t)
	assert.Equal(t, health.StatusUp, state.API.Status, "successful probe write recovers")
	assert.Equal(t, 1, state.PostsToday)
}

func TestReducedModeKeepsQueueOnFailure(t *testing.T) {
	api := &fakeAPI{writeErr: &moltbook.APIError{Status: 500, Endpoint: "/posts"}}
	planner := &fakePlanner{plan: &generator.ActionPlan{}}
	env := newTestEnv(t, api, planner)

	down := NewState()
	down.API.Status = health.StatusDown
	down.API.ConsecutiveFailures = 1
	require.NoError(t, down.Save(env.engine.StatePath()))

	_, err := env.queue.Add(queue.Post{Title: "queued", Content: "body"})
	require.NoError(t, err)

	require.NoError(t, env.engine.RunCycle(context.Background()))

	n, err := env.queue.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "failed publish leaves the post queued")

	state := env.loadState(t)
	assert.Equal(t, health.StatusDown, state.API.Status)
	assert.Zero(t, state.PostsToday)
}

func TestRunCycleRespectsProbeInterval(t *testing.T) {
	api := &fakeAPI{}
	planner := &fakePlanner{plan: &generator.ActionPlan{}}
	env := newTestEnv(t, api, planner)

	down := NewState()
	down.API.Status = health.StatusDown
	down.API.ConsecutiveFailures = 1
	down.API.LastProbe = time.Now()
	require.NoError(t, down.Save(env.engine.StatePath()))

	_, err := env.queue.Add(queue.Post{Title: "queued", Content: "body"})
	require.NoError(t, err)

	require.NoError(t, env.engine.RunCycle(context.Background()))

	assert.Empty(t, api.created, "probe suppressed inside the interval")
}

func TestRunCycleLockContention(t *testing.T) {
	api := &fakeAPI{}
	planner := &fakePlanner{plan: &generator.ActionPlan{}}
	env := newTestEnv(t, api, planner)

	lock, err := AcquireLock(filepath.Join(env.dataDir, "moltd.lock"), 10*time.Minute)
	require.NoError(t, err)
	defer lock.Release()

	err = env.engine.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
}

func TestRunCycleDiscardsPlanOnGeneratorError(t *testing.T) {
	api := &fakeAPI{
		feed: []moltbook.Post{{ID: "p1", Title: "governance", AuthorName: "bob"}},
	}
	planner := &fakePlanner{
		err:   assert.AnError,
		usage: generator.Usage{InputTokens: 500, OutputTokens: 100},
	}
	env := newTestEnv(t, api, planner)

	require.NoError(t, env.engine.RunCycle(context.Background()))

	assert.Empty(t, api.postReplies)
	assert.Empty(t, api.created)

	state := env.loadState(t)
	assert.Equal(t, int64(500), state.TotalTokensIn, "tokens count even when the plan is discarded")
}

func TestServeStopsOnCancel(t *testing.T) {
	api := &fakeAPI{}
	planner := &fakePlanner{plan: &generator.ActionPlan{}}
	env := newTestEnv(t, api, planner)

	// A fresh heartbeat keeps the loop sleeping until cancellation.
	s := NewState()
	s.LastHeartbeatTime = time.Now()
	require.NoError(t, s.Save(env.engine.StatePath()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.engine.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancellation")
	}
}
