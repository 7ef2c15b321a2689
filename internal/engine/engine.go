package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/autonet-code/molt/internal/budget"
	"github.com/autonet-code/molt/internal/config"
	"github.com/autonet-code/molt/internal/generator"
	"github.com/autonet-code/molt/internal/health"
	"github.com/autonet-code/molt/internal/moltbook"
	"github.com/autonet-code/molt/internal/persona"
	"github.com/autonet-code/molt/internal/queue"
	"github.com/autonet-code/molt/internal/reputation"
	"github.com/autonet-code/molt/internal/store"
)

// API is the platform surface the engine drives. *moltbook.Client
// satisfies it; tests substitute a fake.
type API interface {
	Me(ctx context.Context) (*moltbook.Profile, error)
	Feed(ctx context.Context, limit int, sort string) ([]moltbook.Post, error)
	MyPosts(ctx context.Context, name string) ([]moltbook.Post, error)
	CommentsOnPost(ctx context.Context, postID string) ([]moltbook.Comment, error)
	CreatePost(ctx context.Context, title, content, submolt string) (string, error)
	ReplyToPost(ctx context.Context, postID, content string) error
	UpvotePost(ctx context.Context, postID string) error
	UpvoteComment(ctx context.Context, commentID string) error
	FollowAgent(ctx context.Context, name string) error
	Agent(ctx context.Context, name string) (*moltbook.AgentInfo, error)
	SearchPosts(ctx context.Context, query string) ([]moltbook.SearchResult, error)
	Conversations(ctx context.Context) ([]moltbook.Conversation, error)
	ConversationMessages(ctx context.Context, conversationID string) ([]moltbook.Message, error)
	ReplyDM(ctx context.Context, conversationID, message string) error
	DMRequests(ctx context.Context) ([]moltbook.DMRequest, error)
	ApproveDMRequest(ctx context.Context, requestID string) error
}

// Planner produces one action plan per cycle. *generator.Generator
// satisfies it.
type Planner interface {
	Plan(ctx context.Context, system, prompt string) (*generator.ActionPlan, generator.Usage, error)
}

// Engine is the cycle scheduler.
type Engine struct {
	cfg     *config.Config
	api     API
	store   *store.Store
	tracker *reputation.Tracker
	monitor *health.Monitor
	planner Planner
	queue   *queue.Queue

	statePath string
	lockPath  string
	now       func() time.Time
}

// New wires an engine over the given data directory.
func New(cfg *config.Config, api API, st *store.Store, tracker *reputation.Tracker, planner Planner, q *queue.Queue, dataDir string) *Engine {
	return &Engine{
		cfg:       cfg,
		api:       api,
		store:     st,
		tracker:   tracker,
		monitor:   health.NewMonitor(cfg.Health.FailureThreshold, cfg.ProbeInterval()),
		planner:   planner,
		queue:     q,
		statePath: filepath.Join(dataDir, "cycle_state.json"),
		lockPath:  filepath.Join(dataDir, "moltd.lock"),
		now:       time.Now,
	}
}

// SetClock overrides the time source (used by tests).
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// StatePath returns the path of the state document.
func (e *Engine) StatePath() string { return e.statePath }

// readAdapter exposes the client's read surface to the health check.
type readAdapter struct{ api API }

func (r readAdapter) FeedOK(ctx context.Context, sort string) (bool, error) {
	_, err := r.api.Feed(ctx, 1, sort)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r readAdapter) ProfileOK(ctx context.Context) (bool, error) {
	_, err := r.api.Me(ctx)
	if err != nil {
		return false, err
	}
	return true, nil
}

// RunCycle executes one full wake-up under the instance lock. Errors
// inside the cycle are absorbed at this boundary; only failure to take
// the lock or load state surfaces to the caller.
func (e *Engine) RunCycle(ctx context.Context) error {
	lock, err := AcquireLock(e.lockPath, e.cfg.LockStale())
	if err != nil {
		return err
	}
	defer lock.Release()

	state, err := LoadState(e.statePath)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[engine] cycle panic recovered: %v", r)
		}
		state.LastHeartbeatTime = e.now()
		if serr := state.Save(e.statePath); serr != nil {
			log.Printf("[engine] save state: %v", serr)
		}
	}()

	state.TotalCycles++
	state.ResetDailyIfNeeded(e.now())
	log.Printf("[engine] cycle %d starting", state.TotalCycles)

	reachable, msg := health.CheckRead(ctx, readAdapter{e.api})
	log.Printf("[engine] read check: %s", msg)
	if !reachable {
		kind := health.FailureTransient
		if strings.Contains(msg, "authentication") {
			kind = health.FailureAuth
		}
		e.monitor.RecordFailure(&state.API, kind, msg)
		return nil
	}

	if e.monitor.IsDown(&state.API) {
		if !e.monitor.ShouldProbe(&state.API) {
			log.Printf("[engine] write API down, next probe not due")
			return nil
		}
		e.monitor.MarkProbed(&state.API)
		log.Printf("[engine] write API down, probing via reduced cycle")
		e.runReduced(ctx, state)
		return nil
	}

	if err := e.runFull(ctx, state); err != nil {
		log.Printf("[engine] cycle error: %v", err)
	}
	return nil
}

// runReduced is the posts-only degraded mode: the post slot doubles as
// the write probe while the API is down. A queued operator post is
// preferred; otherwise the generator is asked for a post and nothing
// else.
func (e *Engine) runReduced(ctx context.Context, state *CycleState) {
	if !state.CanPost(e.now(), e.cfg.Cycle.MaxPostsPerDay, e.cfg.PostCooldown()) {
		log.Printf("[engine] reduced cycle: post slot closed, nothing to probe with")
		return
	}

	queued, _ := e.queue.Peek()
	if queued != nil {
		e.publishPostSlot(ctx, state, nil)
		return
	}

	p, err := persona.Load(e.cfg.Agent.PersonaDir)
	if err != nil {
		log.Printf("[engine] reduced cycle: load persona: %v", err)
		return
	}
	input := generator.Input{
		AgentName:      e.cfg.Agent.Name,
		HomeSubmolt:    e.cfg.Agent.HomeSubmolt,
		CanPost:        true,
		PostsToday:     state.PostsToday,
		MaxPostsPerDay: e.cfg.Cycle.MaxPostsPerDay,
		ReducedMode:    true,
	}
	plan, usage, err := e.planner.Plan(ctx, p.SystemPrompt(), generator.BuildPrompt(input))
	state.TotalTokensIn += usage.InputTokens
	state.TotalTokensOut += usage.OutputTokens
	if err != nil {
		log.Printf("[engine] reduced cycle: %v", err)
		return
	}
	e.publishPostSlot(ctx, state, plan.NewPost)
}

func (e *Engine) runFull(ctx context.Context, state *CycleState) error {
	p, err := persona.Load(e.cfg.Agent.PersonaDir)
	if err != nil {
		return fmt.Errorf("load persona: %w", err)
	}

	col := e.collect(ctx, state)

	b := budget.Compute(e.now(), state.HourStart, state.CommentsThisHour, len(col.Replies), budget.Params{
		CommentsPerHour: e.cfg.Budget.CommentsPerHour,
		CyclesPerHour:   e.cfg.Budget.CyclesPerHour,
		CycleInterval:   e.cfg.Interval(),
	})
	state.HourStart = b.HourStart
	if b.HourReset {
		state.CommentsThisHour = 0
	}
	alloc := budget.Allocate(b.Total, len(col.Replies), len(col.Feed))
	log.Printf("[engine] budget: total=%d replies=%d feed=%d (hour remaining %d)",
		b.Total, alloc.Replies, alloc.FeedComments, b.Remaining)

	if len(col.Feed) > alloc.FeedComments {
		col.Feed = col.Feed[:alloc.FeedComments]
	}

	queued, _ := e.queue.Peek()
	input := e.buildInput(state, col, alloc, queued != nil)

	plan, usage, err := e.planner.Plan(ctx, p.SystemPrompt(), generator.BuildPrompt(input))
	state.TotalTokensIn += usage.InputTokens
	state.TotalTokensOut += usage.OutputTokens
	if err != nil {
		return fmt.Errorf("generate plan: %w", err)
	}

	e.execute(ctx, state, col, plan, alloc)
	return nil
}

// Serve runs the catch-up service loop until the context is cancelled.
// Overdue cycles run immediately; sleep is chunked so shutdown is
// responsive within one slice.
func (e *Engine) Serve(ctx context.Context) error {
	for {
		state, err := LoadState(e.statePath)
		if err != nil {
			return err
		}
		next := state.LastHeartbeatTime.Add(e.cfg.Interval())
		if !e.sleepUntil(ctx, next) {
			return ctx.Err()
		}

		if err := e.RunCycle(ctx); err != nil {
			if errors.Is(err, ErrLocked) {
				log.Printf("[engine] %v, retrying next interval", err)
			} else {
				log.Printf("[engine] cycle failed: %v", err)
			}
		}
	}
}

func (e *Engine) sleepUntil(ctx context.Context, deadline time.Time) bool {
	const slice = 30 * time.Second
	for {
		now := e.now()
		if !now.Before(deadline) {
			return true
		}
		d := deadline.Sub(now)
		if d > slice {
			d = slice
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
		}
	}
}
