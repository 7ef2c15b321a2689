package engine

import (
	"context"
	"log"
	"time"

	"github.com/autonet-code/molt/internal/budget"
	"github.com/autonet-code/molt/internal/generator"
	"github.com/autonet-code/molt/internal/health"
	"github.com/autonet-code/molt/internal/moltbook"
	"github.com/autonet-code/molt/internal/persona"
	"github.com/autonet-code/molt/internal/reputation"
	"github.com/autonet-code/molt/internal/security"
	"github.com/autonet-code/molt/internal/store"
)

// execute applies a plan in fixed order: DM replies, reply responses,
// feed comments, upvotes, follows, the post slot, persona edits. Every
// outbound text passes the security gate; a blocked unit never aborts
// its siblings.
func (e *Engine) execute(ctx context.Context, state *CycleState, col *Collection, plan *generator.ActionPlan, alloc budget.Allocation) {
	e.executeDMReplies(ctx, state, col, plan.DMReplies)
	e.executeReplyResponses(ctx, state, col, plan.ReplyResponses, alloc.Replies)
	e.executeFeedComments(ctx, state, col, plan.FeedComments, alloc.FeedComments)
	e.executeUpvotes(ctx, state, col, plan.Upvotes)
	e.executeFollows(ctx, state, plan.Follows)
	e.publishPostSlot(ctx, state, plan.NewPost)
	e.executePersonaEdits(plan.PersonaEdits)
}

func (e *Engine) executeDMReplies(ctx context.Context, state *CycleState, col *Collection, replies []generator.DMReply) {
	threads := make(map[string]DMThread, len(col.Threads))
	for _, t := range col.Threads {
		threads[t.ID] = t
	}

	for _, dm := range replies {
		if dm.Skip || dm.Message == "" {
			log.Printf("[engine] skipping dm %s: %s", dm.ConversationID, dm.Reason)
			continue
		}
		thread, ok := threads[dm.ConversationID]
		if !ok {
			log.Printf("[engine] plan names unknown conversation %s", dm.ConversationID)
			continue
		}
		message, blocked := security.Scan(dm.Message, "dm_reply")
		if blocked {
			continue
		}
		if !e.recordWrite(state, e.api.ReplyDM(ctx, dm.ConversationID, message), "dm reply") {
			continue
		}
		state.TotalActions++
		e.tracker.Record(thread.With, reputation.ReplyNeutral, dm.ConversationID)
		e.logActivity("dm_reply", "replied in conversation "+dm.ConversationID)
	}
}

func (e *Engine) executeReplyResponses(ctx context.Context, state *CycleState, col *Collection, responses []generator.ReplyResponse, quota int) {
	candidates := make(map[string]ReplyCandidate, len(col.Replies))
	for _, r := range col.Replies {
		candidates[r.Reply.ID] = r
	}

	sent := 0
	for _, rr := range responses {
		cand, ok := candidates[rr.ReplyID]
		if !ok {
			log.Printf("[engine] plan names unknown reply %s", rr.ReplyID)
			continue
		}
		if rr.Skip || rr.Response == "" {
			log.Printf("[engine] skipping reply %s: %s", rr.ReplyID, rr.Reason)
			if err := e.store.MarkReplyResponded(rr.ReplyID, "[skipped] "+rr.Reason); err != nil {
				log.Printf("[engine] mark reply %s: %v", rr.ReplyID, err)
			}
			continue
		}
		if sent >= quota {
			log.Printf("[engine] reply quota reached, deferring %s", rr.ReplyID)
			continue
		}
		response, blocked := security.Scan(rr.Response, "reply_response")
		if blocked {
			continue
		}
		if !e.recordWrite(state, e.api.ReplyToPost(ctx, cand.Reply.PostID, response), "reply response") {
			continue
		}
		sent++
		state.CommentsThisHour++
		state.TotalActions++
		state.MarkCommented(cand.Reply.PostID + ":" + cand.Reply.ID)
		if err := e.store.MarkReplyResponded(rr.ReplyID, response); err != nil {
			log.Printf("[engine] mark reply %s: %v", rr.ReplyID, err)
		}
		e.tracker.Record(cand.Reply.AuthorName, reputation.ReplyPositive, cand.Reply.PostID)
		e.logActivity("reply", "responded to "+cand.Reply.AuthorName+" on "+cand.Reply.PostID)
	}
}

func (e *Engine) executeFeedComments(ctx context.Context, state *CycleState, col *Collection, comments []generator.FeedComment, quota int) {
	candidates := make(map[string]FeedCandidate, len(col.Feed))
	for _, f := range col.Feed {
		candidates[f.Post.ID] = f
	}

	sent := 0
	for _, fc := range comments {
		if fc.Skip || fc.Comment == "" {
			log.Printf("[engine] skipping feed comment on %s: %s", fc.PostID, fc.Reason)
			continue
		}
		cand, ok := candidates[fc.PostID]
		if !ok {
			log.Printf("[engine] plan names unknown feed post %s", fc.PostID)
			continue
		}
		if sent >= quota {
			log.Printf("[engine] comment quota reached, dropping comment on %s", fc.PostID)
			continue
		}
		comment, blocked := security.Scan(fc.Comment, "feed_comment")
		if blocked {
			continue
		}
		if !e.recordWrite(state, e.api.ReplyToPost(ctx, fc.PostID, comment), "feed comment") {
			continue
		}
		sent++
		state.CommentsThisHour++
		state.TotalActions++
		state.MarkCommented(fc.PostID)
		e.tracker.Record(cand.Post.AuthorName, reputation.ReplyNeutral, fc.PostID)
		e.logActivity("comment", "commented on "+fc.PostID+" by "+cand.Post.AuthorName)
	}
}

func (e *Engine) executeUpvotes(ctx context.Context, state *CycleState, col *Collection, upvotes []generator.Upvote) {
	authors := make(map[string]string, len(col.Feed))
	for _, f := range col.Feed {
		authors[f.Post.ID] = f.Post.AuthorName
	}

	for _, uv := range upvotes {
		switch {
		case uv.PostID != "":
			if state.HasUpvoted(uv.PostID) {
				continue
			}
			if !e.recordWrite(state, e.api.UpvotePost(ctx, uv.PostID), "upvote post") {
				continue
			}
			state.MarkUpvoted(uv.PostID)
			state.TotalActions++
			if author := authors[uv.PostID]; author != "" {
				e.tracker.Record(author, reputation.UpvoteGiven, uv.PostID)
			}
		case uv.CommentID != "":
			if state.HasUpvoted(uv.CommentID) {
				continue
			}
			if !e.recordWrite(state, e.api.UpvoteComment(ctx, uv.CommentID), "upvote comment") {
				continue
			}
			state.MarkUpvoted(uv.CommentID)
			state.TotalActions++
		}
	}
}

func (e *Engine) executeFollows(ctx context.Context, state *CycleState, follows []string) {
	// Allies earn a follow even when the plan forgot them.
	for _, ally := range e.tracker.Allies() {
		if !contains(follows, ally) {
			follows = append(follows, ally)
		}
	}

	for _, name := range follows {
		if name == "" || name == e.cfg.Agent.Name || state.IsFollowing(name) {
			continue
		}
		if !e.recordWrite(state, e.api.FollowAgent(ctx, name), "follow") {
			continue
		}
		state.MarkFollowed(name)
		state.TotalActions++
		e.logActivity("follow", "followed "+name)
	}
}

// publishPostSlot fills the single post slot per cycle: a queued
// operator post wins over the generated one, and is only popped after
// the publish succeeded.
func (e *Engine) publishPostSlot(ctx context.Context, state *CycleState, gen *generator.NewPost) {
	if !state.CanPost(e.now(), e.cfg.Cycle.MaxPostsPerDay, e.cfg.PostCooldown()) {
		return
	}

	queued, err := e.queue.Peek()
	if err != nil {
		log.Printf("[engine] peek queue: %v", err)
	}
	if queued != nil {
		if e.publishPost(ctx, state, queued.Title, queued.Content, queued.Submolt) {
			if _, err := e.queue.Pop(); err != nil {
				log.Printf("[engine] pop queue: %v", err)
			}
			e.logActivity("post", "published queued post: "+queued.Title)
		}
		return
	}

	if gen == nil || gen.Skip || gen.Title == "" || gen.Content == "" {
		return
	}
	title, blocked := security.Scan(gen.Title, "post_title")
	if blocked {
		return
	}
	content, blocked := security.Scan(gen.Content, "post_content")
	if blocked {
		return
	}
	submolt := gen.Submolt
	if submolt == "" {
		submolt = e.cfg.Agent.HomeSubmolt
	}
	if e.publishPost(ctx, state, title, content, submolt) {
		e.logActivity("post", "published: "+title)
	}
}

func (e *Engine) publishPost(ctx context.Context, state *CycleState, title, content, submolt string) bool {
	if submolt == "" {
		submolt = e.cfg.Agent.HomeSubmolt
	}
	id, err := e.api.CreatePost(ctx, title, content, submolt)
	if !e.recordWrite(state, err, "create post") {
		return false
	}
	state.PostsToday++
	state.LastPostTime = e.now()
	state.TotalActions++
	if err := e.store.SavePost(&store.OwnPost{
		ID: id, Title: title, Content: content, Submolt: submolt,
		CreatedAt: e.now().UTC().Format(time.RFC3339), LastChecked: e.now(),
	}); err != nil {
		log.Printf("[engine] save published post: %v", err)
	}
	log.Printf("[engine] published post %s (%d/%d today)", id, state.PostsToday, e.cfg.Cycle.MaxPostsPerDay)
	return true
}

func (e *Engine) executePersonaEdits(edits []generator.PersonaEdit) {
	for _, edit := range edits {
		if _, blocked := security.Scan(edit.NewText, "persona_edit"); blocked {
			continue
		}
		if err := persona.ApplyEdit(e.cfg.Agent.PersonaDir, edit.File, edit.OldText, edit.NewText); err != nil {
			log.Printf("[engine] persona edit rejected: %v", err)
			continue
		}
		e.logActivity("persona_edit", "edited "+edit.File)
		log.Printf("[engine] applied persona edit to %s", edit.File)
	}
}

// recordWrite routes a write outcome into the health machine and reports
// whether the write succeeded.
func (e *Engine) recordWrite(state *CycleState, err error, what string) bool {
	if err == nil {
		e.monitor.RecordSuccess(&state.API)
		return true
	}
	kind := health.FailureTransient
	if moltbook.IsAuthError(err) {
		kind = health.FailureAuth
	}
	e.monitor.RecordFailure(&state.API, kind, what+": "+err.Error())
	return false
}

func (e *Engine) logActivity(kind, detail string) {
	if err := e.store.LogActivity(kind, detail); err != nil {
		log.Printf("[engine] activity log: %v", err)
	}
}
