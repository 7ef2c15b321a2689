// Package budget computes and allocates the hourly write-action budget.
//
// The allocator is greedy, single-pass, and deterministic: the same inputs
// always produce the same split.
package budget

import "time"

// Params are the tunable budget knobs.
type Params struct {
	CommentsPerHour int
	CyclesPerHour   int
	CycleInterval   time.Duration
}

// Budget is the per-cycle spending envelope.
type Budget struct {
	Total           int
	Used            int
	Remaining       int
	CyclesRemaining int

	// HourStart is the (possibly reset) start of the current budget hour.
	// Callers persist it back into cycle state.
	HourStart time.Time
	HourReset bool
}

// Compute determines how many comments this cycle may spend.
//
// The base rate spreads the remaining hourly quota evenly across the cycles
// left in the hour; a backlog of pending replies can raise the budget up to
// whatever remains so direct replies are never starved.
func Compute(now, hourStart time.Time, commentsUsed, pendingReplies int, p Params) Budget {
	reset := false
	if hourStart.IsZero() || now.Sub(hourStart) > time.Hour {
		hourStart = now
		commentsUsed = 0
		reset = true
	}

	remaining := p.CommentsPerHour - commentsUsed
	if remaining < 0 {
		remaining = 0
	}

	elapsedCycles := 0
	if p.CycleInterval > 0 {
		elapsedCycles = int(now.Sub(hourStart) / p.CycleInterval)
	}
	cyclesRemaining := p.CyclesPerHour - elapsedCycles
	if cyclesRemaining < 1 {
		cyclesRemaining = 1
	}

	base := remaining / cyclesRemaining
	if base < 1 {
		base = 1
	}

	total := base
	if pendingReplies > total {
		total = min(pendingReplies, remaining)
	}
	if total > remaining {
		total = remaining
	}

	return Budget{
		Total:           total,
		Used:            commentsUsed,
		Remaining:       remaining,
		CyclesRemaining: cyclesRemaining,
		HourStart:       hourStart,
		HourReset:       reset,
	}
}

// Allocation splits the cycle budget between candidate categories.
type Allocation struct {
	Replies      int
	FeedComments int
}

// Allocate distributes a budget with replies first, feed comments taking
// whatever remains. Feed candidates are assumed pre-sorted by priority.
func Allocate(total, replyCandidates, feedCandidates int) Allocation {
	replies := min(replyCandidates, total)
	feed := min(feedCandidates, total-replies)
	return Allocation{Replies: replies, FeedComments: feed}
}

// Total returns the number of comment slots allocated.
func (a Allocation) Total() int {
	return a.Replies + a.FeedComments
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
