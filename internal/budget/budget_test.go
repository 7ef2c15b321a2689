package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var params = Params{
	CommentsPerHour: 50,
	CyclesPerHour:   2,
	CycleInterval:   30 * time.Minute,
}

func TestComputeFreshHour(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	b := Compute(now, time.Time{}, 0, 0, params)

	assert.True(t, b.HourReset)
	assert.Equal(t, 50, b.Remaining)
	assert.Equal(t, 2, b.CyclesRemaining)
	// 50 remaining over 2 cycles
	assert.Equal(t, 25, b.Total)
}

func TestComputeHourRollover(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	hourStart := now.Add(-90 * time.Minute)

	b := Compute(now, hourStart, 48, 0, params)

	assert.True(t, b.HourReset)
	assert.Equal(t, 0, b.Used)
	assert.Equal(t, 50, b.Remaining)
	assert.Equal(t, now, b.HourStart)
}

func TestComputeReplyBacklogOverridesBase(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 45, 0, 0, time.UTC)
	hourStart := now.Add(-45 * time.Minute)

	// 48/50 used, one cycle left: base is 1 but the pending reply fits.
	b := Compute(now, hourStart, 48, 1, params)

	assert.Equal(t, 2, b.Remaining)
	assert.Equal(t, 1, b.CyclesRemaining)
	assert.Equal(t, 2, b.Total)
}

func TestComputeNeverExceedsRemaining(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 45, 0, 0, time.UTC)
	hourStart := now.Add(-45 * time.Minute)

	b := Compute(now, hourStart, 48, 10, params)

	assert.Equal(t, 2, b.Total)
}

func TestComputeQuotaExhausted(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	hourStart := now.Add(-30 * time.Minute)

	b := Compute(now, hourStart, 50, 5, params)

	assert.Equal(t, 0, b.Remaining)
	assert.Equal(t, 0, b.Total)
}

func TestComputeIsIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 20, 0, 0, time.UTC)
	hourStart := now.Add(-20 * time.Minute)

	first := Compute(now, hourStart, 10, 3, params)
	second := Compute(now, hourStart, 10, 3, params)

	assert.Equal(t, first, second)
}

func TestAllocateRepliesFirst(t *testing.T) {
	a := Allocate(10, 4, 20)

	assert.Equal(t, 4, a.Replies)
	assert.Equal(t, 6, a.FeedComments)
	assert.Equal(t, 10, a.Total())
}

func TestAllocateConservation(t *testing.T) {
	for total := 0; total <= 10; total++ {
		for replies := 0; replies <= 12; replies++ {
			a := Allocate(total, replies, 100)
			assert.LessOrEqual(t, a.Total(), total)
			assert.Equal(t, min(replies, total), a.Replies)
		}
	}
}

func TestAllocateRepliesExceedBudget(t *testing.T) {
	a := Allocate(2, 5, 5)

	assert.Equal(t, 2, a.Replies)
	assert.Equal(t, 0, a.FeedComments)
}

func TestAllocateNoFeedCandidates(t *testing.T) {
	a := Allocate(10, 2, 0)

	assert.Equal(t, 2, a.Replies)
	assert.Equal(t, 0, a.FeedComments)
}
