package reputation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker() (*Tracker, *time.Time) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(nil)
	tr.SetClock(func() time.Time { return now })
	return tr, &now
}

func TestUnknownCounterpart(t *testing.T) {
	tr, _ := newTestTracker()

	assert.Equal(t, Unknown, tr.Classify("newagent"))

	engage, reason := tr.ShouldEngage("newagent", EngageContext{})
	assert.True(t, engage)
	assert.Equal(t, "unknown_user_start_cooperative", reason)
}

func TestMinInteractionsForClassification(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Record("bob", ReplyPositive, "p1")
	tr.Record("bob", ReplyPositive, "p2")

	// Score is high but two interactions can't make an ally.
	assert.Equal(t, Neutral, tr.Classify("bob"))
}

func TestFourPositiveRepliesMakeAlly(t *testing.T) {
	tr, _ := newTestTracker()

	for i := 0; i < 4; i++ {
		tr.Record("alice", ReplyPositive, "p")
	}

	assert.Greater(t, tr.Score("alice"), 5.0)
	assert.Equal(t, Ally, tr.Classify("alice"))
}

func TestRivalClassification(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Record("mallory", MentionNegative, "p1")
	tr.Record("mallory", MentionNegative, "p2")
	tr.Record("mallory", DownvoteReceived, "p3")

	assert.LessOrEqual(t, tr.Score("mallory"), -5.0)
	assert.Equal(t, Rival, tr.Classify("mallory"))
}

func TestScoreMonotonicity(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Record("carol", ReplyNeutral, "")
	before := tr.Score("carol")

	tr.Record("carol", UpvoteReceived, "")
	afterPositive := tr.Score("carol")
	assert.Greater(t, afterPositive, before)

	tr.Record("carol", DownvoteReceived, "")
	afterNegative := tr.Score("carol")
	assert.Less(t, afterNegative, afterPositive)
}

func TestForgivenessDecayNeverFlipsPositive(t *testing.T) {
	tr, nowPtr := newTestTracker()

	tr.Record("dave", MentionNegative, "p1")

	// 40 days later the -3 has fully decayed to zero, not beyond.
	*nowPtr = nowPtr.Add(40 * 24 * time.Hour)
	assert.Equal(t, 0.0, tr.Score("dave"))
}

func TestRetentionHorizonExcludesOldInteractions(t *testing.T) {
	tr, nowPtr := newTestTracker()

	tr.Record("erin", ReplyPositive, "p1")

	*nowPtr = nowPtr.Add(91 * 24 * time.Hour)
	assert.Equal(t, 0.0, tr.Score("erin"))
}

func TestRecencyFactorHalvesAtThirtyDays(t *testing.T) {
	tr, nowPtr := newTestTracker()

	tr.Record("frank", ReplyPositive, "p1")
	fresh := tr.Score("frank")
	assert.InDelta(t, 3.0, fresh, 0.01)

	*nowPtr = nowPtr.Add(30 * 24 * time.Hour)
	aged := tr.Score("frank")
	assert.InDelta(t, 1.5, aged, 0.01)

	// Flat beyond 30 days (until the retention horizon).
	*nowPtr = nowPtr.Add(30 * 24 * time.Hour)
	assert.InDelta(t, 1.5, tr.Score("frank"), 0.01)
}

func TestShouldEngageDeterministic(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Record("grace", ReplyNeutral, "p1")
	tr.Record("grace", ReplyNeutral, "p2")
	tr.Record("grace", ReplyNeutral, "p3")
	require.Equal(t, Neutral, tr.Classify("grace"))

	ctx := EngageContext{ContextID: "post-42"}
	first, firstReason := tr.ShouldEngage("grace", ctx)
	second, secondReason := tr.ShouldEngage("grace", ctx)

	assert.Equal(t, first, second)
	assert.Equal(t, firstReason, secondReason)
	assert.Contains(t, []string{"neutral_probabilistic_engage", "neutral_probabilistic_skip"}, firstReason)
}

func TestNeutralRelevantTopicAlwaysEngages(t *testing.T) {
	tr, _ := newTestTracker()

	for i := 0; i < 3; i++ {
		tr.Record("heidi", ReplyNeutral, "p")
	}

	engage, reason := tr.ShouldEngage("heidi", EngageContext{RelevantTopic: true})
	assert.True(t, engage)
	assert.Equal(t, "neutral_relevant_topic", reason)
}

func TestRivalEngagementRules(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Record("ivan", MentionNegative, "p1")
	tr.Record("ivan", MentionNegative, "p2")
	tr.Record("ivan", MentionNegative, "p3")
	require.Equal(t, Rival, tr.Classify("ivan"))

	engage, reason := tr.ShouldEngage("ivan", EngageContext{})
	assert.False(t, engage)
	assert.Equal(t, "rival_avoid", reason)

	engage, reason = tr.ShouldEngage("ivan", EngageContext{MentionsUs: true, Negative: true})
	assert.True(t, engage)
	assert.Equal(t, "rival_defensive_response", reason)

	engage, reason = tr.ShouldEngage("ivan", EngageContext{HighVisibility: true})
	assert.True(t, engage)
	assert.Equal(t, "rival_high_visibility", reason)
}

func TestIgnoreListNeverEngages(t *testing.T) {
	tr, _ := newTestTracker()

	tr.SetIgnored("spammer")

	engage, reason := tr.ShouldEngage("spammer", EngageContext{RelevantTopic: true, HighVisibility: true})
	assert.False(t, engage)
	assert.Equal(t, "ignore_list", reason)
}

func TestCacheInvalidatedOnRecord(t *testing.T) {
	tr, _ := newTestTracker()

	for i := 0; i < 3; i++ {
		tr.Record("judy", ReplyPositive, "p")
	}
	require.Equal(t, Ally, tr.Classify("judy"))

	// Pile on negatives; the cached ally profile must not stick.
	for i := 0; i < 6; i++ {
		tr.Record("judy", MentionNegative, "p")
	}
	assert.NotEqual(t, Ally, tr.Classify("judy"))
}

type captureSink struct {
	records []Interaction
}

func (c *captureSink) AppendInteraction(in Interaction) error {
	c.records = append(c.records, in)
	return nil
}

func TestRecordForwardsToSink(t *testing.T) {
	sink := &captureSink{}
	tr := NewTracker(sink)

	tr.Record("alice", UpvoteGiven, "p1")

	require.Len(t, sink.records, 1)
	assert.Equal(t, "alice", sink.records[0].Counterpart)
	assert.Equal(t, UpvoteGiven, sink.records[0].Kind)
	assert.NotEmpty(t, sink.records[0].ID)
}

func TestLoadSeedsHistory(t *testing.T) {
	tr, nowPtr := newTestTracker()

	base := *nowPtr
	tr.Load([]Interaction{
		{ID: "1", Counterpart: "alice", Kind: ReplyPositive, Timestamp: base},
		{ID: "2", Counterpart: "alice", Kind: ReplyPositive, Timestamp: base},
		{ID: "3", Counterpart: "alice", Kind: ReplyPositive, Timestamp: base},
	})

	assert.Equal(t, Ally, tr.Classify("alice"))
	allies, rivals := tr.Counts()
	assert.Equal(t, 1, allies)
	assert.Equal(t, 0, rivals)
}
