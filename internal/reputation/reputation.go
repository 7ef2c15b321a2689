// Package reputation tracks per-counterpart interaction history and derives
// relationship classifications and engage decisions.
//
// The protocol is tit-for-tat with forgiveness: start cooperative with
// unknowns, mirror behavior, let old negatives fade. It is deliberately
// deterministic so another agent can run the same rules and predict our
// responses.
package reputation

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the interaction types we track.
type Kind string

const (
	UpvoteGiven      Kind = "upvote_given"
	UpvoteReceived   Kind = "upvote_received"
	DownvoteGiven    Kind = "downvote_given"
	DownvoteReceived Kind = "downvote_received"
	ReplyPositive    Kind = "reply_positive"
	ReplyNeutral     Kind = "reply_neutral"
	ReplyNegative    Kind = "reply_negative"
	MentionPositive  Kind = "mention_positive"
	MentionNegative  Kind = "mention_negative"
)

// weights score each interaction kind. Received interactions weigh more
// than given ones: them engaging with us says more than us engaging with
// them.
var weights = map[Kind]float64{
	UpvoteGiven:      1,
	UpvoteReceived:   2,
	DownvoteGiven:    -1,
	DownvoteReceived: -2,
	ReplyPositive:    3,
	ReplyNeutral:     0,
	ReplyNegative:    -2,
	MentionPositive:  2,
	MentionNegative:  -3,
}

// Relationship classifies a counterpart.
type Relationship string

const (
	Unknown Relationship = "unknown"
	Ally    Relationship = "ally"
	Neutral Relationship = "neutral"
	Rival   Relationship = "rival"
	Ignored Relationship = "ignore"
)

// Interaction is one immutable record of contact with a counterpart.
type Interaction struct {
	ID          string    `json:"id"`
	Counterpart string    `json:"counterpart"`
	Kind        Kind      `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	Context     string    `json:"context,omitempty"`
}

// Profile is the derived view of a counterpart, computed from the log.
type Profile struct {
	Name             string
	Relationship     Relationship
	Score            float64
	InteractionCount int
	FirstSeen        time.Time
	LastSeen         time.Time
}

// EngageContext carries the situational flags the engage decision keys on.
type EngageContext struct {
	// ContextID feeds the deterministic pseudo-probability; usually the
	// post ID under consideration.
	ContextID      string
	RelevantTopic  bool
	MentionsUs     bool
	Negative       bool
	HighVisibility bool
}

// Sink receives each newly recorded interaction for durable storage.
type Sink interface {
	AppendInteraction(Interaction) error
}

// Tracker holds the in-memory interaction log plus a memoized profile
// cache. Appends and reads are safe for concurrent use.
type Tracker struct {
	AllyThreshold   float64
	RivalThreshold  float64
	MinInteractions int
	DecayPerDay     float64
	MaxHistoryDays  int

	mu      sync.RWMutex
	byUser  map[string][]Interaction
	cache   map[string]Profile
	ignored map[string]bool
	sink    Sink
	now     func() time.Time
}

// NewTracker builds a tracker with the protocol's published thresholds.
func NewTracker(sink Sink) *Tracker {
	return &Tracker{
		AllyThreshold:   5,
		RivalThreshold:  -5,
		MinInteractions: 3,
		DecayPerDay:     0.1,
		MaxHistoryDays:  90,
		byUser:          make(map[string][]Interaction),
		cache:           make(map[string]Profile),
		ignored:         make(map[string]bool),
		sink:            sink,
		now:             time.Now,
	}
}

// SetClock overrides the time source (used by tests).
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// Load seeds the tracker from previously persisted interactions.
func (t *Tracker) Load(interactions []Interaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, in := range interactions {
		t.byUser[in.Counterpart] = append(t.byUser[in.Counterpart], in)
	}
	t.cache = make(map[string]Profile)
}

// SetIgnored places a counterpart on the explicit ignore list.
func (t *Tracker) SetIgnored(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ignored[name] = true
	delete(t.cache, name)
}

// Record appends a new interaction, invalidating the counterpart's cached
// profile and forwarding to the durable sink when one is attached.
func (t *Tracker) Record(counterpart string, kind Kind, context string) Interaction {
	in := Interaction{
		ID:          uuid.NewString(),
		Counterpart: counterpart,
		Kind:        kind,
		Timestamp:   t.now(),
		Context:     context,
	}

	t.mu.Lock()
	t.byUser[counterpart] = append(t.byUser[counterpart], in)
	delete(t.cache, counterpart)
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		// Persistence failures don't invalidate the in-memory record.
		_ = sink.AppendInteraction(in)
	}
	return in
}

// Score computes the decayed relationship score for a counterpart.
//
// Negative weights decay linearly toward zero at DecayPerDay (forgiveness,
// never past zero), and every contribution is scaled by a recency factor
// running from 1.0 today to 0.5 at 30 days. Interactions past the retention
// horizon are excluded entirely.
func (t *Tracker) Score(counterpart string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scoreLocked(counterpart)
}

func (t *Tracker) scoreLocked(counterpart string) float64 {
	now := t.now()
	score := 0.0

	for _, in := range t.byUser[counterpart] {
		days := now.Sub(in.Timestamp).Hours() / 24
		if days < 0 {
			days = 0
		}
		if days > float64(t.MaxHistoryDays) {
			continue
		}

		w := weights[in.Kind]
		if w < 0 {
			w += t.DecayPerDay * days
			if w > 0 {
				w = 0
			}
		}

		recency := 1.0 - 0.5*minFloat(days, 30)/30
		score += w * recency
	}

	return score
}

// Classify derives the relationship for a counterpart.
func (t *Tracker) Classify(counterpart string) Relationship {
	return t.ProfileFor(counterpart).Relationship
}

// ProfileFor returns the full derived profile, memoized until the next
// recorded interaction for that counterpart.
func (t *Tracker) ProfileFor(counterpart string) Profile {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.cache[counterpart]; ok {
		return p
	}

	p := Profile{Name: counterpart}

	if t.ignored[counterpart] {
		p.Relationship = Ignored
		t.cache[counterpart] = p
		return p
	}

	history := t.byUser[counterpart]
	p.InteractionCount = len(history)
	if len(history) > 0 {
		p.FirstSeen = history[0].Timestamp
		p.LastSeen = history[len(history)-1].Timestamp
	}

	switch {
	case len(history) == 0:
		p.Relationship = Unknown
	case len(history) < t.MinInteractions:
		p.Score = t.scoreLocked(counterpart)
		p.Relationship = Neutral
	default:
		p.Score = t.scoreLocked(counterpart)
		switch {
		case p.Score >= t.AllyThreshold:
			p.Relationship = Ally
		case p.Score <= t.RivalThreshold:
			p.Relationship = Rival
		default:
			p.Relationship = Neutral
		}
	}

	t.cache[counterpart] = p
	return p
}

// ShouldEngage is the protocol's deterministic engage decision. Calling it
// twice with the same history and context always yields the same answer.
func (t *Tracker) ShouldEngage(counterpart string, ctx EngageContext) (bool, string) {
	switch t.Classify(counterpart) {
	case Ignored:
		return false, "ignore_list"

	case Unknown:
		return true, "unknown_user_start_cooperative"

	case Ally:
		return true, "ally_prioritize"

	case Rival:
		if ctx.MentionsUs && ctx.Negative {
			return true, "rival_defensive_response"
		}
		if ctx.HighVisibility {
			return true, "rival_high_visibility"
		}
		return false, "rival_avoid"

	default: // Neutral
		if ctx.RelevantTopic {
			return true, "neutral_relevant_topic"
		}
		if stableHash(counterpart+":"+ctx.ContextID)%100 < 50 {
			return true, "neutral_probabilistic_engage"
		}
		return false, "neutral_probabilistic_skip"
	}
}

// Allies lists every counterpart currently classified as an ally.
func (t *Tracker) Allies() []string {
	var allies []string
	for _, name := range t.Counterparts() {
		if t.Classify(name) == Ally {
			allies = append(allies, name)
		}
	}
	return allies
}

// Counterparts lists every counterpart with recorded history, sorted.
func (t *Tracker) Counterparts() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.byUser))
	for name := range t.byUser {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Counts returns how many allies and rivals are currently tracked.
func (t *Tracker) Counts() (allies, rivals int) {
	for _, name := range t.Counterparts() {
		switch t.Classify(name) {
		case Ally:
			allies++
		case Rival:
			rivals++
		}
	}
	return allies, rivals
}

// stableHash gives a platform-independent hash for the published
// pseudo-probability rule. FNV-1a so third parties can reproduce it.
func stableHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
