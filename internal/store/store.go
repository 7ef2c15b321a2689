package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/autonet-code/molt/internal/reputation"
)

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT,
		submolt TEXT,
		created_at TEXT,
		upvotes INTEGER DEFAULT 0,
		downvotes INTEGER DEFAULT 0,
		comment_count INTEGER DEFAULT 0,
		last_checked DATETIME
	);

	CREATE TABLE IF NOT EXISTS replies (
		id TEXT PRIMARY KEY,
		post_id TEXT REFERENCES posts(id),
		post_title TEXT,
		author_name TEXT,
		content TEXT,
		created_at TEXT,
		responded BOOLEAN DEFAULT 0,
		response TEXT
	);

	CREATE TABLE IF NOT EXISTS agents (
		name TEXT PRIMARY KEY,
		description TEXT,
		karma INTEGER DEFAULT 0,
		follower_count INTEGER DEFAULT 0,
		cached_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		counterpart TEXT NOT NULL,
		kind TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		context TEXT
	);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT
	);

	CREATE TABLE IF NOT EXISTS kpi_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		karma INTEGER,
		follower_count INTEGER,
		total_posts INTEGER,
		total_comments INTEGER,
		avg_upvotes REAL,
		replies_received INTEGER,
		reply_rate REAL,
		allies INTEGER,
		rivals INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_replies_post ON replies(post_id);
	CREATE INDEX IF NOT EXISTS idx_replies_responded ON replies(responded);
	CREATE INDEX IF NOT EXISTS idx_interactions_counterpart ON interactions(counterpart);
	CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_activity_timestamp ON activity_log(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SavePost inserts or updates one of our posts
func (s *Store) SavePost(p *OwnPost) error {
	_, err := s.db.Exec(`
		INSERT INTO posts (id, title, content, submolt, created_at,
			upvotes, downvotes, comment_count, last_checked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			upvotes = excluded.upvotes,
			downvotes = excluded.downvotes,
			comment_count = excluded.comment_count,
			last_checked = excluded.last_checked
	`, p.ID, p.Title, p.Content, p.Submolt, p.CreatedAt,
		p.Upvotes, p.Downvotes, p.CommentCount, p.LastChecked)

	return err
}

// RecentPosts returns our most recent posts, newest first.
func (s *Store) RecentPosts(limit int) ([]OwnPost, error) {
	rows, err := s.db.Query(`
		SELECT id, title, content, submolt, created_at,
			upvotes, downvotes, comment_count, last_checked
		FROM posts
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []OwnPost
	for rows.Next() {
		var p OwnPost
		var lastChecked sql.NullTime
		err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Submolt, &p.CreatedAt,
			&p.Upvotes, &p.Downvotes, &p.CommentCount, &lastChecked)
		if err != nil {
			return nil, err
		}
		p.LastChecked = lastChecked.Time
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// PostStats returns the count and total upvotes of our posts.
func (s *Store) PostStats() (count, totalUpvotes int, err error) {
	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(upvotes), 0) FROM posts`).
		Scan(&count, &totalUpvotes)
	return count, totalUpvotes, err
}

// SaveReply records an inbound reply if not already seen.
func (s *Store) SaveReply(r *Reply) error {
	_, err := s.db.Exec(`
		INSERT INTO replies (id, post_id, post_title, author_name, content, created_at, responded, response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, r.ID, r.PostID, r.PostTitle, r.AuthorName, r.Content, r.CreatedAt, r.Responded, r.Response)

	return err
}

// PendingReplies returns replies we have not responded to yet.
func (s *Store) PendingReplies() ([]Reply, error) {
	rows, err := s.db.Query(`
		SELECT id, post_id, post_title, author_name, content, created_at, responded, COALESCE(response, '')
		FROM replies
		WHERE responded = 0
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var replies []Reply
	for rows.Next() {
		var r Reply
		err := rows.Scan(&r.ID, &r.PostID, &r.PostTitle, &r.AuthorName,
			&r.Content, &r.CreatedAt, &r.Responded, &r.Response)
		if err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	return replies, rows.Err()
}

// MarkReplyResponded records our response (or skip marker) for a reply.
func (s *Store) MarkReplyResponded(id, response string) error {
	_, err := s.db.Exec(`UPDATE replies SET responded = 1, response = ? WHERE id = ?`, response, id)
	return err
}

// ReplyCount returns the total number of replies ever received.
func (s *Store) ReplyCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM replies`).Scan(&n)
	return n, err
}

// UpsertAgent caches another agent's public profile.
func (s *Store) UpsertAgent(a *AgentProfile) error {
	_, err := s.db.Exec(`
		INSERT INTO agents (name, description, karma, follower_count, cached_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			karma = excluded.karma,
			follower_count = excluded.follower_count,
			cached_at = excluded.cached_at
	`, a.Name, a.Description, a.Karma, a.FollowerCount, a.CachedAt)

	return err
}

// Agent returns a cached agent profile, or nil when unknown.
func (s *Store) Agent(name string) (*AgentProfile, error) {
	var a AgentProfile
	var cachedAt sql.NullTime
	err := s.db.QueryRow(`
		SELECT name, description, karma, follower_count, cached_at
		FROM agents WHERE name = ?
	`, name).Scan(&a.Name, &a.Description, &a.Karma, &a.FollowerCount, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CachedAt = cachedAt.Time
	return &a, nil
}

// AppendInteraction implements reputation.Sink.
func (s *Store) AppendInteraction(in reputation.Interaction) error {
	_, err := s.db.Exec(`
		INSERT INTO interactions (id, counterpart, kind, timestamp, context)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, in.ID, in.Counterpart, string(in.Kind), in.Timestamp, in.Context)

	return err
}

// InteractionsSince loads interactions newer than the cutoff, oldest first.
func (s *Store) InteractionsSince(cutoff time.Time) ([]reputation.Interaction, error) {
	rows, err := s.db.Query(`
		SELECT id, counterpart, kind, timestamp, COALESCE(context, '')
		FROM interactions
		WHERE timestamp >= ?
		ORDER BY timestamp ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interactions []reputation.Interaction
	for rows.Next() {
		var in reputation.Interaction
		var kind string
		err := rows.Scan(&in.ID, &in.Counterpart, &kind, &in.Timestamp, &in.Context)
		if err != nil {
			return nil, err
		}
		in.Kind = reputation.Kind(kind)
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}

// PruneInteractions removes interactions older than the cutoff. The score
// model already excludes them; this is purely a storage optimization.
func (s *Store) PruneInteractions(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM interactions WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LogActivity appends an audit entry.
func (s *Store) LogActivity(kind, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO activity_log (timestamp, kind, detail) VALUES (?, ?, ?)
	`, time.Now(), kind, detail)
	return err
}

// PruneActivity removes audit entries older than the cutoff.
func (s *Store) PruneActivity(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM activity_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SaveKPISnapshot appends a KPI measurement.
func (s *Store) SaveKPISnapshot(k *KPISnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO kpi_snapshots (timestamp, karma, follower_count, total_posts,
			total_comments, avg_upvotes, replies_received, reply_rate, allies, rivals)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, k.Timestamp, k.Karma, k.FollowerCount, k.TotalPosts,
		k.TotalComments, k.AvgUpvotes, k.RepliesReceived, k.ReplyRate, k.Allies, k.Rivals)

	return err
}

// LatestKPISnapshot returns the most recent KPI measurement, or nil.
func (s *Store) LatestKPISnapshot() (*KPISnapshot, error) {
	var k KPISnapshot
	err := s.db.QueryRow(`
		SELECT timestamp, karma, follower_count, total_posts, total_comments,
			avg_upvotes, replies_received, reply_rate, allies, rivals
		FROM kpi_snapshots
		ORDER BY timestamp DESC
		LIMIT 1
	`).Scan(&k.Timestamp, &k.Karma, &k.FollowerCount, &k.TotalPosts, &k.TotalComments,
		&k.AvgUpvotes, &k.RepliesReceived, &k.ReplyRate, &k.Allies, &k.Rivals)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}
