// Package queue is the durable operator post queue: a human-curated FIFO
// of posts to publish when rate limits allow. It is a single JSON file so
// operators can inspect or hand-edit it while the daemon is stopped.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Post is one queued, operator-authored post.
type Post struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Submolt string `json:"submolt"`
}

// Queue manages the queue file. Safe for concurrent use within one
// process; cross-process coordination relies on atomic writes.
type Queue struct {
	mu   sync.Mutex
	path string
}

// New creates a queue backed by the given file path.
func New(path string) *Queue {
	return &Queue{path: path}
}

// List returns all queued posts in order.
func (q *Queue) List() ([]Post, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Add appends a post and returns the new queue length.
func (q *Queue) Add(p Post) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	posts, err := q.load()
	if err != nil {
		return 0, err
	}
	if p.Submolt == "" {
		p.Submolt = "autonet"
	}
	posts = append(posts, p)
	if err := q.save(posts); err != nil {
		return 0, err
	}
	return len(posts), nil
}

// Remove deletes the post at index.
func (q *Queue) Remove(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	posts, err := q.load()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(posts) {
		return fmt.Errorf("queue index %d out of range (len %d)", index, len(posts))
	}
	posts = append(posts[:index], posts[index+1:]...)
	return q.save(posts)
}

// Peek returns the first queued post without removing it, or nil.
func (q *Queue) Peek() (*Post, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	posts, err := q.load()
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	p := posts[0]
	return &p, nil
}

// Pop removes and returns the first queued post, or nil when empty.
// Callers pop only after the post was successfully published, so a failed
// publish retries the same post next cycle.
func (q *Queue) Pop() (*Post, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	posts, err := q.load()
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	p := posts[0]
	if err := q.save(posts[1:]); err != nil {
		return nil, err
	}
	return &p, nil
}

// Len returns the number of queued posts.
func (q *Queue) Len() (int, error) {
	posts, err := q.List()
	if err != nil {
		return 0, err
	}
	return len(posts), nil
}

func (q *Queue) load() ([]Post, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var posts []Post
	if err := json.Unmarshal(data, &posts); err != nil {
		// A corrupted queue file is recoverable: treat as empty rather
		// than wedging the daemon.
		return nil, nil
	}
	return posts, nil
}

func (q *Queue) save(posts []Post) error {
	if posts == nil {
		posts = []Post{}
	}
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".queue-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), q.path)
}
