// Package session keeps per-session utterance/response transcripts for
// the HTTP surface. Transcripts live in a bbolt database; the resolution
// core itself stays stateless per utterance and never reads them.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketSessions = []byte("sessions")

// Message is one transcript entry.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one conversation's transcript.
type Session struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists sessions in bbolt. Safe for concurrent use.
type Store struct {
	db         *bolt.DB
	maxHistory int
	expiry     time.Duration
	log        *zap.SugaredLogger
}

// Open opens or creates the session database at path.
func Open(path string, maxHistory int, expiry time.Duration, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &Store{db: db, maxHistory: maxHistory, expiry: expiry, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append adds one message to a session, creating the session on first
// use and trimming history beyond the configured maximum.
func (s *Store) Append(sessionID string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)

		sess := Session{ID: sessionID, CreatedAt: time.Now()}
		if raw := b.Get([]byte(sessionID)); raw != nil {
			if err := json.Unmarshal(raw, &sess); err != nil {
				return fmt.Errorf("decode session %s: %w", sessionID, err)
			}
		}

		sess.Messages = append(sess.Messages, msg)
		if s.maxHistory > 0 && len(sess.Messages) > s.maxHistory {
			sess.Messages = sess.Messages[len(sess.Messages)-s.maxHistory:]
		}
		sess.UpdatedAt = time.Now()

		raw, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", sessionID, err)
		}
		return b.Put([]byte(sessionID), raw)
	})
}

// Get returns a session's transcript, or nil when it does not exist.
func (s *Store) Get(sessionID string) (*Session, error) {
	var sess *Session
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSessions).Get([]byte(sessionID))
		if raw == nil {
			return nil
		}
		sess = &Session{}
		return json.Unmarshal(raw, sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Cleanup deletes sessions idle for longer than the expiry window and
// returns how many were removed.
func (s *Store) Cleanup() (int, error) {
	cutoff := time.Now().Add(-s.expiry)
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		c := b.Cursor()
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil {
				// Unreadable entries count as stale.
				stale = append(stale, append([]byte(nil), k...))
				continue
			}
			if sess.UpdatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		s.log.Infow("session cleanup", "removed", removed)
	}
	return removed, nil
}

// StartCleanup runs Cleanup on the given interval until stop is closed.
func (s *Store) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.Cleanup(); err != nil {
					s.log.Warnw("session cleanup failed", "error", err)
				}
			case <-stop:
				return
			}
		}
	}()
}
