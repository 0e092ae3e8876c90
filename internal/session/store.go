package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"natural-alert/internal/model"
)

// Store keeps conversation transcripts as JSON values in Redis,
// one key per session. Sessions are created lazily on first write
// and kept without expiry.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Get loads a session transcript. A session that was never written
// returns (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*model.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s failed: %w", id, err)
	}

	sess := &model.Session{SessionID: id}
	if err := json.Unmarshal([]byte(raw), sess); err != nil {
		return nil, fmt.Errorf("decode session %s failed: %w", id, err)
	}
	return sess, nil
}

// Put writes the whole transcript back in one SET so a turn is either
// fully persisted or not at all.
func (s *Store) Put(ctx context.Context, id string, sess *model.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s failed: %w", id, err)
	}
	if err := s.client.Set(ctx, sessionKey(id), raw, 0).Err(); err != nil {
		return fmt.Errorf("store session %s failed: %w", id, err)
	}
	return nil
}
