package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"open-trivia-rounds/internal/app"
	"open-trivia-rounds/internal/domain"
	"open-trivia-rounds/internal/infra/memory"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Slots stay in a local in-memory store so timers and the in-process
//     broadcast keep working unchanged.
//   - Redis holds the latest snapshot of each session under a key that
//     expires after ttl, refreshed on every update.
//   - Every update is also PUBLISHed so other instances can follow a session
//     they do not hold through Watch.
type SessionStore struct {
	*memory.SessionStore

	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewSessionStore(client redis.UniversalClient, ttl time.Duration, prefix string, c app.SlotConfig) *SessionStore {
	if prefix == "" {
		prefix = "trivia"
	}
	return &SessionStore{
		SessionStore: memory.NewSessionStore(c),
		client:       client,
		ttl:          ttl,
		prefix:       prefix,
	}
}

func (s *SessionStore) GetOrCreate(id string) (*app.Slot, bool) {
	slot, created := s.SessionStore.GetOrCreate(id)
	if created {
		// best-effort liveness marker
		if b, err := json.Marshal(slot.Snapshot()); err == nil {
			_ = s.client.Set(context.Background(), s.Key(id), b, s.ttl).Err()
		}
	}
	return slot, created
}

func (s *SessionStore) Delete(id string) {
	s.SessionStore.Delete(id)
	_ = s.client.Del(context.Background(), s.Key(id)).Err()
}

// Publish stores the snapshot and announces it on the session channel.
func (s *SessionStore) Publish(ctx context.Context, u app.Update) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.Key(u.SessionID), b, s.ttl)
	pipe.Publish(ctx, s.Channel(u.SessionID), b)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish session %s: %w", u.SessionID, err)
	}
	return nil
}

// Load reads the last snapshot stored for id, possibly by another instance.
func (s *SessionStore) Load(ctx context.Context, id string) (app.Update, error) {
	b, err := s.client.Get(ctx, s.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.Update{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return app.Update{}, err
	}
	var u app.Update
	if err := json.Unmarshal(b, &u); err != nil {
		return app.Update{}, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return u, nil
}

// Watch follows a session held by any instance. The first update is the
// stored snapshot, then every update published on the session channel.
func (s *SessionStore) Watch(ctx context.Context, id string) (<-chan app.Update, func(), error) {
	// subscribe before loading so nothing published in between is lost
	sub := s.client.Subscribe(ctx, s.Channel(id))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe session %s: %w", id, err)
	}
	initial, err := s.Load(ctx, id)
	if err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan app.Update, 8)
	out <- initial
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var u app.Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					log.Warn().Err(err).Str("session", id).Msg("skip undecodable session update")
					continue
				}
				select {
				case out <- u:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}

func (s *SessionStore) Key(id string) string {
	return s.prefix + ":session:" + id
}

func (s *SessionStore) Channel(id string) string {
	return s.Key(id) + ":updates"
}
