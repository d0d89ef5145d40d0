// Package redis provides the Redis-backed flagged-user set shared by every
// server process.
package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cory-johannsen/ascend/internal/config"
)

// NewClient connects to Redis and verifies the connection.
//
// Precondition: cfg.Addr must be a reachable "host:port".
// Postcondition: Returns a connected client or a non-nil error.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// FlagStore keeps the flagged-user set in one Redis set.
type FlagStore struct {
	client *redis.Client
	key    string
}

// NewFlagStore creates a FlagStore whose set lives at prefix + "flagged".
//
// Precondition: client must be non-nil.
func NewFlagStore(client *redis.Client, prefix string) *FlagStore {
	return &FlagStore{client: client, key: prefix + "flagged"}
}

// Flag adds userID to the set.
func (s *FlagStore) Flag(ctx context.Context, userID string) error {
	if err := s.client.SAdd(ctx, s.key, userID).Err(); err != nil {
		return fmt.Errorf("flagging %s: %w", userID, err)
	}
	return nil
}

// Unflag removes userID and reports whether it was present.
func (s *FlagStore) Unflag(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.SRem(ctx, s.key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("unflagging %s: %w", userID, err)
	}
	return n > 0, nil
}

// UnflagAll empties the set and returns how many users it held.
func (s *FlagStore) UnflagAll(ctx context.Context) (int, error) {
	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.SCard(ctx, s.key)
		pipe.Del(ctx, s.key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clearing flagged set: %w", err)
	}
	return int(card.Val()), nil
}

// IsFlagged reports whether userID is in the set.
func (s *FlagStore) IsFlagged(ctx context.Context, userID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("checking flag for %s: %w", userID, err)
	}
	return ok, nil
}

// List returns every flagged user in sorted order.
func (s *FlagStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("listing flagged users: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
