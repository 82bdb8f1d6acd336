// Package presence records which users currently hold open sockets. Each user
// has a Redis set of "<server>/<connection>" members so that presence is
// shared across nodes and survives one node's restart.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PresencePrefix is the Redis key prefix for per-user connection sets.
	PresencePrefix = "presence:"

	// PresenceTTL bounds how long a set survives without a refresh, so a node
	// that dies without cleaning up does not leave users online forever.
	PresenceTTL = 2 * time.Minute
)

// Store manages presence state in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this node
}

// NewStore creates a presence store on an existing Redis client.
func NewStore(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Dial connects to Redis at addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}
	return client, nil
}

func (s *Store) member(connID string) string {
	return s.serverName + "/" + connID
}

// Connect marks connID as an open connection of userID.
func (s *Store) Connect(ctx context.Context, userID, connID string) error {
	key := PresencePrefix + userID
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, key, s.member(connID))
	pipe.Expire(ctx, key, PresenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Disconnect removes connID from userID's open connections.
func (s *Store) Disconnect(ctx context.Context, userID, connID string) error {
	return s.client.SRem(ctx, PresencePrefix+userID, s.member(connID)).Err()
}

// Refresh extends the TTL of userID's presence set.
func (s *Store) Refresh(ctx context.Context, userID string) error {
	return s.client.Expire(ctx, PresencePrefix+userID, PresenceTTL).Err()
}

// Online reports whether userID has at least one open connection on any node.
func (s *Store) Online(ctx context.Context, userID string) (bool, error) {
	n, err := s.Connections(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Connections returns the number of open connections userID has across nodes.
func (s *Store) Connections(ctx context.Context, userID string) (int64, error) {
	n, err := s.client.SCard(ctx, PresencePrefix+userID).Result()
	if err != nil {
		return 0, fmt.Errorf("presence: connections %s: %w", userID, err)
	}
	return n, nil
}
