package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velvetcast/session-service/internal/config"
	"github.com/velvetcast/session-service/internal/domain"
)

// Redis key layout:
//
//	{prefix}:{stream_id}        HASH  owner_id, state, last_started_at, last_ended_at
//	{prefix}:{stream_id}:rooms  SET   active room ids
//
// The live/idle transition runs as a Lua script so the compare-and-set
// is atomic against concurrent callback deliveries.

// markLiveScript: transitions idle → live. Returns 1 when the
// transition happened, 0 when the stream was already live.
var markLiveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("HGET", KEYS[1], "state") == "live" then
	return 0
end
redis.call("HSET", KEYS[1], "state", "live", "last_started_at", ARGV[1])
return 1
`)

// markIdleScript: transitions live → idle. Returns the previous
// last_started_at (unix millis) on success, -2 when the stream was not
// live, -1 when it does not exist.
var markIdleScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("HGET", KEYS[1], "state") ~= "live" then
	return -2
end
local started = redis.call("HGET", KEYS[1], "last_started_at")
redis.call("HSET", KEYS[1], "state", "idle", "last_ended_at", ARGV[1])
if started then
	return tonumber(started)
end
return 0
`)

// RedisStreamStore is the Redis-backed stream aggregate store.
type RedisStreamStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStreamStore connects to Redis and returns the store.
func NewRedisStreamStore(cfg config.RedisConfig) (*RedisStreamStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.StreamPrefix
	if prefix == "" {
		prefix = "session:stream"
	}

	return &RedisStreamStore{client: client, prefix: prefix}, nil
}

func (s *RedisStreamStore) streamKey(streamID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, streamID)
}

func (s *RedisStreamStore) roomsKey(streamID string) string {
	return fmt.Sprintf("%s:%s:rooms", s.prefix, streamID)
}

func (s *RedisStreamStore) Create(ctx context.Context, streamID, ownerID string) error {
	// HSETNX on owner_id keeps creation idempotent; state is only
	// initialised for a fresh aggregate.
	created, err := s.client.HSetNX(ctx, s.streamKey(streamID), "owner_id", ownerID).Result()
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	if created {
		if err := s.client.HSetNX(ctx, s.streamKey(streamID), "state", string(domain.StreamStateIdle)).Err(); err != nil {
			return fmt.Errorf("failed to initialise stream state: %w", err)
		}
	}
	return nil
}

func (s *RedisStreamStore) Get(ctx context.Context, streamID string) (*StreamSnapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.streamKey(streamID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrStreamNotFound
	}

	rooms, err := s.client.SMembers(ctx, s.roomsKey(streamID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active rooms: %w", err)
	}

	snap := &StreamSnapshot{
		StreamID:      streamID,
		OwnerID:       fields["owner_id"],
		State:         domain.StreamState(fields["state"]),
		ActiveRoomIDs: rooms,
	}
	if snap.State == "" {
		snap.State = domain.StreamStateIdle
	}
	snap.LastStartedAt = parseMillis(fields["last_started_at"])
	snap.LastEndedAt = parseMillis(fields["last_ended_at"])
	return snap, nil
}

func (s *RedisStreamStore) MarkLive(ctx context.Context, streamID string, at time.Time) (bool, error) {
	res, err := markLiveScript.Run(ctx, s.client,
		[]string{s.streamKey(streamID)}, at.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to mark stream live: %w", err)
	}
	if res == -1 {
		return false, domain.ErrStreamNotFound
	}
	return res == 1, nil
}

func (s *RedisStreamStore) MarkIdle(ctx context.Context, streamID string, at time.Time) (time.Duration, bool, error) {
	res, err := markIdleScript.Run(ctx, s.client,
		[]string{s.streamKey(streamID)}, at.UnixMilli()).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("failed to mark stream idle: %w", err)
	}
	switch res {
	case -1:
		return 0, false, domain.ErrStreamNotFound
	case -2:
		return 0, false, nil
	case 0:
		return 0, true, nil
	default:
		return at.Sub(time.UnixMilli(res)), true, nil
	}
}

func (s *RedisStreamStore) AddActiveRoom(ctx context.Context, streamID, roomID string) error {
	return s.client.SAdd(ctx, s.roomsKey(streamID), roomID).Err()
}

func (s *RedisStreamStore) RemoveActiveRoom(ctx context.Context, streamID, roomID string) error {
	return s.client.SRem(ctx, s.roomsKey(streamID), roomID).Err()
}

// Close releases the Redis connection.
func (s *RedisStreamStore) Close() error {
	return s.client.Close()
}

func parseMillis(v string) *time.Time {
	if v == "" {
		return nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
