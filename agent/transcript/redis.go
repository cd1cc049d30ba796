package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lachopopov/multiagent-system-demo/internal/tlsutil"
	"github.com/lachopopov/multiagent-system-demo/types"
	"github.com/redis/go-redis/v9"
)

// RedisConfig contains Redis-specific configuration
type RedisConfig struct {
	// Addr is host:port of the Redis server
	Addr string `json:"addr" yaml:"addr"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// TLS enables TLS towards the server
	TLS bool `json:"tls" yaml:"tls"`
}

// maxTxAttempts bounds optimistic transaction retries on concurrent appends.
const maxTxAttempts = 16

// RedisStore keeps the transcript in a Redis list. The list index of a message
// is seq-1, so the sequence stays gapless across processes.
type RedisStore struct {
	client *redis.Client
	owns   bool
	key    string
	now    func() time.Time
}

// NewRedisStore connects to Redis and returns a store for conversationID.
func NewRedisStore(cfg RedisConfig, conversationID string) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.ClientConfigFor(cfg.Addr)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, types.NewError(types.ErrStoreUnavailable, "failed to connect to Redis").WithCause(err)
	}

	s := NewRedisStoreWithClient(client, cfg.KeyPrefix, conversationID)
	s.owns = true
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client. The client is not closed by Close.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix, conversationID string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "procurement:"
	}
	if conversationID == "" {
		conversationID = DefaultConversationID
	}
	return &RedisStore{
		client: client,
		key:    keyPrefix + "transcript:" + conversationID,
		now:    time.Now,
	}
}

// Key returns the Redis list key holding the transcript.
func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) Append(ctx context.Context, msg types.Message) (types.Message, error) {
	var stored types.Message
	txf := func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, s.key).Result()
		if err != nil {
			return err
		}
		m, err := stamp(msg, n+1, s.now())
		if err != nil {
			return err
		}
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, s.key, data)
			return nil
		})
		if err == nil {
			stored = m
		}
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return stored, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.ErrClosed) {
			return types.Message{}, ErrStoreClosed
		}
		return types.Message{}, err
	}
	return types.Message{}, types.NewError(types.ErrStoreUnavailable, "append contention: too many concurrent writers")
}

func (s *RedisStore) Snapshot(ctx context.Context) (Snapshot, error) {
	raws, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return Snapshot{}, ErrStoreClosed
		}
		return Snapshot{}, err
	}
	msgs := make([]types.Message, 0, len(raws))
	for i, raw := range raws {
		var m types.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return Snapshot{}, fmt.Errorf("decode transcript entry %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	if err := verifySequence(msgs); err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(msgs), nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if !s.owns {
		return nil
	}
	return s.client.Close()
}
